package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/fsnotify/fsnotify"
)

// EventKind says what happened to the current workspace.
type EventKind int

const (
	Opened EventKind = iota
	Closed
	Changed
)

func (k EventKind) String() string {
	switch k {
	case Opened:
		return "opened"
	case Closed:
		return "closed"
	case Changed:
		return "changed"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is delivered to listeners after the change took effect.
type Event struct {
	Kind      EventKind
	Workspace *Workspace
	// Class is the edited class for Changed events caused by PutClass.
	Class string
}

// Listener receives workspace events.
type Listener func(Event)

// ErrNoWorkspace is returned by operations that need an open workspace.
var ErrNoWorkspace = errors.New("workspace: none open")

// Manager holds the current workspace and notifies listeners when it is
// replaced, closed or edited.
type Manager struct {
	mu        sync.Mutex
	current   *Workspace
	listeners map[int]Listener
	nextID    int
}

// NewManager returns a manager with no open workspace.
func NewManager() *Manager {
	return &Manager{listeners: make(map[int]Listener)}
}

// Current returns the open workspace or nil.
func (m *Manager) Current() *Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe registers l and returns a function that removes it.
func (m *Manager) Subscribe(l Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// notify runs listeners outside the lock so they may call back into m.
func (m *Manager) notify(ev Event) {
	m.mu.Lock()
	ls := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		ls = append(ls, l)
	}
	m.mu.Unlock()
	log.WithField("event", ev.Kind).Debug("workspace event")
	for _, l := range ls {
		l(ev)
	}
}

// SetWorkspace makes ws current, closing the previous workspace first.
func (m *Manager) SetWorkspace(ws *Workspace) {
	if m.Current() != nil {
		m.Close()
	}
	m.mu.Lock()
	m.current = ws
	m.mu.Unlock()
	m.notify(Event{Kind: Opened, Workspace: ws})
}

// Open opens the artifacts at the given paths and makes them current.
func (m *Manager) Open(ctx context.Context, primary string, supporting ...string) (*Workspace, error) {
	ws, err := Open(ctx, primary, supporting...)
	if err != nil {
		return nil, err
	}
	m.SetWorkspace(ws)
	return ws, nil
}

// OpenManifest opens the workspace a manifest describes.
func (m *Manager) OpenManifest(ctx context.Context, mf *Manifest) (*Workspace, error) {
	return m.Open(ctx, mf.Primary, mf.Supporting...)
}

// Close closes the current workspace. Closing with nothing open is a no-op.
func (m *Manager) Close() {
	m.mu.Lock()
	ws := m.current
	m.current = nil
	m.mu.Unlock()
	if ws != nil {
		m.notify(Event{Kind: Closed, Workspace: ws})
	}
}

// PutClass replaces a class of the current workspace with edited bytes.
func (m *Manager) PutClass(name string, data []byte) error {
	ws := m.Current()
	if ws == nil {
		return ErrNoWorkspace
	}
	ws.put(name, data)
	m.notify(Event{Kind: Changed, Workspace: ws, Class: name})
	return nil
}

// Reload reopens the current workspace from disk and reports it as changed.
// Workspaces built from in-memory entries are only reported.
func (m *Manager) Reload(ctx context.Context) error {
	ws := m.Current()
	if ws == nil {
		return ErrNoWorkspace
	}
	if paths := ws.Paths(); len(paths) > 0 {
		fresh, err := Open(ctx, paths[0], paths[1:]...)
		if err != nil {
			return fmt.Errorf("workspace: reload: %w", err)
		}
		m.mu.Lock()
		m.current = fresh
		m.mu.Unlock()
		ws = fresh
	}
	m.notify(Event{Kind: Changed, Workspace: ws})
	return nil
}

// Watch reloads the current workspace whenever one of its artifacts changes
// on disk, until ctx is done. Edits made with PutClass are dropped by the
// reload.
func (m *Manager) Watch(ctx context.Context) error {
	ws := m.Current()
	if ws == nil {
		return ErrNoWorkspace
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("workspace: watch: %w", err)
	}
	defer watcher.Close()

	var watched []string
	for _, p := range ws.Paths() {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		watched = append(watched, abs)
		// Watch the parent so replaced files (write to temp, rename) are seen.
		dirs := []string{filepath.Dir(abs)}
		if fi, err := os.Stat(abs); err == nil && fi.IsDir() {
			filepath.WalkDir(abs, func(path string, de os.DirEntry, err error) error {
				if err == nil && de.IsDir() {
					dirs = append(dirs, path)
				}
				return nil
			})
		}
		for _, d := range dirs {
			if err := watcher.Add(d); err != nil {
				return fmt.Errorf("workspace: watch %s: %w", d, err)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !covers(watched, event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Infof("event: %s", event.String())
			if err := m.Reload(ctx); err != nil {
				log.WithError(err).Warn("workspace reload failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watcher error")
		}
	}
}

// covers reports whether name is one of paths or lies below one of them.
func covers(paths []string, name string) bool {
	for _, p := range paths {
		if name == p || strings.HasPrefix(name, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
