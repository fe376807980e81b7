// Package workspace models the analysed application: a primary artifact,
// the libraries it depends on, and the edits made to it since it was opened.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"github.com/daimatz/jvmsandbox/pkg/classpath"
)

// Workspace resolves classes from its primary artifact first, then from the
// supporting artifacts in order.
type Workspace struct {
	primary    classpath.Entry
	supporting []classpath.Entry
	paths      []string

	mu      sync.RWMutex
	overlay map[string][]byte
}

// New builds a workspace from already opened entries.
func New(primary classpath.Entry, supporting ...classpath.Entry) *Workspace {
	return &Workspace{primary: primary, supporting: supporting, overlay: make(map[string][]byte)}
}

// Open opens the primary artifact and the supporting artifacts. Supporting
// artifacts are opened concurrently.
func Open(ctx context.Context, primary string, supporting ...string) (*Workspace, error) {
	p, err := classpath.Open(primary)
	if err != nil {
		return nil, fmt.Errorf("workspace: primary: %w", err)
	}
	entries := make([]classpath.Entry, len(supporting))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range supporting {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			e, err := classpath.Open(path)
			if err != nil {
				return fmt.Errorf("workspace: supporting: %w", err)
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	ws := New(p, entries...)
	ws.paths = append([]string{primary}, supporting...)
	log.WithFields(log.Fields{"primary": primary, "supporting": len(supporting)}).Info("workspace opened")
	return ws, nil
}

// Paths returns the file system paths the workspace was opened from.
func (w *Workspace) Paths() []string { return w.paths }

// Primary returns the primary artifact.
func (w *Workspace) Primary() classpath.Entry { return w.primary }

// Supporting returns the supporting artifacts.
func (w *Workspace) Supporting() []classpath.Entry { return w.supporting }

// FindClass returns the bytes of the named class and the artifact that
// supplied them. Edited classes shadow the primary artifact. Entries that
// fail to read are skipped.
func (w *Workspace) FindClass(name string) ([]byte, string, error) {
	w.mu.RLock()
	data, ok := w.overlay[name]
	w.mu.RUnlock()
	if ok {
		return data, w.primary.Name(), nil
	}
	for _, e := range append([]classpath.Entry{w.primary}, w.supporting...) {
		data, err := e.ReadClass(name)
		if err == nil {
			return data, e.Name(), nil
		}
		if !errors.Is(err, classpath.ErrNotFound) {
			log.WithError(err).WithField("entry", e.Name()).Debugf("skipping unreadable %s", name)
		}
	}
	return nil, "", classpath.ErrNotFound
}

// Classes lists every class the workspace can resolve, deduplicated.
func (w *Workspace) Classes() ([]string, error) {
	seen := make(map[string]bool)
	w.mu.RLock()
	for name := range w.overlay {
		seen[name] = true
	}
	w.mu.RUnlock()
	for _, e := range append([]classpath.Entry{w.primary}, w.supporting...) {
		names, err := e.Classes()
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			seen[n] = true
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (w *Workspace) put(name string, data []byte) {
	w.mu.Lock()
	w.overlay[name] = data
	w.mu.Unlock()
}
