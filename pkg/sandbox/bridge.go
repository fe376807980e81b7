package sandbox

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/apex/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/go-version"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
	"github.com/daimatz/jvmsandbox/pkg/classpath"
	"github.com/daimatz/jvmsandbox/pkg/vm"
)

const (
	// DefaultVersionConstraint is the range of Java releases whose core
	// library the interpreter is known to boot.
	DefaultVersionConstraint = ">= 11, < 18"
	// DefaultCacheSize is the number of parsed snapshot classes kept.
	DefaultCacheSize = 4096
)

// Snapshot is a read-only copy of a standard library, usually the
// java.base.jmod of a supported JDK. Parsed classes are cached.
type Snapshot struct {
	entry classpath.Entry
	cache *lru.Cache[string, *classfile.ClassFile]
}

// NewSnapshot wraps entry. A cacheSize of zero selects DefaultCacheSize.
func NewSnapshot(entry classpath.Entry, cacheSize int) (*Snapshot, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *classfile.ClassFile](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return &Snapshot{entry: entry, cache: cache}, nil
}

// OpenSnapshot opens a jmod, jar, zip or class directory as a snapshot.
func OpenSnapshot(path string, cacheSize int) (*Snapshot, error) {
	entry, err := classpath.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return NewSnapshot(entry, cacheSize)
}

// Name is the path or label of the underlying archive.
func (s *Snapshot) Name() string { return s.entry.Name() }

// Class returns the parsed class, or an error matching classpath.ErrNotFound.
func (s *Snapshot) Class(name string) (*classfile.ClassFile, error) {
	if cf, ok := s.cache.Get(name); ok {
		return cf, nil
	}
	data, err := s.entry.ReadClass(name)
	if err != nil {
		return nil, err
	}
	cf, err := classfile.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot: parsing %s: %w", name, err)
	}
	s.cache.Add(name, cf)
	return cf, nil
}

// Release is the Java feature release the snapshot was compiled for, read
// from the class file version of java/lang/Object.
func (s *Snapshot) Release() (*version.Version, error) {
	cf, err := s.Class("java/lang/Object")
	if err != nil {
		return nil, fmt.Errorf("snapshot: %s: java/lang/Object: %w", s.Name(), err)
	}
	if cf.MajorVersion < 45 {
		return nil, fmt.Errorf("snapshot: java/lang/Object has class file version %d", cf.MajorVersion)
	}
	return version.NewVersion(strconv.Itoa(int(cf.MajorVersion) - 44))
}

// Verify checks the snapshot's release against a constraint such as
// DefaultVersionConstraint.
func (s *Snapshot) Verify(constraint string) error {
	c, err := version.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("snapshot: bad version constraint %q: %w", constraint, err)
	}
	v, err := s.Release()
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("snapshot: %s is Java %s, which is outside %s", s.Name(), v, constraint)
	}
	log.WithFields(log.Fields{"snapshot": s.Name(), "release": v.String()}).Debug("snapshot verified")
	return nil
}

// WorkspaceClasses is the workspace tier of a Bridge. workspace.Workspace
// implements it.
type WorkspaceClasses interface {
	FindClass(name string) (data []byte, artifact string, err error)
}

// Bridge resolves classes for the interpreter's boot path: the snapshot
// first, then the workspace. Workspace classes go through the boot path so
// the interpreter never needs a user-level class loader.
type Bridge struct {
	snapshot *Snapshot

	mu        sync.RWMutex
	workspace WorkspaceClasses
}

// NewBridge returns a bridge over snapshot with no workspace tier.
func NewBridge(snapshot *Snapshot) *Bridge {
	return &Bridge{snapshot: snapshot}
}

// SetWorkspace swaps the workspace tier. nil disables it.
func (b *Bridge) SetWorkspace(ws WorkspaceClasses) {
	b.mu.Lock()
	b.workspace = ws
	b.mu.Unlock()
}

// FindBootClass implements vm.BootClassFinder.
func (b *Bridge) FindBootClass(name string) (*vm.ClassSource, error) {
	if b.snapshot != nil {
		cf, err := b.snapshot.Class(name)
		if err == nil {
			return &vm.ClassSource{File: cf, Origin: vm.OriginSnapshot}, nil
		}
		if !errors.Is(err, classpath.ErrNotFound) {
			return nil, err
		}
	}

	b.mu.RLock()
	ws := b.workspace
	b.mu.RUnlock()
	if ws == nil {
		return nil, &vm.ClassNotFoundError{Name: name}
	}
	data, artifact, err := ws.FindClass(name)
	if errors.Is(err, classpath.ErrNotFound) {
		return nil, &vm.ClassNotFoundError{Name: name}
	}
	if err != nil {
		return nil, err
	}
	cf, err := classfile.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("workspace: parsing %s from %s: %w", name, artifact, err)
	}
	log.WithFields(log.Fields{"class": name, "artifact": artifact}).Debug("workspace class")
	return &vm.ClassSource{File: cf, Origin: vm.OriginWorkspace}, nil
}
