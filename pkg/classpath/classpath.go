// Package classpath reads class files out of the archives a JDK or an
// application ships them in: jmod files, jars and zips, exploded
// directories, and in-memory maps.
package classpath

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
)

// ErrNotFound is returned when an entry does not contain the class.
var ErrNotFound = errors.New("class not found")

const jmodMagic = "JM\x01\x00"

// Entry is one element of a class path.
type Entry interface {
	// Name identifies the entry in logs and results, usually its path.
	Name() string
	// ReadClass returns the bytes of the class with the given internal name.
	ReadClass(name string) ([]byte, error)
	// Classes lists the internal names of every class in the entry.
	Classes() ([]string, error)
}

// Open opens path as a class path entry. Directories are read as exploded
// class trees, .jmod files as jmods, and anything else as a zip archive.
func Open(path string) (Entry, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("classpath: %w", err)
	}
	if fi.IsDir() {
		return &Dir{Root: path}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classpath: reading %s: %w", path, err)
	}
	log.WithFields(log.Fields{"path": path, "size": humanize.Bytes(uint64(len(data)))}).Debug("opened archive")
	if strings.HasSuffix(path, ".jmod") || bytes.HasPrefix(data, []byte(jmodMagic)) {
		return NewJmod(path, data)
	}
	return NewArchive(path, data)
}

// Archive is a jar or zip held in memory. Class names are entry paths
// below Prefix without the .class suffix.
type Archive struct {
	path   string
	prefix string
	index  map[string]*zip.File
}

// NewArchive indexes a zip archive.
func NewArchive(path string, data []byte) (*Archive, error) {
	return newArchive(path, data, "")
}

// NewJmod indexes a jmod file: a four byte header followed by a zip whose
// classes live under classes/.
func NewJmod(path string, data []byte) (*Archive, error) {
	if !bytes.HasPrefix(data, []byte(jmodMagic)) {
		return nil, fmt.Errorf("jmod: %s: bad header", path)
	}
	return newArchive(path, data[len(jmodMagic):], "classes/")
}

func newArchive(path string, data []byte, prefix string) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("classpath: opening zip %s: %w", path, err)
	}
	a := &Archive{path: path, prefix: prefix, index: make(map[string]*zip.File)}
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, prefix) || !strings.HasSuffix(f.Name, ".class") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(f.Name, prefix), ".class")
		a.index[name] = f
	}
	return a, nil
}

func (a *Archive) Name() string { return a.path }

func (a *Archive) ReadClass(name string) ([]byte, error) {
	f, ok := a.index[name]
	if !ok {
		return nil, ErrNotFound
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("classpath: opening %s in %s: %w", f.Name, a.path, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("classpath: reading %s in %s: %w", f.Name, a.path, err)
	}
	return data, nil
}

func (a *Archive) Classes() ([]string, error) {
	names := make([]string, 0, len(a.index))
	for name := range a.index {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Dir is an exploded class tree: the class a/b/C lives at Root/a/b/C.class.
type Dir struct {
	Root string
}

func (d *Dir) Name() string { return d.Root }

func (d *Dir) ReadClass(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.Root, filepath.FromSlash(name)+".class"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("classpath: %w", err)
	}
	return data, nil
}

func (d *Dir) Classes() ([]string, error) {
	var names []string
	err := filepath.WalkDir(d.Root, func(path string, de os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if de.IsDir() || !strings.HasSuffix(path, ".class") {
			return nil
		}
		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return err
		}
		names = append(names, strings.TrimSuffix(filepath.ToSlash(rel), ".class"))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("classpath: walking %s: %w", d.Root, err)
	}
	sort.Strings(names)
	return names, nil
}

// Memory serves classes from a map of internal names to class bytes.
type Memory struct {
	Label string
	Data  map[string][]byte
}

// NewMemory wraps classes. The map is used as is.
func NewMemory(label string, classes map[string][]byte) *Memory {
	return &Memory{Label: label, Data: classes}
}

func (m *Memory) Name() string { return m.Label }

func (m *Memory) ReadClass(name string) ([]byte, error) {
	data, ok := m.Data[name]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (m *Memory) Classes() ([]string, error) {
	names := make([]string, 0, len(m.Data))
	for name := range m.Data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
