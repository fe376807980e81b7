package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/daimatz/jvmsandbox/pkg/classpath"
)

func TestFindClassOrder(t *testing.T) {
	primary := classpath.NewMemory("primary", map[string][]byte{"a/A": []byte("primary A")})
	lib1 := classpath.NewMemory("lib1", map[string][]byte{"a/A": []byte("lib1 A"), "b/B": []byte("lib1 B")})
	lib2 := classpath.NewMemory("lib2", map[string][]byte{"b/B": []byte("lib2 B"), "c/C": []byte("lib2 C")})
	ws := New(primary, lib1, lib2)

	tests := []struct {
		name, wantData, wantFrom string
	}{
		{"a/A", "primary A", "primary"},
		{"b/B", "lib1 B", "lib1"},
		{"c/C", "lib2 C", "lib2"},
	}
	for _, tt := range tests {
		data, from, err := ws.FindClass(tt.name)
		if err != nil {
			t.Fatalf("FindClass(%s): %v", tt.name, err)
		}
		if string(data) != tt.wantData || from != tt.wantFrom {
			t.Errorf("FindClass(%s): got %q from %s, want %q from %s", tt.name, data, from, tt.wantData, tt.wantFrom)
		}
	}
	if _, _, err := ws.FindClass("d/D"); !errors.Is(err, classpath.ErrNotFound) {
		t.Errorf("FindClass(missing): got %v", err)
	}

	names, err := ws.Classes()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a/A", "b/B", "c/C"}, names); diff != "" {
		t.Errorf("Classes mismatch (-want +got):\n%s", diff)
	}
}

// brokenEntry fails every read.
type brokenEntry struct{}

func (brokenEntry) Name() string { return "broken" }

func (brokenEntry) ReadClass(string) ([]byte, error) { return nil, errors.New("disk on fire") }

func (brokenEntry) Classes() ([]string, error) { return nil, nil }

func TestFindClassSkipsUnreadable(t *testing.T) {
	ws := New(brokenEntry{}, classpath.NewMemory("lib", map[string][]byte{"x/X": []byte("x")}))
	if _, from, err := ws.FindClass("x/X"); err != nil || from != "lib" {
		t.Errorf("FindClass: got %s, %v", from, err)
	}
}

func TestManagerEvents(t *testing.T) {
	m := NewManager()
	var got []string
	unsubscribe := m.Subscribe(func(ev Event) {
		got = append(got, ev.Kind.String()+":"+ev.Class)
	})

	if err := m.PutClass("a/A", nil); !errors.Is(err, ErrNoWorkspace) {
		t.Errorf("PutClass without workspace: got %v", err)
	}
	m.Close() // nothing open: no event

	first := New(classpath.NewMemory("one", map[string][]byte{"a/A": []byte("old")}))
	m.SetWorkspace(first)
	if err := m.PutClass("a/A", []byte("new")); err != nil {
		t.Fatal(err)
	}
	if data, _, _ := first.FindClass("a/A"); string(data) != "new" {
		t.Errorf("edited class: got %q", data)
	}
	m.SetWorkspace(New(classpath.NewMemory("two", nil)))
	if err := m.Reload(context.Background()); err != nil {
		t.Errorf("Reload(memory): %v", err)
	}
	m.Close()

	want := []string{"opened:", "changed:a/A", "closed:", "opened:", "changed:", "closed:"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	unsubscribe()
	m.SetWorkspace(first)
	if len(got) != len(want) {
		t.Errorf("listener ran after unsubscribe: %v", got[len(want):])
	}
}

func writeClass(t *testing.T, root, name, data string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name)+".class")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestOpenFromDisk(t *testing.T) {
	dir := t.TempDir()
	app, lib := filepath.Join(dir, "app"), filepath.Join(dir, "lib")
	writeClass(t, app, "app/Main", "main")
	writeClass(t, lib, "lib/Util", "v1")

	m := NewManager()
	ws, err := m.Open(context.Background(), app, lib)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if diff := cmp.Diff([]string{app, lib}, ws.Paths()); diff != "" {
		t.Errorf("Paths mismatch (-want +got):\n%s", diff)
	}
	if data, _, _ := ws.FindClass("lib/Util"); string(data) != "v1" {
		t.Errorf("lib/Util: got %q", data)
	}

	writeClass(t, lib, "lib/Util", "v2")
	if err := m.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if data, _, _ := m.Current().FindClass("lib/Util"); string(data) != "v2" {
		t.Errorf("after Reload: got %q", data)
	}

	if _, err := Open(context.Background(), app, filepath.Join(dir, "missing.jar")); err == nil {
		t.Error("Open with a missing supporting artifact succeeded")
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workspace.yaml")
	os.WriteFile(path, []byte("primary: app.jar\nsupporting:\n  - lib/a.jar\n  - /opt/b.jar\n"), 0o644)

	mf, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	want := &Manifest{
		Primary:    filepath.Join(dir, "app.jar"),
		Supporting: []string{filepath.Join(dir, "lib/a.jar"), "/opt/b.jar"},
	}
	if diff := cmp.Diff(want, mf); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}

	empty := filepath.Join(dir, "empty.yaml")
	os.WriteFile(empty, []byte("supporting: []\n"), 0o644)
	if _, err := LoadManifest(empty); err == nil {
		t.Error("manifest without primary accepted")
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	writeClass(t, dir, "app/Main", "v1")
	m := NewManager()
	original, err := m.Open(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	changed := make(chan struct{}, 1)
	m.Subscribe(func(ev Event) {
		if ev.Kind == Changed {
			select {
			case changed <- struct{}{}:
			default:
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	// The watcher registers asynchronously; keep writing until it reports.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
wait:
	for {
		select {
		case <-changed:
			break wait
		case <-tick.C:
			writeClass(t, dir, "app/Main", "v2")
		case <-deadline:
			t.Fatal("no change event within 5s")
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch: %v", err)
	}
	if m.Current() == original {
		t.Error("workspace was not reopened")
	}
}
