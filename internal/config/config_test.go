package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	return v
}

func TestLoad(t *testing.T) {
	v := newViper(t, `
snapshot:
  path: /opt/jdk-11/jmods/java.base.jmod
workspace:
  primary: app.jar
  supporting: [lib/a.jar, lib/b.jar]
  watch: true
`)
	c, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := &Config{
		Snapshot:  snapshot{Path: "/opt/jdk-11/jmods/java.base.jmod", Version: ">= 11, < 18", CacheSize: 4096},
		Sandbox:   sandboxConfig{MaxIterations: 10_000_000},
		Workspace: workspace{Primary: "app.jar", Supporting: []string{"lib/a.jar", "lib/b.jar"}, Watch: true},
	}
	if diff := cmp.Diff(want, c, cmp.AllowUnexported(Config{})); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("JVMSANDBOX_SANDBOX_MAX_ITERATIONS", "500")
	v := newViper(t, "snapshot:\n  path: base.jmod\n")
	v.SetEnvPrefix("jvmsandbox")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	c, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Sandbox.MaxIterations != 500 {
		t.Errorf("max_iterations: got %d, want 500", c.Sandbox.MaxIterations)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad constraint", "snapshot: {path: a.jmod, version: 'eleven'}", "snapshot.version"},
		{"negative cache", "snapshot: {path: a.jmod, cache_size: -1}", "cache_size"},
		{"zero ceiling", "snapshot: {path: a.jmod}\nsandbox: {max_iterations: 0}", "max_iterations"},
		{"primary and manifest", "snapshot: {path: a.jmod}\nworkspace: {primary: a.jar, manifest: ws.yaml}", "cannot be set at the same time"},
		{"supporting alone", "snapshot: {path: a.jmod}\nworkspace: {supporting: [b.jar]}", "needs workspace.primary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestFindJmodPath(t *testing.T) {
	t.Setenv("JAVA_BASE_JMOD", "/explicit/java.base.jmod")
	if got := findJmodPath(); got != "/explicit/java.base.jmod" {
		t.Errorf("JAVA_BASE_JMOD: got %q", got)
	}

	home := t.TempDir()
	jmod := filepath.Join(home, "jmods", "java.base.jmod")
	if err := os.MkdirAll(filepath.Dir(jmod), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(jmod, []byte("JM\x01\x00"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JAVA_BASE_JMOD", "")
	t.Setenv("JAVA_HOME", home)
	if got := findJmodPath(); got != jmod {
		t.Errorf("JAVA_HOME: got %q, want %q", got, jmod)
	}
}
