package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest describes a workspace on disk:
//
//	primary: app.jar
//	supporting:
//	  - lib/guava.jar
//	  - lib/classes
//
// Relative paths are resolved against the manifest's directory.
type Manifest struct {
	Primary    string   `yaml:"primary"`
	Supporting []string `yaml:"supporting,omitempty"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	var mf Manifest
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("manifest: parsing %s: %w", path, err)
	}
	if mf.Primary == "" {
		return nil, fmt.Errorf("manifest: %s: primary artifact is required", path)
	}
	base := filepath.Dir(path)
	mf.Primary = resolve(base, mf.Primary)
	for i, p := range mf.Supporting {
		mf.Supporting[i] = resolve(base, p)
	}
	return &mf, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
