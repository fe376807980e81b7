package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-version"
	"github.com/spf13/viper"

	"github.com/daimatz/jvmsandbox/pkg/sandbox"
)

type snapshot struct {
	Path      string `mapstructure:"path" json:"path,omitempty" jsonschema:"description=Standard library snapshot: a jmod or jar file or a class directory"`
	Version   string `mapstructure:"version" json:"version,omitempty" jsonschema:"description=Accepted Java releases as a version constraint"`
	CacheSize int    `mapstructure:"cache_size" json:"cache_size,omitempty"`
}

type sandboxConfig struct {
	MaxIterations int64 `mapstructure:"max_iterations" json:"max_iterations,omitempty"`
}

type workspace struct {
	Primary    string   `mapstructure:"primary" json:"primary,omitempty"`
	Supporting []string `mapstructure:"supporting" json:"supporting,omitempty"`
	Manifest   string   `mapstructure:"manifest" json:"manifest,omitempty"`
	Watch      bool     `mapstructure:"watch" json:"watch,omitempty"`
}

// Config is the jvmsandbox configuration file.
type Config struct {
	Snapshot  snapshot      `mapstructure:"snapshot" json:"snapshot"`
	Sandbox   sandboxConfig `mapstructure:"sandbox" json:"sandbox"`
	Workspace workspace     `mapstructure:"workspace" json:"workspace"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("snapshot.version", sandbox.DefaultVersionConstraint)
	v.SetDefault("snapshot.cache_size", sandbox.DefaultCacheSize)
	v.SetDefault("sandbox.max_iterations", sandbox.DefaultMaxIterations)
	v.SetDefault("workspace.watch", false)
}

func (c *Config) verify() error {
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = findJmodPath()
	}
	if c.Snapshot.Path == "" {
		return fmt.Errorf("config: could not find java.base.jmod; set snapshot.path, JAVA_BASE_JMOD or JAVA_HOME")
	}
	if _, err := version.NewConstraint(c.Snapshot.Version); err != nil {
		return fmt.Errorf("config: snapshot.version %q: %v", c.Snapshot.Version, err)
	}
	if c.Snapshot.CacheSize < 0 {
		return fmt.Errorf("config: snapshot.cache_size must not be negative")
	}
	if c.Sandbox.MaxIterations <= 0 {
		return fmt.Errorf("config: sandbox.max_iterations must be positive")
	}
	if c.Workspace.Primary != "" && c.Workspace.Manifest != "" {
		return fmt.Errorf("config: workspace.primary and workspace.manifest cannot be set at the same time")
	}
	if c.Workspace.Primary == "" && len(c.Workspace.Supporting) > 0 {
		return fmt.Errorf("config: workspace.supporting needs workspace.primary")
	}
	return nil
}

// findJmodPath looks for java.base.jmod of an installed JDK.
func findJmodPath() string {
	// 1. Explicit env var
	if env := os.Getenv("JAVA_BASE_JMOD"); env != "" {
		return env
	}
	// 2. JAVA_HOME
	if javaHome := os.Getenv("JAVA_HOME"); javaHome != "" {
		p := filepath.Join(javaHome, "jmods", "java.base.jmod")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	// 3. Glob fallback
	matches, _ := filepath.Glob("/usr/lib/jvm/java-*-openjdk-*/jmods/java.base.jmod")
	if len(matches) > 0 {
		return matches[0]
	}
	return ""
}

// Load unmarshals and verifies the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var c *Config

	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return c, nil
}

// LoadConfig is Load on the global viper instance.
func LoadConfig() (*Config, error) {
	return Load(viper.GetViper())
}
