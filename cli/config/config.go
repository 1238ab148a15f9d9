package config

import (
	"fmt"
	"time"
)

// Config represents a tether.yaml configuration file.
// All values are optional and act as defaults for tether call flags.
// CLI flags always override config values.
type Config struct {
	// Worker is the worker binary to fork.
	Worker string `yaml:"worker"`
	// Args is the worker's extra argument list.
	Args []string `yaml:"args"`
	// WorkDir is the worker's working directory.
	WorkDir string `yaml:"work_dir"`
	// Plugins is the plugin list forwarded to the worker bootstrap.
	Plugins []string `yaml:"plugins"`
	// RequirePath selects the receiver factory inside the worker.
	RequirePath string `yaml:"require_path"`
	// DisposeTimeout bounds the wait for graceful shutdown.
	DisposeTimeout Duration `yaml:"dispose_timeout"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
