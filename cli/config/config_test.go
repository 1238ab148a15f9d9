package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `worker: /opt/workers/calc
args:
  - --mode
  - fast
work_dir: /var/lib/calc
plugins:
  - tracing
  - profiling
require_path: calc
dispose_timeout: 5s
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "worker", cfg.Worker, "/opt/workers/calc")
	assertEqual(t, "work_dir", cfg.WorkDir, "/var/lib/calc")
	assertEqual(t, "require_path", cfg.RequirePath, "calc")

	if len(cfg.Args) != 2 || cfg.Args[0] != "--mode" || cfg.Args[1] != "fast" {
		t.Errorf("args = %v, want [--mode fast]", cfg.Args)
	}
	if len(cfg.Plugins) != 2 || cfg.Plugins[0] != "tracing" {
		t.Errorf("plugins = %v, want [tracing profiling]", cfg.Plugins)
	}
	if cfg.DisposeTimeout.Duration != 5*time.Second {
		t.Errorf("dispose_timeout = %v, want 5s", cfg.DisposeTimeout.Duration)
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	path := writeTemp(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Worker != "" {
		t.Errorf("expected empty worker, got %q", cfg.Worker)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/tether.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "{{invalid yaml")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_WORKER_BIN", "/opt/workers/expanded")

	yaml := `worker: ${TEST_WORKER_BIN}`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "worker", cfg.Worker, "/opt/workers/expanded")
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	yaml := `worker: /opt/workers/calc
bogus_key: should_fail
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "bogus_key") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_WhitespaceOnlyConfig(t *testing.T) {
	path := writeTemp(t, "   \n  \n  \n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed for whitespace-only config: %v", err)
	}
	if cfg.Worker != "" {
		t.Errorf("expected empty worker, got %q", cfg.Worker)
	}
}

func TestLoad_CommentsOnlyConfig(t *testing.T) {
	path := writeTemp(t, "# This is a comment\n# Another comment\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed for comments-only config: %v", err)
	}
	if cfg.Worker != "" {
		t.Errorf("expected empty worker, got %q", cfg.Worker)
	}
}

func TestDuration_InvalidFormat(t *testing.T) {
	yaml := `dispose_timeout: not-a-duration`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error should mention invalid duration, got: %v", err)
	}
}

func TestDuration_EmptyIsZero(t *testing.T) {
	yaml := `dispose_timeout: ""`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DisposeTimeout.Duration != 0 {
		t.Errorf("expected zero duration, got %v", cfg.DisposeTimeout.Duration)
	}
}

func TestDuration_Negative(t *testing.T) {
	// A negative timeout is the documented "wait forever" setting and must
	// survive parsing.
	yaml := `dispose_timeout: -1s`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DisposeTimeout.Duration != -time.Second {
		t.Errorf("expected -1s, got %v", cfg.DisposeTimeout.Duration)
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tether.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
