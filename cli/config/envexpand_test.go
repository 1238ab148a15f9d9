package config

import (
	"testing"
)

func TestExpandEnv_SetVar(t *testing.T) {
	t.Setenv("TEST_VAR", "hello")

	got := ExpandEnv("worker: ${TEST_VAR}")
	want := "worker: hello"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandEnv_UnsetVar(t *testing.T) {
	got := ExpandEnv("worker: ${UNSET_VAR_12345}")
	want := "worker: "
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandEnv_DefaultUsedWhenUnset(t *testing.T) {
	got := ExpandEnv("worker: ${UNSET_VAR_12345:-fallback}")
	want := "worker: fallback"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandEnv_DefaultIgnoredWhenSet(t *testing.T) {
	t.Setenv("TEST_VAR", "real")

	got := ExpandEnv("worker: ${TEST_VAR:-fallback}")
	want := "worker: real"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandEnv_DefaultUsedWhenEmpty(t *testing.T) {
	t.Setenv("TEST_VAR", "")

	got := ExpandEnv("worker: ${TEST_VAR:-fallback}")
	want := "worker: fallback"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandEnv_MultipleVars(t *testing.T) {
	t.Setenv("DIR_A", "left")
	t.Setenv("DIR_B", "right")

	got := ExpandEnv("${DIR_A}:${DIR_B}")
	want := "left:right"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandEnv_NoVars(t *testing.T) {
	input := "no variables here"
	got := ExpandEnv(input)
	if got != input {
		t.Errorf("got %q, want %q", got, input)
	}
}

func TestExpandEnv_NestedInYAML(t *testing.T) {
	t.Setenv("WORKER_BIN", "/opt/workers/calc")
	t.Setenv("WORKER_HOME", "/var/lib/calc")

	input := `worker: ${WORKER_BIN}
work_dir: ${WORKER_HOME}
plugins:
  - tracing`

	got := ExpandEnv(input)
	want := `worker: /opt/workers/calc
work_dir: /var/lib/calc
plugins:
  - tracing`

	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}
