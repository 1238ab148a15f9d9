package types

import "testing"

func TestKind_Direction(t *testing.T) {
	requests := []Kind{KindInit, KindCall, KindDispose}
	for _, k := range requests {
		if !k.IsRequest() {
			t.Errorf("%q.IsRequest() = false, want true", k)
		}
		if k.IsReply() {
			t.Errorf("%q.IsReply() = true, want false", k)
		}
	}

	replies := []Kind{KindInitialized, KindResult, KindRejection, KindDisposeCompleted}
	for _, k := range replies {
		if !k.IsReply() {
			t.Errorf("%q.IsReply() = false, want true", k)
		}
		if k.IsRequest() {
			t.Errorf("%q.IsRequest() = true, want false", k)
		}
	}

	if Kind("telemetry").IsRequest() || Kind("telemetry").IsReply() {
		t.Error("unknown kind claims a direction")
	}
}

func TestWorkerMeta_Validate(t *testing.T) {
	valid := &WorkerMeta{WorkerID: "w-1", EntryPoint: "/usr/bin/worker"}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid meta rejected: %v", err)
	}

	cases := []struct {
		name string
		meta *WorkerMeta
	}{
		{"nil", nil},
		{"missing worker id", &WorkerMeta{EntryPoint: "/usr/bin/worker"}},
		{"missing entry point", &WorkerMeta{WorkerID: "w-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.meta.Validate(); err == nil {
				t.Error("invalid meta accepted")
			}
		})
	}
}
