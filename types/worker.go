// Package types defines the wire protocol messages and worker identity
// shared by the parent-side proxy and the worker bootstrap.
package types

import "fmt"

// WorkerMeta identifies one spawned worker. It is generated by the parent at
// spawn time, sent to the worker in InitMessage, and attached as context to
// every log entry on both sides.
type WorkerMeta struct {
	// WorkerID is a unique identifier for this worker instance.
	WorkerID string `msgpack:"worker_id"`
	// EntryPoint is the worker binary the parent forked.
	EntryPoint string `msgpack:"entry_point"`
}

// Validate checks that required identity fields are present.
func (m *WorkerMeta) Validate() error {
	if m == nil {
		return fmt.Errorf("worker metadata is nil")
	}
	if m.WorkerID == "" {
		return fmt.Errorf("worker_id is required")
	}
	if m.EntryPoint == "" {
		return fmt.Errorf("entry_point is required")
	}
	return nil
}
