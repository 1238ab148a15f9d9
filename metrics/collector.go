// Package metrics provides per-handle call metrics collection.
//
// The Collector accumulates counters for a single worker handle. It is a
// leaf package with no internal dependencies. All increment methods are
// nil-receiver safe so callers never need to guard instrumentation sites.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of the counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Call lifecycle
	CallsStarted  int64
	CallsResolved int64
	CallsRejected int64

	// Worker lifecycle
	SpawnSuccess int64
	SpawnFailure int64
	Crashes      int64
	Disposals    int64

	// Protocol
	UnknownMessages int64
	UnmatchedIDs    int64
	DecodeErrors    int64

	// Dimensions (informational, set at construction)
	WorkerID   string
	EntryPoint string
}

// Collector accumulates metrics for a single worker handle.
// Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	callsStarted  int64
	callsResolved int64
	callsRejected int64

	spawnSuccess int64
	spawnFailure int64
	crashes      int64
	disposals    int64

	unknownMessages int64
	unmatchedIDs    int64
	decodeErrors    int64

	workerID   string
	entryPoint string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(workerID, entryPoint string) *Collector {
	return &Collector{
		workerID:   workerID,
		entryPoint: entryPoint,
	}
}

// IncCallsStarted increments the started-call counter.
func (c *Collector) IncCallsStarted() { c.inc(func() { c.callsStarted++ }) }

// IncCallsResolved increments the resolved-call counter.
func (c *Collector) IncCallsResolved() { c.inc(func() { c.callsResolved++ }) }

// IncCallsRejected increments the rejected-call counter. Counts both remote
// rejections and crash fan-out rejections.
func (c *Collector) IncCallsRejected() { c.inc(func() { c.callsRejected++ }) }

// IncSpawnSuccess increments the successful-spawn counter.
func (c *Collector) IncSpawnSuccess() { c.inc(func() { c.spawnSuccess++ }) }

// IncSpawnFailure increments the failed-spawn counter.
func (c *Collector) IncSpawnFailure() { c.inc(func() { c.spawnFailure++ }) }

// IncCrashes increments the crash counter.
func (c *Collector) IncCrashes() { c.inc(func() { c.crashes++ }) }

// IncDisposals increments the disposal counter.
func (c *Collector) IncDisposals() { c.inc(func() { c.disposals++ }) }

// IncUnknownMessages increments the unknown-message-kind counter.
func (c *Collector) IncUnknownMessages() { c.inc(func() { c.unknownMessages++ }) }

// IncUnmatchedIDs increments the counter for replies carrying a correlation
// id with no pending record.
func (c *Collector) IncUnmatchedIDs() { c.inc(func() { c.unmatchedIDs++ }) }

// IncDecodeErrors increments the frame/message decode error counter.
func (c *Collector) IncDecodeErrors() { c.inc(func() { c.decodeErrors++ }) }

// inc runs fn under the collector lock. Nil-receiver safe.
func (c *Collector) inc(fn func()) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

// Snapshot returns a point-in-time copy of all counters.
// Nil-receiver safe: returns a zero Snapshot.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		CallsStarted:    c.callsStarted,
		CallsResolved:   c.callsResolved,
		CallsRejected:   c.callsRejected,
		SpawnSuccess:    c.spawnSuccess,
		SpawnFailure:    c.spawnFailure,
		Crashes:         c.crashes,
		Disposals:       c.disposals,
		UnknownMessages: c.unknownMessages,
		UnmatchedIDs:    c.unmatchedIDs,
		DecodeErrors:    c.decodeErrors,
		WorkerID:        c.workerID,
		EntryPoint:      c.entryPoint,
	}
}
