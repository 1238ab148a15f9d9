package metrics

import (
	"sync"
	"testing"
)

func TestCollector_CountsAndSnapshot(t *testing.T) {
	c := NewCollector("w-1", "/usr/bin/worker")

	c.IncCallsStarted()
	c.IncCallsStarted()
	c.IncCallsResolved()
	c.IncCallsRejected()
	c.IncSpawnSuccess()
	c.IncCrashes()
	c.IncUnknownMessages()
	c.IncUnmatchedIDs()
	c.IncDisposals()

	snap := c.Snapshot()
	if snap.CallsStarted != 2 {
		t.Errorf("CallsStarted = %d, want 2", snap.CallsStarted)
	}
	if snap.CallsResolved != 1 {
		t.Errorf("CallsResolved = %d, want 1", snap.CallsResolved)
	}
	if snap.CallsRejected != 1 {
		t.Errorf("CallsRejected = %d, want 1", snap.CallsRejected)
	}
	if snap.SpawnSuccess != 1 {
		t.Errorf("SpawnSuccess = %d, want 1", snap.SpawnSuccess)
	}
	if snap.Crashes != 1 {
		t.Errorf("Crashes = %d, want 1", snap.Crashes)
	}
	if snap.UnknownMessages != 1 {
		t.Errorf("UnknownMessages = %d, want 1", snap.UnknownMessages)
	}
	if snap.UnmatchedIDs != 1 {
		t.Errorf("UnmatchedIDs = %d, want 1", snap.UnmatchedIDs)
	}
	if snap.Disposals != 1 {
		t.Errorf("Disposals = %d, want 1", snap.Disposals)
	}
	if snap.WorkerID != "w-1" {
		t.Errorf("WorkerID = %q, want %q", snap.WorkerID, "w-1")
	}
	if snap.EntryPoint != "/usr/bin/worker" {
		t.Errorf("EntryPoint = %q, want %q", snap.EntryPoint, "/usr/bin/worker")
	}
}

func TestCollector_NilReceiverSafe(t *testing.T) {
	var c *Collector

	// None of these may panic.
	c.IncCallsStarted()
	c.IncCallsResolved()
	c.IncCallsRejected()
	c.IncSpawnSuccess()
	c.IncSpawnFailure()
	c.IncCrashes()
	c.IncDisposals()
	c.IncUnknownMessages()
	c.IncUnmatchedIDs()
	c.IncDecodeErrors()

	if snap := c.Snapshot(); snap.CallsStarted != 0 {
		t.Errorf("nil collector snapshot = %+v, want zero", snap)
	}
}

func TestCollector_ConcurrentIncrements(t *testing.T) {
	c := NewCollector("w-2", "fake")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.IncCallsStarted()
		}()
	}
	wg.Wait()

	if got := c.Snapshot().CallsStarted; got != 50 {
		t.Errorf("CallsStarted = %d, want 50", got)
	}
}
