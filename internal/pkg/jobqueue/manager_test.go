package jobqueue

import (
	"testing"
	"time"
)

// A sweep may be in flight when Stop runs; the worker must still observe the
// closed stop channel on its next select and exit, or Stop hangs on wg.Wait.
func TestManagerStopUnblocksStaleClaimWorker(t *testing.T) {
	m := &Manager{
		queue:  NewQueue(1),
		stopCh: make(chan struct{}),
	}
	m.staleClaimTicker = time.NewTicker(time.Millisecond)
	m.running = true
	m.wg.Add(1)
	go m.staleClaimWorker()

	// Let the worker loop through several sweep iterations first.
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return; stale claim worker is stuck")
	}
}
