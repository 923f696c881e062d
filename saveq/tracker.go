package saveq

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// tracker is the commit tracker of §4.1: the state protected by a
// single mutex, exposing the largest contiguous "saved" prefix while
// in-flight and out-of-order writes are tracked separately. Queue
// embeds *tracker so its promoted GetLatest/GetLatestWait methods are
// reachable directly on a *Queue.
//
// Invariants (exercised by the scenario tests in saveq_test.go):
//
//	I1: savedIndex is the largest k s.t. [1,k] all exist in storage.
//	I2: saving and saved are disjoint; every key in either is > savedIndex.
//	I3: maxGap >= max(saving ∪ saved) - savedIndex when either is non-empty.
//	I4: lastTerm is non-decreasing across advances of savedIndex.
//	I5: enforced by Queue's construction-time ownership check, not here.
type tracker struct {
	mu sync.Mutex

	// indexInitialized is signaled when the reconciler completes.
	indexInitialized *sync.Cond
	// queueNonEmpty is signaled on enqueue; workers and settle wait on
	// it when the work queue is empty.
	queueNonEmpty *sync.Cond

	initialized bool
	savedIndex  uint64
	lastTerm    uint64

	// saving holds indices a worker currently has in flight (Phase B).
	saving map[uint64]struct{}
	// saved holds indices already written but not yet contiguous with
	// savedIndex, mapped to the term each was written with.
	saved map[uint64]uint64

	maxGap uint32

	queue      []*Request
	numWaiters int
	numWorkers int

	// savedIndexGauge mirrors savedIndex without requiring mu, so
	// metrics collection never contends the hot path (§9's note on
	// lock-free snapshots of concurrently-read state).
	savedIndexGauge atomic.Uint64
}

func newTracker(numWorkers int) *tracker {
	t := &tracker{
		saving:     make(map[uint64]struct{}),
		saved:      make(map[uint64]uint64),
		numWorkers: numWorkers,
	}
	t.indexInitialized = sync.NewCond(&t.mu)
	t.queueNonEmpty = sync.NewCond(&t.mu)
	return t
}

// GetLatest copies (lastTerm, savedIndex) into rid. It returns
// ErrNotInitialized if the reconciler has not yet run.
func (t *tracker) GetLatest(rid *Rid) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		return ErrNotInitialized
	}
	rid.Term = t.lastTerm
	rid.Index = t.savedIndex
	return nil
}

// GetLatestWait behaves like GetLatest but blocks on indexInitialized
// until the reconciler completes, or ctx is done. A watcher goroutine
// broadcasts indexInitialized on ctx cancellation so the waiting
// sync.Cond wakes and can reobserve ctx.Err(); sync.Cond has no native
// context-aware wait.
func (t *tracker) GetLatestWait(ctx context.Context, rid *Rid) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.initialized {
		rid.Term = t.lastTerm
		rid.Index = t.savedIndex
		return nil
	}

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			t.mu.Lock()
			t.indexInitialized.Broadcast()
			t.mu.Unlock()
		case <-stopWatch:
		}
	}()

	for !t.initialized {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.indexInitialized.Wait()
	}
	rid.Term = t.lastTerm
	rid.Index = t.savedIndex
	return nil
}

func (t *tracker) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}
