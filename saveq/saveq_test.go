package saveq

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coldtoo/saveq/storage"
	"github.com/stretchr/testify/require"
)

// fakeNotifier records IndexUpdated calls for assertions.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

type notifyCall struct {
	isError bool
	deleted bool
}

func (n *fakeNotifier) IndexUpdated(isError, deleted bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{isError: isError, deleted: deleted})
}

func (n *fakeNotifier) errors() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, c := range n.calls {
		if c.isError {
			count++
		}
	}
	return count
}

func (n *fakeNotifier) advances() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, c := range n.calls {
		if !c.isError {
			count++
		}
	}
	return count
}

func newTestQueue(t *testing.T, memberID uint64) (*Queue, *storage.MemAdapter, *fakeNotifier) {
	t.Helper()
	return newTestQueueWithWorkers(t, memberID, 1)
}

func newTestQueueWithWorkers(t *testing.T, memberID uint64, workers int) (*Queue, *storage.MemAdapter, *fakeNotifier) {
	t.Helper()
	adapter := storage.NewMemAdapter()
	notifier := &fakeNotifier{}
	q, err := New(memberID, adapter, notifier, func(q *Queue) {
		q.numWorkers = workers
		q.tracker.numWorkers = workers
	})
	require.NoError(t, err)
	return q, adapter, notifier
}

// delayAdapter wraps a MemAdapter and blocks Append at a single chosen
// index until told to proceed, used to force out-of-order completion
// deterministically in tests instead of racing on sleeps.
type delayAdapter struct {
	*storage.MemAdapter
	blockIndex uint64
	reached    chan struct{}
	proceed    chan struct{}
}

func newDelayAdapter(blockIndex uint64) *delayAdapter {
	return &delayAdapter{
		MemAdapter: storage.NewMemAdapter(),
		blockIndex: blockIndex,
		reached:    make(chan struct{}),
		proceed:    make(chan struct{}),
	}
}

func (d *delayAdapter) Append(memberID, term, index uint64, payload []byte) error {
	if index == d.blockIndex {
		close(d.reached)
		<-d.proceed
	}
	return d.MemAdapter.Append(memberID, term, index, payload)
}

func waitForSavedIndex(t *testing.T, q *Queue, want uint64, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var rid Rid
		require.NoError(t, q.GetLatest(&rid))
		if rid.Index == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	var rid Rid
	require.NoError(t, q.GetLatest(&rid))
	require.Equal(t, want, rid.Index, "saved index did not converge")
}

// Scenario 1: in-order writes with a single worker advance the saved
// index 0 -> 1 -> 2 -> 3 with saved left empty throughout.
func TestQueue_InOrderWrites(t *testing.T) {
	q, adapter, _ := newTestQueue(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx))
	defer q.Stop()

	q.Enqueue(&Request{PrevIndex: 0, Term: 1, Payload: []byte("a")})
	q.Enqueue(&Request{PrevIndex: 1, Term: 1, Payload: []byte("b")})
	q.Enqueue(&Request{PrevIndex: 2, Term: 1, Payload: []byte("c")})

	waitForSavedIndex(t, q, 3, time.Second)

	var rid Rid
	require.NoError(t, q.GetLatest(&rid))
	require.EqualValues(t, 1, rid.Term)
	require.EqualValues(t, 3, rid.Index)

	q.mu.Lock()
	require.Empty(t, q.saved)
	require.Empty(t, q.saving)
	q.mu.Unlock()

	count, err := adapter.Count(1)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)
}

// Scenario 2: out-of-order completion. Two workers pick up indices 1
// and 2; worker A is held mid-write on index 1 until worker B has
// already finished index 2, so the intermediate state must show
// saving={1}, saved={2->term}, saved_index=0 before A is released.
func TestQueue_OutOfOrderCompletion(t *testing.T) {
	adapter := newDelayAdapter(1)
	notifier := &fakeNotifier{}
	q, err := New(9, adapter, notifier, func(q *Queue) {
		q.numWorkers = 2
		q.tracker.numWorkers = 2
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx))
	defer q.Stop()

	q.Enqueue(&Request{PrevIndex: 0, Term: 1, Payload: []byte("a")})
	q.Enqueue(&Request{PrevIndex: 1, Term: 1, Payload: []byte("b")})

	select {
	case <-adapter.reached:
	case <-time.After(time.Second):
		t.Fatal("worker never reached the blocked append at index 1")
	}

	deadline := time.Now().Add(time.Second)
	for {
		e, err := adapter.Get(9, 2)
		require.NoError(t, err)
		if e != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("index 2 never completed while index 1 was blocked")
		}
		time.Sleep(time.Millisecond)
	}

	q.mu.Lock()
	_, saving1 := q.saving[1]
	term2, saved2 := q.saved[2]
	savedIndex := q.savedIndex
	q.mu.Unlock()
	require.True(t, saving1)
	require.True(t, saved2)
	require.EqualValues(t, 1, term2)
	require.Zero(t, savedIndex)

	close(adapter.proceed)

	waitForSavedIndex(t, q, 2, time.Second)
	q.mu.Lock()
	require.Empty(t, q.saved)
	require.Empty(t, q.saving)
	q.mu.Unlock()
}

// Scenario 6: settle quiesces a pool of parked workers, runs the
// reconciler, and leaves the pool able to resume ordinary work.
func TestQueue_SettleQuiescesParkedWorkers(t *testing.T) {
	q, adapter, _ := newTestQueueWithWorkers(t, 10, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx))
	defer q.Stop()

	var rid Rid
	require.NoError(t, q.Settle(ctx, &rid))
	require.Zero(t, rid.Index)
	require.Zero(t, rid.Term)

	q.Enqueue(&Request{PrevIndex: 0, Term: 1, Payload: []byte("x")})
	waitForSavedIndex(t, q, 1, time.Second)

	count, err := adapter.Count(10)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

// Scenario 3: an idempotent re-send of the same index while a write is
// in flight must not trigger a second storage.Append call.
func TestQueue_IdempotentResend(t *testing.T) {
	q, adapter, _ := newTestQueue(t, 2)

	q.mu.Lock()
	q.saving[5] = struct{}{}
	q.mu.Unlock()

	noop, deleted, err := q.decide(5, 1, []byte("x"))
	require.NoError(t, err)
	require.True(t, noop)
	require.Zero(t, deleted)

	count, err := adapter.Count(2)
	require.NoError(t, err)
	require.Zero(t, count)
}

// Scenario 4: a divergent overwrite below saved_index truncates the
// tail backward and re-appends the new payload.
func TestQueue_DivergentOverwrite(t *testing.T) {
	q, adapter, notifier := newTestQueue(t, 3)

	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, adapter.Append(3, 1, i, []byte("A")))
	}
	q.mu.Lock()
	q.savedIndex = 10
	q.lastTerm = 1
	q.initialized = true
	q.mu.Unlock()

	req := &Request{PrevIndex: 6, Term: 2, Payload: []byte("B")}
	require.NoError(t, q.appendEntry(req))

	var rid Rid
	require.NoError(t, q.GetLatest(&rid))
	require.EqualValues(t, 7, rid.Index)
	require.EqualValues(t, 2, rid.Term)

	entry, err := adapter.Get(3, 7)
	require.NoError(t, err)
	require.Equal(t, []byte("B"), entry.Data)

	for i := uint64(8); i <= 10; i++ {
		e, err := adapter.Get(3, i)
		require.NoError(t, err)
		require.Nil(t, e)
	}
	require.GreaterOrEqual(t, notifier.advances(), 1)
}

// Scenario 5: gap-aware recovery. Seed storage with entries at
// {1,2,3,5,6} and max_gap=3; the reconciler should scan from index 2,
// find 4 missing, delete 5 and 6, and settle on saved_index=3.
func TestQueue_GapAwareRecovery(t *testing.T) {
	adapter := storage.NewMemAdapter()
	for _, i := range []uint64{1, 2, 3, 5, 6} {
		require.NoError(t, adapter.Append(4, 1, i, []byte("x")))
	}
	require.NoError(t, adapter.SetMaxGap(4, 3))

	notifier := &fakeNotifier{}
	q, err := New(4, adapter, notifier)
	require.NoError(t, err)

	var rid Rid
	require.NoError(t, q.GetLatest(&rid))
	require.EqualValues(t, 3, rid.Index)

	count, err := adapter.Count(4)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)

	gap, err := adapter.GetMaxGap(4)
	require.NoError(t, err)
	require.Zero(t, gap)
}

// P4: truncate followed by settle resets (last_term, saved_index) to
// (0, 0) and empties storage.
func TestQueue_TruncateThenSettle(t *testing.T) {
	q, adapter, _ := newTestQueue(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx))
	defer q.Stop()

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, adapter.Append(5, 1, i, []byte("x")))
	}
	q.mu.Lock()
	q.savedIndex = 5
	q.lastTerm = 1
	q.mu.Unlock()

	require.NoError(t, q.Truncate(ctx))

	var rid Rid
	require.NoError(t, q.GetLatest(&rid))
	require.Zero(t, rid.Index)
	require.Zero(t, rid.Term)

	count, err := adapter.Count(5)
	require.NoError(t, err)
	require.Zero(t, count)
}

// P3: a duplicate enqueue with identical payload at an index already
// below saved_index is a no-op.
func TestQueue_DuplicateBelowSavedIndex_NoOp(t *testing.T) {
	q, adapter, _ := newTestQueue(t, 6)
	require.NoError(t, adapter.Append(6, 1, 1, []byte("same")))
	q.mu.Lock()
	q.savedIndex = 1
	q.lastTerm = 1
	q.initialized = true
	q.mu.Unlock()

	noop, deleted, err := q.decide(1, 1, []byte("same"))
	require.NoError(t, err)
	require.True(t, noop)
	require.Zero(t, deleted)
}

// GetLatest fails with ErrNotInitialized before the reconciler runs.
func TestTracker_GetLatest_NotInitialized(t *testing.T) {
	tr := newTracker(1)
	var rid Rid
	require.ErrorIs(t, tr.GetLatest(&rid), ErrNotInitialized)
}

// GetLatestWait unblocks once the reconciler runs, and also honors
// context cancellation.
func TestTracker_GetLatestWait(t *testing.T) {
	tr := newTracker(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var rid Rid
	require.ErrorIs(t, tr.GetLatestWait(ctx, &rid), context.DeadlineExceeded)

	done := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		tr.mu.Lock()
		tr.initialized = true
		tr.savedIndex = 42
		tr.lastTerm = 7
		tr.indexInitialized.Broadcast()
		tr.mu.Unlock()
		close(done)
	}()

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	require.NoError(t, tr.GetLatestWait(ctx2, &rid))
	require.EqualValues(t, 42, rid.Index)
	require.EqualValues(t, 7, rid.Term)
	<-done
}

// AlreadyOwned is fatal at construction when another live address owns
// the member's storage rows.
func TestQueue_AlreadyOwned(t *testing.T) {
	adapter := storage.NewMemAdapter()
	require.NoError(t, adapter.SetOwnerAddress(7, "some-other-host"))

	_, err := New(7, adapter, &fakeNotifier{}, func(q *Queue) {
		q.isSelf = func(addr string) bool { return false }
		q.isReachable = func(addr string) bool { return true }
	})
	require.ErrorIs(t, err, ErrAlreadyOwned)
}

// A recorded owner address that no longer answers is reclaimed instead
// of permanently refusing construction.
func TestQueue_ReclaimsFromDeadOwner(t *testing.T) {
	adapter := storage.NewMemAdapter()
	require.NoError(t, adapter.SetOwnerAddress(7, "some-dead-host"))

	q, err := New(7, adapter, &fakeNotifier{}, func(q *Queue) {
		q.isSelf = func(addr string) bool { return false }
		q.isReachable = func(addr string) bool { return false }
	})
	require.NoError(t, err)
	require.NotNil(t, q)

	addr, err := adapter.GetOwnerAddress(7)
	require.NoError(t, err)
	require.NotEqual(t, "some-dead-host", addr)
}
