package saveq

import (
	"context"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/coldtoo/saveq/config"
	"github.com/coldtoo/saveq/log"
	"github.com/coldtoo/saveq/saveq/metrics"
	"github.com/coldtoo/saveq/storage"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Queue is the multi-worker append pipeline of §2: it accepts Requests
// from the consensus layer, dispatches them to a fixed pool of workers
// writing through a storage.Adapter, and exposes the longest
// contiguous saved prefix via its embedded tracker.
type Queue struct {
	*tracker

	memberID    uint64
	storage     storage.Adapter
	notifier    Notifier
	isSelf      IsSelf
	isReachable IsReachable
	metrics     *metrics.Collector

	numWorkers int

	eg      *errgroup.Group
	cancel  context.CancelFunc
	started bool
}

// Option configures a Queue at construction time.
type Option func(*Queue)

// WithIsSelf overrides the self-address check used by the
// construction-time single-owner guard (I5). Defaults to comparing
// against the process's own hostname.
func WithIsSelf(f IsSelf) Option {
	return func(q *Queue) { q.isSelf = f }
}

// WithIsReachable overrides the liveness check used to decide whether a
// recorded non-self owner address is still holding the member. Defaults
// to a short TCP dial.
func WithIsReachable(f IsReachable) Option {
	return func(q *Queue) { q.isReachable = f }
}

// WithMetrics attaches a metrics collector; nil (the default) disables
// metrics collection entirely.
func WithMetrics(c *metrics.Collector) Option {
	return func(q *Queue) { q.metrics = c }
}

// New constructs a Queue for memberID against adapter. It performs the
// single-owner ownership check (I5) and runs the initial reconciler
// pass synchronously, so GetLatest can be called immediately after New
// returns without waiting for Start.
func New(memberID uint64, adapter storage.Adapter, notifier Notifier, opts ...Option) (*Queue, error) {
	workers := config.GetDBConf().Workers()
	q := &Queue{
		tracker:     newTracker(workers),
		memberID:    memberID,
		storage:     adapter,
		notifier:    notifier,
		isSelf:      defaultIsSelf,
		isReachable: defaultIsReachable,
		numWorkers:  workers,
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := q.checkOwnership(); err != nil {
		return nil, err
	}
	if err := q.initSavedIndex(); err != nil {
		return nil, err
	}
	return q, nil
}

func defaultIsSelf(addr string) bool {
	hostname, err := os.Hostname()
	if err != nil {
		return false
	}
	return addr == hostname
}

// defaultIsReachable dials addr with a short timeout, treating any
// connection failure as "the owner is dead" rather than "unknown."
func defaultIsReachable(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// checkOwnership implements the construction-time AlreadyOwned guard
// (I5), supplemented per the Java original (gondola.getNetwork().isActive):
// a recorded owner address is only fatal if it is not this process and
// is still reachable, so a dead owner's slot can be reclaimed.
func (q *Queue) checkOwnership() error {
	addr, err := q.storage.GetOwnerAddress(q.memberID)
	if err != nil {
		return errors.Wrapf(ErrStorage, "get owner address member=%d: %v", q.memberID, err)
	}
	if addr != "" && !q.isSelf(addr) {
		if q.isReachable(addr) {
			return errors.Wrapf(ErrAlreadyOwned, "member=%d storage owned by address=%s", q.memberID, addr)
		}
		log.Warn("saveq: reclaiming ownership from unreachable address").
			Uint64("member_id", q.memberID).Str("address", addr).Record()
	}

	hostname, _ := os.Hostname()
	if err := q.storage.SetOwnerAddress(q.memberID, hostname); err != nil {
		return errors.Wrapf(ErrStorage, "set owner address member=%d: %v", q.memberID, err)
	}
	if err := q.storage.SetOwnerPID(q.memberID, strconv.Itoa(os.Getpid())); err != nil {
		return errors.Wrapf(ErrStorage, "set owner pid member=%d: %v", q.memberID, err)
	}
	return nil
}

// Size returns the current work-queue depth.
func (q *Queue) Size() int {
	return q.tracker.size()
}

// Enqueue appends req to the work queue and wakes a parked worker. The
// caller releases ownership of req; a worker releases it once
// processed regardless of outcome.
func (q *Queue) Enqueue(req *Request) {
	q.mu.Lock()
	q.queue = append(q.queue, req)
	q.queueNonEmpty.Signal()
	depth := len(q.queue)
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.SetQueueDepth(depth)
	}
}

// Start launches the worker pool under ctx. It can only be called once.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return errors.New("saveq: Start called more than once")
	}
	q.started = true
	q.mu.Unlock()

	workerCtx, cancel := context.WithCancel(ctx)
	eg, workerCtx := errgroup.WithContext(workerCtx)
	q.eg = eg
	q.cancel = cancel

	// Wake every parked worker (and any settle() call) so a cancelled
	// context is observed promptly instead of only at the next
	// periodic timeout.
	go func() {
		<-workerCtx.Done()
		q.mu.Lock()
		q.queueNonEmpty.Broadcast()
		q.mu.Unlock()
	}()

	for i := 0; i < q.numWorkers; i++ {
		id := i
		eg.Go(func() error {
			q.runWorker(workerCtx, id)
			return nil
		})
	}
	return nil
}

// Stop cancels the worker pool, waits for in-flight writes to finish,
// and closes the storage adapter, combining any worker error with the
// adapter's Close error rather than discarding one.
func (q *Queue) Stop() error {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	q.queueNonEmpty.Broadcast()
	q.mu.Unlock()

	var workerErr error
	if q.eg != nil {
		workerErr = q.eg.Wait()
	}

	log.Info("saveq: stopped").Uint64("member_id", q.memberID).Record()
	return multierr.Combine(workerErr, q.storage.Close())
}
