package saveq

import (
	"context"
	"errors"

	"github.com/coldtoo/saveq/log"
)

// runWorker is one worker of §4.2: pop a request, process it via the
// three-phase append handler, release it, repeat. ctx cancellation is
// the idiomatic substitute for the original's thread-interruption
// shutdown signal.
func (q *Queue) runWorker(ctx context.Context, id int) {
	if q.metrics != nil {
		q.metrics.SetWorkerBusy(id, false)
	}
	for {
		req, ok := q.dequeue(ctx)
		if !ok {
			return
		}
		if q.metrics != nil {
			q.metrics.SetWorkerBusy(id, true)
			q.metrics.SetQueueDepth(q.Size())
		}
		q.processRequest(req)
		if q.metrics != nil {
			q.metrics.SetWorkerBusy(id, false)
		}
	}
}

// dequeue waits on queueNonEmpty while the work queue is empty,
// tracking numWaiters (settle's only signal of quiescence) around the
// wait, and pops one request. It returns ok=false once ctx is done.
func (q *Queue) dequeue(ctx context.Context) (*Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.queue) == 0 {
		if ctx.Err() != nil {
			return nil, false
		}
		q.numWaiters++
		q.queueNonEmpty.Wait()
		q.numWaiters--
	}

	req := q.queue[0]
	q.queue = q.queue[1:]
	return req, true
}

// processRequest runs the append handler for req and applies §7's
// error propagation policy: a Storage/Inconsistent error is logged and
// reported to the notifier but does not stop the worker; Cancelled
// unwinds silently.
func (q *Queue) processRequest(req *Request) {
	err := q.appendEntry(req)
	if err == nil {
		return
	}
	if errors.Is(err, ErrCancelled) {
		return
	}

	log.Error("saveq: append handler failed").
		Uint64("member_id", q.memberID).
		Uint64("prev_index", req.PrevIndex).
		Err("err", err).
		Record()
	if q.metrics != nil {
		q.metrics.IncError()
	}
	q.notifier.IndexUpdated(true, false)
}
