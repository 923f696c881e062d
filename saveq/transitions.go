package saveq

import (
	"context"
	"time"

	"github.com/coldtoo/saveq/log"
	"github.com/pkg/errors"
)

// Settle is called whenever the Raft role changes (§4.5): it discards
// pending work, waits for every worker to park, and reconciles.
func (q *Queue) Settle(ctx context.Context, rid *Rid) error {
	q.mu.Lock()
	log.Info("saveq: settling storage").
		Uint64("member_id", q.memberID).
		Int("work_queue", len(q.queue)).
		Int("waiters", q.numWaiters).
		Int("max_gap", int(q.maxGap)).
		Record()

	// Discard pending work; the requests are simply dropped for GC,
	// there is nothing to explicitly release in Go.
	q.queue = nil

	for q.started && q.numWaiters < q.numWorkers {
		if err := ctx.Err(); err != nil {
			q.mu.Unlock()
			return err
		}
		q.waitTimeoutLocked(100 * time.Millisecond)
	}
	q.mu.Unlock()

	if err := q.initSavedIndex(); err != nil {
		return err
	}
	return q.GetLatest(rid)
}

// waitTimeoutLocked waits on queueNonEmpty for at most d. Nothing else
// wakes settle while workers are parked (workers park silently rather
// than broadcasting), so this recreates the source's
// Condition.await(100, MILLISECONDS) polling loop; mu must be held on
// entry and is held again on return.
func (q *Queue) waitTimeoutLocked(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		q.mu.Lock()
		q.queueNonEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()
	q.queueNonEmpty.Wait()
}

// Truncate wipes the entire log, used when a member enters a passive
// replica role.
func (q *Queue) Truncate(ctx context.Context) error {
	log.Info("saveq: truncating log").Uint64("member_id", q.memberID).Record()

	last, err := q.storage.GetLast(q.memberID)
	if err != nil {
		return errors.Wrapf(ErrStorage, "get last entry member=%d: %v", q.memberID, err)
	}
	if last != nil {
		if _, err := q.deleteRange(1, int64(last.Index), 0); err != nil {
			return err
		}
	}

	q.mu.Lock()
	q.lastTerm = 0
	q.savedIndex = 0
	q.savedIndexGauge.Store(0)
	q.mu.Unlock()

	var rid Rid
	if err := q.Settle(ctx, &rid); err != nil {
		return err
	}
	if rid.Index != 0 || rid.Term != 0 {
		return errors.Wrapf(ErrInconsistent, "member=%d truncate did not clear the log: rid=%+v", q.memberID, rid)
	}
	return nil
}

// deleteRange deletes entries in [from, to] from highest index down to
// lowest, per §4.6. Deleting backwards keeps the log contiguous-from-
// the-bottom at every step, so max_gap never needs to grow mid-delete.
// If to < 0 it is resolved from storage's last stored entry, falling
// back to savedIndexHint when the log is empty (mirroring the source's
// deleteFrom, which falls back to storage.getLastLogEntry rather than
// the in-memory savedIndex alone).
func (q *Queue) deleteRange(from uint64, to int64, savedIndexHint uint64) (int, error) {
	resolvedTo := to
	if resolvedTo < 0 {
		resolvedTo = int64(savedIndexHint)
		last, err := q.storage.GetLast(q.memberID)
		if err != nil {
			return 0, errors.Wrapf(ErrStorage, "get last entry member=%d: %v", q.memberID, err)
		}
		if last != nil {
			resolvedTo = int64(last.Index)
		}
	}

	deleted := 0
	for i := resolvedTo; i >= int64(from); i-- {
		idx := uint64(i)
		entry, err := q.storage.Get(q.memberID, idx)
		if err != nil {
			return deleted, errors.Wrapf(ErrStorage, "get member=%d index=%d: %v", q.memberID, idx, err)
		}
		if entry == nil {
			continue
		}
		if err := q.storage.Delete(q.memberID, idx); err != nil {
			return deleted, errors.Wrapf(ErrStorage, "delete member=%d index=%d: %v", q.memberID, idx, err)
		}
		log.Debug("saveq: deleted index").Uint64("member_id", q.memberID).Uint64("index", idx).Record()
		deleted++
	}
	return deleted, nil
}
