package saveq

import (
	"os"
	"strconv"

	"github.com/coldtoo/saveq/log"
	"github.com/pkg/errors"
)

// initSavedIndex is the reconciler of §4.4. It runs under the tracker's
// mutex; callers must have already quiesced the worker pool (true at
// construction time, before Start, and true inside Settle, which drains
// the queue and waits for every worker to park before calling this).
func (q *Queue) initSavedIndex() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.initSavedIndexLocked()
}

func (q *Queue) initSavedIndexLocked() error {
	newLastTerm := q.lastTerm
	newSavedIndex := q.savedIndex

	last, err := q.storage.GetLast(q.memberID)
	if err != nil {
		return errors.Wrapf(ErrStorage, "get last entry member=%d: %v", q.memberID, err)
	}
	var lastIndex uint64
	if last != nil {
		newLastTerm = last.Term
		lastIndex = last.Index
	}

	pid, err := q.storage.GetOwnerPID(q.memberID)
	if err != nil {
		return errors.Wrapf(ErrStorage, "get owner pid member=%d: %v", q.memberID, err)
	}
	selfPID := strconv.Itoa(os.Getpid())
	if pid != "" && pid != selfPID {
		log.Warn("saveq: another process may be updating the same storage rows").
			Uint64("member_id", q.memberID).
			Str("owner_pid", pid).
			Str("self_pid", selfPID).
			Record()
	}

	maxGap, err := q.storage.GetMaxGap(q.memberID)
	if err != nil {
		return errors.Wrapf(ErrStorage, "get max_gap member=%d: %v", q.memberID, err)
	}
	q.maxGap = maxGap

	log.Info("saveq: initializing saved index").
		Uint64("member_id", q.memberID).
		Uint64("last_term", newLastTerm).
		Uint64("last_index", lastIndex).
		Int("max_gap", int(maxGap)).
		Record()

	// Scan back from last_index - maxGap - 1 (one further back than
	// the persisted gap so the loop can recover the term of the entry
	// just before the first missing slot).
	start := uint64(1)
	if lastIndex > uint64(maxGap)+1 {
		start = lastIndex - uint64(maxGap) - 1
	}

	for i := start; i <= lastIndex; i++ {
		entry, err := q.storage.Get(q.memberID, i)
		if err != nil {
			return errors.Wrapf(ErrStorage, "get member=%d index=%d: %v", q.memberID, i, err)
		}
		if entry == nil {
			log.Info("saveq: found missing index during reconciliation, deleting subsequent entries").
				Uint64("member_id", q.memberID).
				Uint64("index", i).
				Uint64("last_index", lastIndex).
				Record()
			deleted, err := q.deleteRange(i+1, int64(lastIndex), newSavedIndex)
			if err != nil {
				return err
			}
			if q.metrics != nil {
				q.metrics.AddDeletes(deleted)
			}
			break
		}
		newLastTerm = entry.Term
		newSavedIndex = entry.Index
	}

	count, err := q.storage.Count(q.memberID)
	if err != nil {
		return errors.Wrapf(ErrStorage, "count member=%d: %v", q.memberID, err)
	}
	if count != newSavedIndex {
		return errors.Wrapf(ErrInconsistent, "member=%d reconciled saved_index=%d but storage has %d entries", q.memberID, newSavedIndex, count)
	}

	q.lastTerm = newLastTerm
	q.savedIndex = newSavedIndex
	q.savedIndexGauge.Store(newSavedIndex)
	q.queue = nil
	q.saved = make(map[uint64]uint64)
	q.saving = make(map[uint64]struct{})

	q.initialized = true
	q.indexInitialized.Broadcast()
	if q.metrics != nil {
		q.metrics.SetSavedIndex(newSavedIndex)
		q.metrics.SetQueueDepth(0)
	}

	if err := q.storage.SetMaxGap(q.memberID, 0); err != nil {
		return errors.Wrapf(ErrStorage, "reset max_gap member=%d: %v", q.memberID, err)
	}
	q.maxGap = 0
	return nil
}
