package saveq

import (
	"bytes"

	"github.com/coldtoo/saveq/config"
	"github.com/coldtoo/saveq/log"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// appendEntry runs the three-phase protocol of §4.3 for req.
//
// Phase A (decide) and Phase C (reconcile) run under the tracker's
// mutex; Phase B (the storage write) runs unlocked since it is the
// only operation expected to block on I/O for any meaningful time.
func (q *Queue) appendEntry(req *Request) error {
	index := req.index()
	term := req.Term

	noop, deletedCount, err := q.decide(index, term, req.Payload)
	if err != nil {
		return err
	}
	if noop {
		return nil
	}
	if deletedCount > 0 {
		if q.metrics != nil {
			q.metrics.AddDeletes(deletedCount)
		}
		q.notifier.IndexUpdated(false, true)
	}

	if err := q.storage.Append(q.memberID, term, index, req.Payload); err != nil {
		q.mu.Lock()
		delete(q.saving, index)
		q.mu.Unlock()
		return errors.Wrapf(ErrStorage, "append member=%d index=%d: %v", q.memberID, index, err)
	}

	if config.GetTracingConf().Enabled() {
		log.Debug("saveq: appended entry").
			Uint64("member_id", q.memberID).
			Uint64("index", index).
			Uint64("term", term).
			Str("size", humanize.Bytes(uint64(len(req.Payload)))).
			Int("waiters", q.numWaiters).
			Record()
	}
	if q.metrics != nil {
		q.metrics.ObserveAppend(len(req.Payload))
	}

	advanced := q.reconcileAfterWrite(index, term)
	if advanced && q.metrics != nil {
		q.metrics.SetSavedIndex(q.savedIndexGauge.Load())
	}
	// The source fires this second notification whenever the write
	// advanced the prefix or the decide phase deleted entries (or
	// both), and reports deleted=deletedCount>0 in either case since
	// deletedCount is still whatever decide computed.
	if advanced || deletedCount > 0 {
		q.notifier.IndexUpdated(false, deletedCount > 0)
	}
	return nil
}

// decide is Phase A of §4.3, executed entirely under the tracker's
// mutex (matching the source, which performs the overwrite path's
// existing-entry read and delete_range under the same lock since the
// reconciler already guarantees no other writer is racing during that
// window).
func (q *Queue) decide(index, term uint64, payload []byte) (noop bool, deletedCount int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, inFlight := q.saving[index]; inFlight {
		if config.GetTracingConf().Enabled() {
			log.Debug("saveq: index currently being saved, ignoring request").
				Uint64("member_id", q.memberID).Uint64("index", index).Record()
		}
		return true, 0, nil
	}

	if index <= q.savedIndex {
		return q.decideOverwriteLocked(index, payload)
	}

	if _, already := q.saved[index]; already {
		if config.GetTracingConf().Enabled() {
			log.Debug("saveq: index already saved out of order, ignoring request").
				Uint64("member_id", q.memberID).Uint64("index", index).Record()
		}
		return true, 0, nil
	}

	if err := q.growMaxGapLocked(index); err != nil {
		return false, 0, err
	}
	q.saving[index] = struct{}{}
	return false, 0, nil
}

// decideOverwriteLocked handles §4.3 step 2: index is at or before the
// saved prefix, so this may be consensus forcing a divergent rewrite.
// mu must be held.
func (q *Queue) decideOverwriteLocked(index uint64, payload []byte) (noop bool, deletedCount int, err error) {
	existing, gerr := q.storage.Get(q.memberID, index)
	if gerr != nil {
		return false, 0, errors.Wrapf(ErrStorage, "get member=%d index=%d: %v", q.memberID, index, gerr)
	}
	if existing == nil {
		return false, 0, errors.Wrapf(ErrInconsistent, "member=%d index=%d missing but saved_index=%d", q.memberID, index, q.savedIndex)
	}
	if bytes.Equal(existing.Data, payload) {
		return true, 0, nil
	}

	log.Info("saveq: overwriting index older than saved_index, deleting subsequent entries").
		Uint64("member_id", q.memberID).
		Uint64("index", index).
		Uint64("saved_index", q.savedIndex).
		Record()

	q.savedIndex = index - 1
	q.savedIndexGauge.Store(q.savedIndex)

	lastToDelete := int64(-1)
	if len(q.saving) > 0 {
		lastToDelete = int64(maxUint64Key(q.saving))
	}

	deleted, derr := q.deleteRange(index, lastToDelete, q.savedIndex)
	if derr != nil {
		return false, 0, derr
	}

	q.saving[index] = struct{}{}
	return false, deleted, nil
}

// growMaxGapLocked implements §4.3 step 4's max_gap growth, throttling
// its log line to storage-tracing verbosity or every multiple of 100,
// matching the Java original's throttle. mu must be held.
func (q *Queue) growMaxGapLocked(index uint64) error {
	gap := index - q.savedIndex
	if gap <= uint64(q.maxGap) {
		return nil
	}

	g := ((gap - 1) / 10 + 1) * 10 // round up to the next multiple of 10
	old := q.maxGap
	if err := q.storage.SetMaxGap(q.memberID, uint32(g)); err != nil {
		return errors.Wrapf(ErrStorage, "set max_gap member=%d: %v", q.memberID, err)
	}
	q.maxGap = uint32(g)

	if config.GetTracingConf().Enabled() || g%100 == 0 {
		log.Info("saveq: increasing max_gap").
			Uint64("member_id", q.memberID).
			Int("from", int(old)).
			Int("to", int(g)).
			Record()
	}
	return nil
}

// reconcileAfterWrite is Phase C of §4.3, run under the tracker's
// mutex after storage.Append succeeds. It reports whether savedIndex
// advanced.
func (q *Queue) reconcileAfterWrite(index, term uint64) (advanced bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.saving[index]; !ok {
		log.Warn("saveq: index already removed from saving").
			Uint64("member_id", q.memberID).Uint64("index", index).Record()
	}
	delete(q.saving, index)

	switch {
	case index == q.savedIndex+1:
		q.savedIndex = index
		q.lastTerm = term
		q.savedIndexGauge.Store(q.savedIndex)
		advanced = true

		start := index + 1
		next := start
		for {
			t, ok := q.saved[next]
			if !ok {
				break
			}
			q.lastTerm = t
			delete(q.saved, next)
			q.savedIndex = next
			q.savedIndexGauge.Store(q.savedIndex)
			next++
		}
		if next > start && config.GetTracingConf().Enabled() {
			log.Debug("saveq: pulled contiguous suffix from saved").
				Uint64("member_id", q.memberID).
				Uint64("from", start).
				Uint64("to", next-1).
				Int("remaining", len(q.saved)).
				Record()
		}
	case index > q.savedIndex:
		q.saved[index] = term
	default:
		log.Warn("saveq: saved_index already passed index").
			Uint64("member_id", q.memberID).
			Uint64("saved_index", q.savedIndex).
			Uint64("index", index).
			Record()
	}
	return advanced
}

func maxUint64Key(m map[uint64]struct{}) uint64 {
	var max uint64
	first := true
	for k := range m {
		if first || k > max {
			max = k
			first = false
		}
	}
	return max
}
