// Package saveq implements the persistence pipeline of a raft consensus
// member: a multi-worker, lock-coordinated queue that dispatches append
// requests to a pool of workers writing to a storage.Adapter, tracks the
// longest contiguous saved prefix, and reconciles that prefix with
// storage at startup and at role transitions.
package saveq

import "errors"

// Sentinel error kinds. Wrapped with github.com/pkg/errors.Wrapf when
// member id / index context needs to travel with the error; compare
// with stdlib errors.Is at call sites.
var (
	// ErrStorage means a storage.Adapter call failed.
	ErrStorage = errors.New("saveq: storage error")

	// ErrInconsistent means a core invariant was violated: an entry
	// that must exist per the saved index is missing, or storage's
	// entry count disagrees with the reconciled saved index.
	ErrInconsistent = errors.New("saveq: inconsistent storage state")

	// ErrNotInitialized means GetLatest was called before the
	// reconciler has established the saved index.
	ErrNotInitialized = errors.New("saveq: saved index not initialized")

	// ErrAlreadyOwned means another live process currently owns this
	// member's storage rows.
	ErrAlreadyOwned = errors.New("saveq: storage already owned by another process")

	// ErrCancelled means the queue is shutting down.
	ErrCancelled = errors.New("saveq: cancelled")
)
