// Package storage implements the durable, random-access log the save
// queue writes to: spec.md §2's "storage adapter" and §6's consumed
// contract.
package storage

import "github.com/coldtoo/saveq/pb"

// Adapter is the contract the save queue consumes from the storage
// layer (spec.md §6). All operations are synchronous; implementations
// must tolerate non-monotonic index arrival at Append and must be
// idempotent at Delete.
type Adapter interface {
	// GetLast returns the entry with the highest stored index for
	// memberID, or (nil, nil) if the member has no entries.
	GetLast(memberID uint64) (*pb.Entry, error)

	// Get returns the entry at index, or (nil, nil) if absent.
	Get(memberID, index uint64) (*pb.Entry, error)

	// Append inserts an entry at index, which need not be contiguous
	// with what is already stored. It fails if index is already
	// occupied by the caller instead reusing overwrite via Delete+Append,
	// matching spec.md §4.3's overwrite path.
	Append(memberID, term, index uint64, payload []byte) error

	// Delete removes the entry at index. Idempotent when absent.
	Delete(memberID, index uint64) error

	// Count returns the number of entries stored for memberID.
	Count(memberID uint64) (uint64, error)

	GetMaxGap(memberID uint64) (uint32, error)
	SetMaxGap(memberID uint64, gap uint32) error

	GetOwnerPID(memberID uint64) (string, error)
	SetOwnerPID(memberID uint64, pid string) error

	GetOwnerAddress(memberID uint64) (string, error)
	SetOwnerAddress(memberID uint64, address string) error

	Close() error
}
