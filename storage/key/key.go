// Package key encodes the pebble keys the storage adapter uses to shard
// a single pebble instance across many raft members, in the style of
// WuKongIM's pkg/cluster/replica/key package.
package key

import "encoding/binary"

const (
	entryKeySize   = 17 // header(1) + memberID(8) + index(8)
	metaKeySize    = 10 // header(1) + memberID(8) + kind(1)
	entryKeyHeader = byte(0x1)
	metaKeyHeader  = byte(0x2)
)

const (
	MetaMaxGap       byte = 1
	MetaOwnerPID     byte = 2
	MetaOwnerAddress byte = 3
)

// Entry builds the pebble key for (memberID, index).
func Entry(memberID, index uint64) []byte {
	k := make([]byte, entryKeySize)
	k[0] = entryKeyHeader
	binary.BigEndian.PutUint64(k[1:9], memberID)
	binary.BigEndian.PutUint64(k[9:17], index)
	return k
}

// EntryLowerBound and EntryUpperBound bracket every entry key for
// memberID, for use as a pebble iterator's [LowerBound, UpperBound).
func EntryLowerBound(memberID uint64) []byte {
	return Entry(memberID, 0)
}

func EntryUpperBound(memberID uint64) []byte {
	return Entry(memberID, ^uint64(0))
}

// Index extracts the index encoded in a key built by Entry.
func Index(k []byte) uint64 {
	return binary.BigEndian.Uint64(k[9:17])
}

// Meta builds the pebble key for a small per-member metadata slot
// (max_gap, owner_pid, owner_address; spec.md §2 and §6).
func Meta(memberID uint64, kind byte) []byte {
	k := make([]byte, metaKeySize)
	k[0] = metaKeyHeader
	binary.BigEndian.PutUint64(k[1:9], memberID)
	k[9] = kind
	return k
}
