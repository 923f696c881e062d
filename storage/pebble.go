package storage

import (
	"encoding/binary"
	"strconv"

	"github.com/cockroachdb/pebble"
	"github.com/coldtoo/saveq/pb"
	"github.com/coldtoo/saveq/storage/key"
	"github.com/pkg/errors"
)

// PebbleAdapter implements Adapter on top of a single embedded
// cockroachdb/pebble instance, keyed via package key, in the manner of
// the pebble-backed raft log storage in WuKongIM's pkg/cluster package.
type PebbleAdapter struct {
	db   *pebble.DB
	path string
	wo   *pebble.WriteOptions
}

// NewPebbleAdapter opens (creating if absent) a pebble instance at path.
func NewPebbleAdapter(path string) (*PebbleAdapter, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble db at %s", path)
	}
	return &PebbleAdapter{
		db:   db,
		path: path,
		wo:   &pebble.WriteOptions{Sync: true},
	}, nil
}

func (p *PebbleAdapter) Close() error {
	return p.db.Close()
}

func (p *PebbleAdapter) Get(memberID, index uint64) (*pb.Entry, error) {
	val, closer, err := p.db.Get(key.Entry(memberID, index))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "get member=%d index=%d", memberID, index)
	}
	defer closer.Close()

	entry := &pb.Entry{}
	if err := entry.Unmarshal(val); err != nil {
		return nil, errors.Wrapf(err, "unmarshal entry member=%d index=%d", memberID, index)
	}
	return entry, nil
}

func (p *PebbleAdapter) GetLast(memberID uint64) (*pb.Entry, error) {
	iter := p.db.NewIter(&pebble.IterOptions{
		LowerBound: key.EntryLowerBound(memberID),
		UpperBound: key.Entry(memberID, ^uint64(0)),
	})
	defer iter.Close()

	if !iter.Last() {
		return nil, nil
	}
	entry := &pb.Entry{}
	if err := entry.Unmarshal(iter.Value()); err != nil {
		return nil, errors.Wrapf(err, "unmarshal last entry member=%d", memberID)
	}
	return entry, nil
}

func (p *PebbleAdapter) Append(memberID, term, index uint64, payload []byte) error {
	_, closer, err := p.db.Get(key.Entry(memberID, index))
	if err == nil {
		closer.Close()
		return errors.Errorf("append member=%d index=%d: index already occupied", memberID, index)
	}
	if err != pebble.ErrNotFound {
		return errors.Wrapf(err, "append member=%d index=%d", memberID, index)
	}

	entry := &pb.Entry{Term: term, Index: index, Data: payload}
	data, err := entry.Marshal()
	if err != nil {
		return errors.Wrapf(err, "marshal entry member=%d index=%d", memberID, index)
	}
	if err := p.db.Set(key.Entry(memberID, index), data, p.wo); err != nil {
		return errors.Wrapf(err, "append member=%d index=%d", memberID, index)
	}
	return nil
}

func (p *PebbleAdapter) Delete(memberID, index uint64) error {
	if err := p.db.Delete(key.Entry(memberID, index), p.wo); err != nil {
		return errors.Wrapf(err, "delete member=%d index=%d", memberID, index)
	}
	return nil
}

func (p *PebbleAdapter) Count(memberID uint64) (uint64, error) {
	iter := p.db.NewIter(&pebble.IterOptions{
		LowerBound: key.EntryLowerBound(memberID),
		UpperBound: key.EntryUpperBound(memberID),
	})
	defer iter.Close()

	var count uint64
	for iter.First(); iter.Valid(); iter.Next() {
		count++
	}
	return count, iter.Error()
}

func (p *PebbleAdapter) GetMaxGap(memberID uint64) (uint32, error) {
	val, closer, err := p.db.Get(key.Meta(memberID, key.MetaMaxGap))
	if err != nil {
		if err == pebble.ErrNotFound {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "get max_gap member=%d", memberID)
	}
	defer closer.Close()
	if len(val) < 4 {
		return 0, nil
	}
	return binary.BigEndian.Uint32(val), nil
}

func (p *PebbleAdapter) SetMaxGap(memberID uint64, gap uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, gap)
	if err := p.db.Set(key.Meta(memberID, key.MetaMaxGap), buf, p.wo); err != nil {
		return errors.Wrapf(err, "set max_gap member=%d", memberID)
	}
	return nil
}

func (p *PebbleAdapter) GetOwnerPID(memberID uint64) (string, error) {
	return p.getMetaString(memberID, key.MetaOwnerPID)
}

func (p *PebbleAdapter) SetOwnerPID(memberID uint64, pid string) error {
	return p.setMetaString(memberID, key.MetaOwnerPID, pid)
}

func (p *PebbleAdapter) GetOwnerAddress(memberID uint64) (string, error) {
	return p.getMetaString(memberID, key.MetaOwnerAddress)
}

func (p *PebbleAdapter) SetOwnerAddress(memberID uint64, address string) error {
	return p.setMetaString(memberID, key.MetaOwnerAddress, address)
}

func (p *PebbleAdapter) getMetaString(memberID uint64, kind byte) (string, error) {
	val, closer, err := p.db.Get(key.Meta(memberID, kind))
	if err != nil {
		if err == pebble.ErrNotFound {
			return "", nil
		}
		return "", errors.Wrapf(err, "get meta member=%d kind=%s", memberID, strconv.Itoa(int(kind)))
	}
	defer closer.Close()
	return string(val), nil
}

func (p *PebbleAdapter) setMetaString(memberID uint64, kind byte, value string) error {
	if err := p.db.Set(key.Meta(memberID, kind), []byte(value), p.wo); err != nil {
		return errors.Wrapf(err, "set meta member=%d kind=%s", memberID, strconv.Itoa(int(kind)))
	}
	return nil
}
