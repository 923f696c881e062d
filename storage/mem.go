package storage

import (
	"fmt"
	"sync"

	"github.com/coldtoo/saveq/pb"
)

// MemAdapter is an in-memory Adapter used by save queue unit tests. The
// storage adapter is an external collaborator per spec.md §1, so tests
// exercise the save queue against a fake rather than a real pebble
// instance, in the spirit of the teacher's hand-written db/mocks fakes.
type MemAdapter struct {
	mu       sync.Mutex
	entries  map[uint64]map[uint64]*pb.Entry
	maxGap   map[uint64]uint32
	ownerPID map[uint64]string
	ownerAdr map[uint64]string
}

func NewMemAdapter() *MemAdapter {
	return &MemAdapter{
		entries:  make(map[uint64]map[uint64]*pb.Entry),
		maxGap:   make(map[uint64]uint32),
		ownerPID: make(map[uint64]string),
		ownerAdr: make(map[uint64]string),
	}
}

func (m *MemAdapter) Close() error { return nil }

func (m *MemAdapter) Get(memberID, index uint64) (*pb.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[memberID][index]
	if !ok {
		return nil, nil
	}
	cp := *e
	cp.Data = append([]byte(nil), e.Data...)
	return &cp, nil
}

func (m *MemAdapter) GetLast(memberID uint64) (*pb.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byIndex := m.entries[memberID]
	if len(byIndex) == 0 {
		return nil, nil
	}
	var last *pb.Entry
	for _, e := range byIndex {
		if last == nil || e.Index > last.Index {
			last = e
		}
	}
	cp := *last
	cp.Data = append([]byte(nil), last.Data...)
	return &cp, nil
}

func (m *MemAdapter) Append(memberID, term, index uint64, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[memberID] == nil {
		m.entries[memberID] = make(map[uint64]*pb.Entry)
	}
	if _, occupied := m.entries[memberID][index]; occupied {
		return fmt.Errorf("storage: append member=%d index=%d: index already occupied", memberID, index)
	}
	m.entries[memberID][index] = &pb.Entry{
		Term:  term,
		Index: index,
		Data:  append([]byte(nil), payload...),
	}
	return nil
}

func (m *MemAdapter) Delete(memberID, index uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries[memberID], index)
	return nil
}

func (m *MemAdapter) Count(memberID uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.entries[memberID])), nil
}

func (m *MemAdapter) GetMaxGap(memberID uint64) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxGap[memberID], nil
}

func (m *MemAdapter) SetMaxGap(memberID uint64, gap uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxGap[memberID] = gap
	return nil
}

func (m *MemAdapter) GetOwnerPID(memberID uint64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ownerPID[memberID], nil
}

func (m *MemAdapter) SetOwnerPID(memberID uint64, pid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ownerPID[memberID] = pid
	return nil
}

func (m *MemAdapter) GetOwnerAddress(memberID uint64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ownerAdr[memberID], nil
}

func (m *MemAdapter) SetOwnerAddress(memberID uint64, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ownerAdr[memberID] = address
	return nil
}
