package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPebbleAdapter(t *testing.T) *PebbleAdapter {
	t.Helper()
	p, err := NewPebbleAdapter(filepath.Join(t.TempDir(), "saveq.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPebbleAdapter_AppendGetRoundTrip(t *testing.T) {
	p := newTestPebbleAdapter(t)
	require.NoError(t, p.Append(1, 3, 10, []byte("hello")))

	e, err := p.Get(1, 10)
	require.NoError(t, err)
	require.NotNil(t, e)
	require.EqualValues(t, 3, e.Term)
	require.EqualValues(t, 10, e.Index)
	require.Equal(t, []byte("hello"), e.Data)
}

func TestPebbleAdapter_GetMissingReturnsNilNil(t *testing.T) {
	p := newTestPebbleAdapter(t)
	e, err := p.Get(1, 99)
	require.NoError(t, err)
	require.Nil(t, e)
}

func TestPebbleAdapter_GetLastPicksHighestIndex(t *testing.T) {
	p := newTestPebbleAdapter(t)
	require.NoError(t, p.Append(1, 1, 5, []byte("a")))
	require.NoError(t, p.Append(1, 1, 9, []byte("b")))
	require.NoError(t, p.Append(1, 1, 3, []byte("c")))

	last, err := p.GetLast(1)
	require.NoError(t, err)
	require.NotNil(t, last)
	require.EqualValues(t, 9, last.Index)
	require.Equal(t, []byte("b"), last.Data)
}

func TestPebbleAdapter_GetLastEmptyReturnsNilNil(t *testing.T) {
	p := newTestPebbleAdapter(t)
	last, err := p.GetLast(1)
	require.NoError(t, err)
	require.Nil(t, last)
}

func TestPebbleAdapter_DeleteIsIdempotent(t *testing.T) {
	p := newTestPebbleAdapter(t)
	require.NoError(t, p.Append(1, 1, 1, []byte("a")))
	require.NoError(t, p.Delete(1, 1))
	require.NoError(t, p.Delete(1, 1))

	count, err := p.Count(1)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestPebbleAdapter_CountIsPerMember(t *testing.T) {
	p := newTestPebbleAdapter(t)
	require.NoError(t, p.Append(1, 1, 1, []byte("a")))
	require.NoError(t, p.Append(2, 1, 1, []byte("a")))
	require.NoError(t, p.Append(2, 1, 2, []byte("b")))

	c1, err := p.Count(1)
	require.NoError(t, err)
	require.EqualValues(t, 1, c1)

	c2, err := p.Count(2)
	require.NoError(t, err)
	require.EqualValues(t, 2, c2)
}

func TestPebbleAdapter_MaxGapDefaultsToZero(t *testing.T) {
	p := newTestPebbleAdapter(t)
	gap, err := p.GetMaxGap(1)
	require.NoError(t, err)
	require.Zero(t, gap)

	require.NoError(t, p.SetMaxGap(1, 30))
	gap, err = p.GetMaxGap(1)
	require.NoError(t, err)
	require.EqualValues(t, 30, gap)
}

func TestPebbleAdapter_OwnerAddressAndPID(t *testing.T) {
	p := newTestPebbleAdapter(t)
	addr, err := p.GetOwnerAddress(1)
	require.NoError(t, err)
	require.Empty(t, addr)

	require.NoError(t, p.SetOwnerAddress(1, "host-a"))
	require.NoError(t, p.SetOwnerPID(1, "1234"))

	addr, err = p.GetOwnerAddress(1)
	require.NoError(t, err)
	require.Equal(t, "host-a", addr)

	pid, err := p.GetOwnerPID(1)
	require.NoError(t, err)
	require.Equal(t, "1234", pid)
}

// TestPebbleAdapter_EntryZeroFieldsRoundTrip guards the recursion bug
// where Entry.Marshal/Unmarshal delegated to gogo/protobuf's reflective
// proto.Marshal/proto.Unmarshal, which dispatch back to a type's own
// Marshal/Unmarshal when it satisfies Marshaler/Unmarshaler. A term=0
// entry with empty data exercises the all-fields-omitted wire encoding.
func TestPebbleAdapter_EntryZeroFieldsRoundTrip(t *testing.T) {
	p := newTestPebbleAdapter(t)
	require.NoError(t, p.Append(1, 0, 0, nil))

	e, err := p.Get(1, 0)
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Zero(t, e.Term)
	require.Zero(t, e.Index)
	require.Empty(t, e.Data)
}
