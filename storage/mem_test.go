package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemAdapter_AppendGetRoundTrip(t *testing.T) {
	m := NewMemAdapter()
	require.NoError(t, m.Append(1, 3, 10, []byte("hello")))

	e, err := m.Get(1, 10)
	require.NoError(t, err)
	require.NotNil(t, e)
	require.EqualValues(t, 3, e.Term)
	require.EqualValues(t, 10, e.Index)
	require.Equal(t, []byte("hello"), e.Data)
}

func TestMemAdapter_GetMissingReturnsNilNil(t *testing.T) {
	m := NewMemAdapter()
	e, err := m.Get(1, 99)
	require.NoError(t, err)
	require.Nil(t, e)
}

func TestMemAdapter_GetIsDefensiveCopy(t *testing.T) {
	m := NewMemAdapter()
	require.NoError(t, m.Append(1, 1, 1, []byte("abc")))

	e, err := m.Get(1, 1)
	require.NoError(t, err)
	e.Data[0] = 'z'

	e2, err := m.Get(1, 1)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), e2.Data)
}

func TestMemAdapter_GetLastPicksHighestIndex(t *testing.T) {
	m := NewMemAdapter()
	require.NoError(t, m.Append(1, 1, 5, []byte("a")))
	require.NoError(t, m.Append(1, 1, 9, []byte("b")))
	require.NoError(t, m.Append(1, 1, 3, []byte("c")))

	last, err := m.GetLast(1)
	require.NoError(t, err)
	require.EqualValues(t, 9, last.Index)
}

func TestMemAdapter_GetLastEmptyReturnsNilNil(t *testing.T) {
	m := NewMemAdapter()
	last, err := m.GetLast(1)
	require.NoError(t, err)
	require.Nil(t, last)
}

func TestMemAdapter_DeleteIsIdempotent(t *testing.T) {
	m := NewMemAdapter()
	require.NoError(t, m.Append(1, 1, 1, []byte("a")))
	require.NoError(t, m.Delete(1, 1))
	require.NoError(t, m.Delete(1, 1))

	count, err := m.Count(1)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestMemAdapter_MaxGapDefaultsToZero(t *testing.T) {
	m := NewMemAdapter()
	gap, err := m.GetMaxGap(1)
	require.NoError(t, err)
	require.Zero(t, gap)

	require.NoError(t, m.SetMaxGap(1, 30))
	gap, err = m.GetMaxGap(1)
	require.NoError(t, err)
	require.EqualValues(t, 30, gap)
}

func TestMemAdapter_OwnerAddressAndPID(t *testing.T) {
	m := NewMemAdapter()
	addr, err := m.GetOwnerAddress(1)
	require.NoError(t, err)
	require.Empty(t, addr)

	require.NoError(t, m.SetOwnerAddress(1, "host-a"))
	require.NoError(t, m.SetOwnerPID(1, "1234"))

	addr, err = m.GetOwnerAddress(1)
	require.NoError(t, err)
	require.Equal(t, "host-a", addr)

	pid, err := m.GetOwnerPID(1)
	require.NoError(t, err)
	require.Equal(t, "1234", pid)
}

func TestMemAdapter_CountIsPerMember(t *testing.T) {
	m := NewMemAdapter()
	require.NoError(t, m.Append(1, 1, 1, []byte("a")))
	require.NoError(t, m.Append(2, 1, 1, []byte("a")))
	require.NoError(t, m.Append(2, 1, 2, []byte("b")))

	c1, err := m.Count(1)
	require.NoError(t, err)
	require.EqualValues(t, 1, c1)

	c2, err := m.Count(2)
	require.NoError(t, err)
	require.EqualValues(t, 2, c2)
}
