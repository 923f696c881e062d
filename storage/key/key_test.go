package key

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntry_RoundTripsIndex(t *testing.T) {
	k := Entry(7, 1234)
	require.Len(t, k, entryKeySize)
	require.EqualValues(t, 1234, Index(k))
}

func TestEntry_OrdersByMemberThenIndex(t *testing.T) {
	require.True(t, string(Entry(1, 5)) < string(Entry(1, 6)))
	require.True(t, string(Entry(1, 100)) < string(Entry(2, 1)))
}

func TestEntryLowerUpperBound_BracketAllIndices(t *testing.T) {
	lower := EntryLowerBound(3)
	upper := EntryUpperBound(3)
	mid := Entry(3, 999999)
	require.True(t, string(lower) <= string(mid))
	require.True(t, string(mid) < string(upper))
}

func TestMeta_DistinctFromEntryKeys(t *testing.T) {
	m := Meta(7, MetaMaxGap)
	e := Entry(7, 0)
	require.NotEqual(t, m[0], e[0])
	require.Len(t, m, metaKeySize)
}
