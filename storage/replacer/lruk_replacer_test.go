package replacer

import (
	"testing"

	"dbkernel/storage/page"

	"github.com/stretchr/testify/require"
)

func TestRecordAccessOutOfRange(t *testing.T) {
	r := New(4, 2)
	err := r.RecordAccess(4, page.AccessUnknown)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestSetEvictableUnknownFrameIsOutOfRange(t *testing.T) {
	r := New(4, 2)
	err := r.SetEvictable(0, true)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestSizeTracksEvictableCount(t *testing.T) {
	r := New(4, 2)
	for _, fid := range []page.FrameID{0, 1, 2} {
		require.NoError(t, r.RecordAccess(fid, page.AccessUnknown))
	}
	require.Equal(t, 0, r.Size())

	require.NoError(t, r.SetEvictable(0, true))
	require.NoError(t, r.SetEvictable(1, true))
	require.Equal(t, 2, r.Size())

	require.NoError(t, r.SetEvictable(1, false))
	require.Equal(t, 1, r.Size())
}

func TestEvictPrefersInfiniteKDistanceOverWarmedFrame(t *testing.T) {
	// Scenario 5 from spec.md §8: frame A accessed once at t=0, frame B
	// accessed twice at t=1,t=2. With k=2, A's k-distance is +inf (fewer
	// than k accesses); the clock then reads 3, so B's is 3-1=2. Evict must
	// return A.
	r := New(4, 2)
	const a, b page.FrameID = 0, 1

	require.NoError(t, r.RecordAccess(a, page.AccessUnknown)) // t=0
	require.NoError(t, r.RecordAccess(b, page.AccessUnknown)) // t=1
	require.NoError(t, r.RecordAccess(b, page.AccessUnknown)) // t=2

	require.NoError(t, r.SetEvictable(a, true))
	require.NoError(t, r.SetEvictable(b, true))

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, a, victim)
}

func TestEvictTieBreaksOnOldestTimestampWhenBothInfinite(t *testing.T) {
	// The only way two candidates can have genuinely equal k-distance is
	// when both have fewer than k accesses (both +inf); the tie-break
	// then falls to whichever was accessed first.
	r := New(4, 2)
	const a, b page.FrameID = 0, 1

	require.NoError(t, r.RecordAccess(a, page.AccessUnknown)) // t=0, a oldest
	require.NoError(t, r.RecordAccess(b, page.AccessUnknown)) // t=1

	require.NoError(t, r.SetEvictable(a, true))
	require.NoError(t, r.SetEvictable(b, true))

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, a, victim)
}

func TestRemoveNonEvictableIsInvalidState(t *testing.T) {
	r := New(4, 2)
	require.NoError(t, r.RecordAccess(0, page.AccessUnknown))
	err := r.Remove(0)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestRemoveUnknownFrameIsNoOp(t *testing.T) {
	r := New(4, 2)
	require.NoError(t, r.Remove(0))
}

func TestRemoveEvictableFrame(t *testing.T) {
	r := New(4, 2)
	require.NoError(t, r.RecordAccess(0, page.AccessUnknown))
	require.NoError(t, r.SetEvictable(0, true))
	require.NoError(t, r.Remove(0))
	require.Equal(t, 0, r.Size())

	_, ok := r.Evict()
	require.False(t, ok)
}

func TestEvictWithNoEvictableFramesReturnsFalse(t *testing.T) {
	r := New(4, 2)
	require.NoError(t, r.RecordAccess(0, page.AccessUnknown))
	_, ok := r.Evict()
	require.False(t, ok)
}

func TestHistoryIsTrimmedToK(t *testing.T) {
	r := New(4, 2)
	for i := 0; i < 5; i++ {
		require.NoError(t, r.RecordAccess(0, page.AccessUnknown))
	}
	n := r.nodes[0]
	require.Len(t, n.history, 2)
}
