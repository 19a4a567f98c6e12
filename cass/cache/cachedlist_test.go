package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lcls-cass/cassgo/cass/result"
)

func newValueList(workers int) *CachedList {
	return New(workers, func() *result.Result { return result.NewValue("v") })
}

func TestNewItemThenRelease(t *testing.T) {
	cl := newValueList(2) // 4 slots
	r := cl.NewItem(5)
	require.NotNil(t, r)

	got, err := cl.Item(5)
	require.NoError(t, err)
	require.Same(t, r, got)

	cl.Release(5)
	_, err = cl.Item(5)
	require.ErrorIs(t, err, ErrNoSuchID)
}

// TestBorrowedNeverExceedsWorkersPlusOne exercises property 8.
func TestBorrowedNeverExceedsWorkersPlusOne(t *testing.T) {
	const workers = 3
	cl := newValueList(workers)
	require.Equal(t, workers+2, cl.Cap())

	var ids []uint64
	for i := 1; i <= workers+1; i++ {
		cl.NewItem(uint64(i))
		ids = append(ids, uint64(i))
		require.LessOrEqual(t, cl.Borrowed(), workers+1)
	}

	for _, id := range ids {
		cl.Release(id)
	}
	require.Equal(t, 0, cl.Borrowed())
}

func TestPromoteLatestSurvivesNewItem(t *testing.T) {
	cl := newValueList(1) // 3 slots
	r1 := cl.NewItem(1)
	r1.SetValue(10)
	cl.PromoteLatest(r1)
	require.Equal(t, float32(10), cl.Latest().GetValue())

	// Reserving further slots must never evict the promoted latest.
	cl.NewItem(2)
	require.Equal(t, float32(10), cl.Latest().GetValue())
}
