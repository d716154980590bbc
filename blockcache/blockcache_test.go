package blockcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertAndCheckoutHit(t *testing.T) {
	c := New(1 << 20)
	ok := c.InsertAndCheckout(1, 0, []byte("block-data"))
	require.True(t, ok)
	data, hit := c.Checkout(1, 0)
	require.True(t, hit)
	require.Equal(t, []byte("block-data"), data)
	c.Checkin(1, 0)
	c.Checkin(1, 0)
}

func TestCheckoutMiss(t *testing.T) {
	c := New(1 << 20)
	_, hit := c.Checkout(99, 0)
	require.False(t, hit)
}

func TestPinnedEntryNeverEvicted(t *testing.T) {
	c := New(16)
	require.True(t, c.InsertAndCheckout(1, 0, make([]byte, 10)))
	// pin stays at refCount 2 (InsertAndCheckout + explicit Checkout)
	_, hit := c.Checkout(1, 0)
	require.True(t, hit)

	// Try to insert a second block that would require evicting the pinned one.
	c.InsertAndCheckout(2, 0, make([]byte, 10))

	require.True(t, c.Contains(1, 0), "pinned block must survive eviction pressure")
}

func TestUnpinnedEntryEvictedUnderPressure(t *testing.T) {
	c := New(16)
	require.True(t, c.InsertAndCheckout(1, 0, make([]byte, 10)))
	c.Checkin(1, 0) // refCount back to 0, evictable

	c.InsertAndCheckout(2, 0, make([]byte, 10))

	require.False(t, c.Contains(1, 0))
	require.True(t, c.Contains(2, 0))
	require.Equal(t, uint64(1), c.Stats().Evicted)
}

func TestInsertLargerThanBudgetRejected(t *testing.T) {
	c := New(4)
	ok := c.InsertAndCheckout(1, 0, make([]byte, 10))
	require.False(t, ok)
}

func TestInvalidateFile(t *testing.T) {
	c := New(1 << 20)
	c.InsertAndCheckout(1, 0, []byte("a"))
	c.InsertAndCheckout(1, 8, []byte("b"))
	c.InsertAndCheckout(2, 0, []byte("c"))
	c.InvalidateFile(1)
	require.False(t, c.Contains(1, 0))
	require.False(t, c.Contains(1, 8))
	require.True(t, c.Contains(2, 0))
}
