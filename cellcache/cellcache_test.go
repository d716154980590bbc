package cellcache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vicaya/hypertable-sub000/cellkey"
)

func keyFor(row string, ts uint64) cellkey.SerializedKey {
	c := cellkey.Cell{Row: []byte(row), FamilyID: 1, Qualifier: []byte("q"), Timestamp: ts, Revision: ts, Flag: cellkey.FlagInsert}
	return c.Key()
}

func TestAddKeepsSortedOrder(t *testing.T) {
	c := New()
	rows := []string{"charlie", "alpha", "echo", "bravo", "delta"}
	for _, r := range rows {
		c.Add(keyFor(r, 100), []byte(r))
	}
	snap := c.Freeze()
	cur := NewCursor(snap, nil)
	var got []string
	for cur.Valid() {
		got = append(got, string(cur.Value()))
		cur.Next()
	}
	require.Equal(t, []string{"alpha", "bravo", "charlie", "delta", "echo"}, got)
}

func TestByteSizeAndCellCount(t *testing.T) {
	c := New()
	require.Equal(t, int64(0), c.CellCount())
	k := keyFor("row", 1)
	c.Add(k, []byte("value"))
	require.Equal(t, int64(1), c.CellCount())
	require.Equal(t, int64(len(k)+len("value")), c.ByteSize())
}

func TestSnapshotIsolationFromConcurrentAdd(t *testing.T) {
	c := New()
	c.Add(keyFor("a", 1), []byte("a"))
	snap := c.Freeze()
	c.Add(keyFor("b", 1), []byte("b"))
	require.Equal(t, 1, snap.Len())
}

func TestCursorSeeksToLowerBound(t *testing.T) {
	c := New()
	for i := 0; i < 10; i++ {
		c.Add(keyFor(fmt.Sprintf("row-%02d", i), 1), []byte(fmt.Sprintf("v%d", i)))
	}
	snap := c.Freeze()
	cur := NewCursor(snap, []byte("row-05"))
	require.True(t, cur.Valid())
	require.Equal(t, "v5", string(cur.Value()))
}
