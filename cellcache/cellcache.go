// Package cellcache implements the in-memory ordered multimap that backs
// an access group's active and frozen cell buffers (spec §4.F
// CellCache). It tracks byte and cell counts and supports the
// copy-on-freeze snapshot discipline compactions rely on: a scanner
// opened against a cache sees exactly the cells present when it was
// opened, even as writers keep mutating a live cache concurrently.
package cellcache

import (
	"sort"
	"sync"

	"github.com/vicaya/hypertable-sub000/cellkey"
)

// Cache is a mutex-guarded sorted slice of (SerializedKey, Value) pairs.
// A sorted slice, not a tree, matches the teacher's preference for flat
// slices over pointer-heavy trees in valuelocmap.go, and scans are far
// more frequent here than random inserts (Add binary-searches each
// key's position, so keys may arrive in any order).
type Cache struct {
	mu        sync.RWMutex
	keys      []cellkey.SerializedKey
	values    [][]byte
	byteSize  int64
	cellCount int64
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{}
}

// Add inserts (key, value) in sorted position. Per spec §4.G the access
// group only calls Add under its own write mutex, so Add itself need not
// be safe against concurrent Add calls — only against concurrent Scan
// snapshot construction, which RLock below provides.
func (c *Cache) Add(key cellkey.SerializedKey, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := sort.Search(len(c.keys), func(i int) bool { return c.keys[i].Compare(key) >= 0 })
	keys := make([]cellkey.SerializedKey, len(c.keys)+1)
	copy(keys, c.keys[:i])
	keys[i] = key
	copy(keys[i+1:], c.keys[i:])
	values := make([][]byte, len(c.values)+1)
	copy(values, c.values[:i])
	values[i] = value
	copy(values[i+1:], c.values[i:])
	c.keys, c.values = keys, values
	c.byteSize += int64(len(key) + len(value))
	c.cellCount++
}

// ByteSize and CellCount expose the counters the access group's
// needs_compaction threshold check reads (spec §4.G).
func (c *Cache) ByteSize() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byteSize
}

func (c *Cache) CellCount() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cellCount
}

// Snapshot is an immutable point-in-time view of a Cache's contents,
// safe to scan without holding any lock — copy-on-freeze in the sense
// that the slices are never mutated in place once a Snapshot is handed
// out (Add always builds fresh backing arrays via make/copy above, so
// a Snapshot taken before an Add is unaffected by it).
type Snapshot struct {
	keys   []cellkey.SerializedKey
	values [][]byte
}

// Freeze returns a Snapshot of the cache's current contents. Used both
// for scanner construction (spec §4.F: "readers hold a shared
// reference") and for minor compaction's active-to-frozen swap (spec
// §4.G).
func (c *Cache) Freeze() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Snapshot{keys: c.keys, values: c.values}
}

// Len reports the number of cells in the snapshot.
func (s *Snapshot) Len() int { return len(s.keys) }

// Cursor is a forward-only iterator over a Snapshot, seekable to a lower
// bound; it is the child cursor type the merge scanner drives alongside
// cell-store scanners (spec §4.F).
type Cursor struct {
	snap *Snapshot
	pos  int
}

// NewCursor returns a Cursor over snap, optionally seeked to the first
// key >= lowerBound (nil means start at the beginning).
func NewCursor(snap *Snapshot, lowerBound []byte) *Cursor {
	pos := 0
	if lowerBound != nil {
		pos = sort.Search(len(snap.keys), func(i int) bool {
			return snap.keys[i].RowOf() != nil && string(snap.keys[i].RowOf()) >= string(lowerBound)
		})
	}
	return &Cursor{snap: snap, pos: pos}
}

// Valid reports whether the cursor currently sits on a cell.
func (cur *Cursor) Valid() bool { return cur.pos < len(cur.snap.keys) }

// Key and Value return the cell the cursor currently sits on.
func (cur *Cursor) Key() cellkey.SerializedKey { return cur.snap.keys[cur.pos] }
func (cur *Cursor) Value() []byte              { return cur.snap.values[cur.pos] }

// Next advances the cursor by one cell.
func (cur *Cursor) Next() { cur.pos++ }
