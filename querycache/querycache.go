// Package querycache implements the row-invalidated LRU of scan results
// described by spec §4.J: entries are keyed by a digest of the scan
// request and indexed a second time by (table_id, row) so that a write
// to a row can invalidate every cached scan that touched it.
package querycache

import (
	"crypto/md5"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Digest identifies one cached scan result: MD5(table_id || canonical
// scan spec) per spec §4.J.
type Digest [16]byte

// Canonicalize computes the Digest for a (table id, canonical scan spec
// bytes) pair. Callers are responsible for producing a canonical byte
// encoding of the scan spec (stable field order, no map iteration);
// this package only hashes what it is given.
func Canonicalize(tableID uint32, canonicalSpec []byte) Digest {
	h := md5.New()
	var tbl [4]byte
	tbl[0] = byte(tableID >> 24)
	tbl[1] = byte(tableID >> 16)
	tbl[2] = byte(tableID >> 8)
	tbl[3] = byte(tableID)
	h.Write(tbl[:])
	h.Write(canonicalSpec)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

type entry struct {
	tableID uint32
	row     string
	result  []byte
}

type rowKey struct {
	tableID uint32
	row     string
}

// Cache is the query result LRU. Entries are bounded by count rather
// than raw memory the way hashicorp/golang-lru/v2 is shaped (the
// teacher's own choice of LRU dependency for bounded in-memory
// structures, reused here for a second cache so the same library earns
// its keep twice — see DESIGN.md); callers size maxEntries from their
// memory budget divided by an expected average result size.
type Cache struct {
	mu       sync.Mutex
	lru      *lru.Cache[Digest, entry]
	byRow    map[rowKey]map[Digest]struct{}
	lookups  uint64
	hits     uint64
}

// New creates a Cache holding up to maxEntries results.
func New(maxEntries int) *Cache {
	c := &Cache{byRow: make(map[rowKey]map[Digest]struct{})}
	l, _ := lru.NewWithEvict(maxEntries, func(d Digest, e entry) {
		c.removeFromRowIndexLocked(d, e)
	})
	c.lru = l
	return c
}

func (c *Cache) removeFromRowIndexLocked(d Digest, e entry) {
	k := rowKey{e.tableID, e.row}
	set := c.byRow[k]
	if set == nil {
		return
	}
	delete(set, d)
	if len(set) == 0 {
		delete(c.byRow, k)
	}
}

// Put inserts the serialized result for (tableID, row) under digest.
func (c *Cache) Put(digest Digest, tableID uint32, row string, result []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(digest, entry{tableID: tableID, row: row, result: result})
	k := rowKey{tableID, row}
	if c.byRow[k] == nil {
		c.byRow[k] = make(map[Digest]struct{})
	}
	c.byRow[k][digest] = struct{}{}
}

// Get looks up a previously cached result by digest.
func (c *Cache) Get(digest Digest) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups++
	e, ok := c.lru.Get(digest)
	if !ok {
		return nil, false
	}
	c.hits++
	return e.result, true
}

// Invalidate drops every cached result that touched (tableID, row),
// called on every successful update to that row (spec §4.J).
func (c *Cache) Invalidate(tableID uint32, row string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := rowKey{tableID, row}
	for d := range c.byRow[k] {
		c.lru.Remove(d)
	}
	delete(c.byRow, k)
}

// Stats reports lookup/hit counters and HitRate, which is Hits/Lookups
// over the cache's whole lifetime; no recent-window rate is kept.
type Stats struct {
	Lookups uint64
	Hits    uint64
	HitRate float64
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{Lookups: c.lookups, Hits: c.hits}
	if c.lookups > 0 {
		s.HitRate = float64(c.hits) / float64(c.lookups)
	}
	return s
}
