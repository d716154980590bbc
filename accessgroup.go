package hypertable

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vicaya/hypertable-sub000/blockcache"
	"github.com/vicaya/hypertable-sub000/cellcache"
	"github.com/vicaya/hypertable-sub000/cellkey"
	"github.com/vicaya/hypertable-sub000/cellstore"
	"github.com/vicaya/hypertable-sub000/fs"
	"github.com/vicaya/hypertable-sub000/htcerr"
	"github.com/vicaya/hypertable-sub000/mergescan"
	"github.com/vicaya/hypertable-sub000/scan"
)

// CompactionKind selects the scope of a run_compaction call (spec §4.G).
type CompactionKind int

const (
	CompactionMinor CompactionKind = iota
	CompactionMajor
	CompactionMerging
)

// liveStore wraps an opened cell store with the reference count that
// governs when its file may be deleted (spec §4.G: "a store is removed
// from live only after every scanner holding a reference completes").
type liveStore struct {
	id       uint64
	path     string
	reader   *cellstore.Reader
	refCount int32
	dropped  int32 // 1 once superseded by a compaction, pending refcount drain
}

// AccessGroup holds one LSM column group's cell cache and live cell
// stores (spec §4.G).
type AccessGroup struct {
	mu sync.Mutex // "access_group.mutex": guards active/frozen swap and live-list replacement

	name     string
	schema   AccessGroupSchema
	startRow []byte
	endRow   []byte

	active *cellcache.Cache
	frozen *cellcache.Cache // nil unless a minor compaction is in flight

	live []*liveStore

	fsys       fs.Filesystem
	dir        string
	blockCache *blockcache.Cache
	log        LogFunc

	fileSeq int64

	// onMinorComplete, if set, is called with the commit-log cutoff
	// timestamp after a minor compaction durably replaces the frozen
	// cache with a new cell store, so the owning Range can purge its
	// commit log up to that point (spec §4.G/§4.I). Decoupling this as
	// a callback, rather than the access group holding a *commitlog.Writer
	// directly, keeps the lock order of spec §5
	// (range -> access_group -> cell_cache -> block_cache -> commit_log)
	// intact without a back-reference cycle.
	onMinorComplete func(cutoffTS uint64)
}

// NewAccessGroup constructs an empty AccessGroup rooted at dir.
func NewAccessGroup(name string, schema AccessGroupSchema, startRow, endRow []byte, fsys fs.Filesystem, dir string, bc *blockcache.Cache, log LogFunc) *AccessGroup {
	if log == nil {
		log = func(string, ...interface{}) {}
	}
	return &AccessGroup{
		name:       name,
		schema:     schema,
		startRow:   startRow,
		endRow:     endRow,
		active:     cellcache.New(),
		fsys:       fsys,
		dir:        dir,
		blockCache: bc,
		log:        log,
	}
}

// SetMinorCompactionHook installs the callback run after each minor
// compaction completes.
func (g *AccessGroup) SetMinorCompactionHook(fn func(cutoffTS uint64)) {
	g.onMinorComplete = fn
}

// Add inserts (key, value) into the active cache under the write mutex
// (spec §4.G add()). The key's row must lie in (start_row, end_row].
func (g *AccessGroup) Add(key cellkey.SerializedKey, value []byte) error {
	row := key.RowOf()
	if !rowInRange(row, g.startRow, g.endRow) {
		return htcerr.New(htcerr.RangeMismatch, "row %q outside access group range", row)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active.Add(key, value)
	return nil
}

func rowInRange(row, start, end []byte) bool {
	if start != nil && string(row) <= string(start) {
		return false
	}
	if end != nil && string(row) > string(end) {
		return false
	}
	return true
}

// ByteSize returns the combined active+frozen cache size the compaction
// threshold check reads.
func (g *AccessGroup) ByteSize() int64 {
	g.mu.Lock()
	active, frozen := g.active, g.frozen
	g.mu.Unlock()
	n := active.ByteSize()
	if frozen != nil {
		n += frozen.ByteSize()
	}
	return n
}

// NeedsCompaction reports whether active+frozen bytes have reached the
// group's configured split threshold (spec §4.G needs_compaction()).
func (g *AccessGroup) NeedsCompaction() bool {
	return g.ByteSize() >= g.schema.SplitThreshold
}

// scannerHandle wraps a mergescan.Scanner together with the live-store
// references it must release on Close, implementing the "cancelling a
// scanner releases its snapshot references" rule of spec §5.
type scannerHandle struct {
	*mergescan.Scanner
	group   *AccessGroup
	pinned  []*liveStore
}

// Close releases every live-store reference this scanner pinned,
// allowing fully-dereferenced, superseded stores to be deleted (spec
// §4.G "reference-counted drop of cell stores").
func (h *scannerHandle) Close() {
	h.group.releaseStores(h.pinned)
}

// CreateScanner snapshots the active cache, the frozen cache (if any),
// and the current live-store list, then builds a merge scanner over all
// of them (spec §4.G create_scanner()).
func (g *AccessGroup) CreateScanner(ctx *scan.Context, nowUnix uint64) (*scannerHandle, error) {
	g.mu.Lock()
	activeSnap := g.active.Freeze()
	var frozenSnap *cellcache.Snapshot
	if g.frozen != nil {
		frozenSnap = g.frozen.Freeze()
	}
	liveCopy := append([]*liveStore(nil), g.live...)
	g.mu.Unlock()

	for _, ls := range liveCopy {
		atomic.AddInt32(&ls.refCount, 1)
	}

	lower := ctx.LowerBound()
	var cursors []mergescan.Cursor
	cursors = append(cursors, cellcache.NewCursor(activeSnap, lower))
	if frozenSnap != nil {
		cursors = append(cursors, cellcache.NewCursor(frozenSnap, lower))
	}
	for _, ls := range liveCopy {
		sc, err := ls.reader.CreateScanner(ctx)
		if err != nil {
			g.releaseStores(liveCopy)
			return nil, err
		}
		cursors = append(cursors, sc)
	}

	fc := make(map[uint8]mergescan.FamilyConfig)
	for _, f := range g.schema.Families {
		fc[f.ID] = mergescan.FamilyConfig{TTLSeconds: f.TTL}
	}

	ms := mergescan.New(ctx, cursors, fc, nowUnix)
	return &scannerHandle{Scanner: ms, group: g, pinned: liveCopy}, nil
}

func (g *AccessGroup) releaseStores(stores []*liveStore) {
	for _, ls := range stores {
		if atomic.AddInt32(&ls.refCount, -1) == 0 && atomic.LoadInt32(&ls.dropped) == 1 {
			g.deleteStoreFile(ls)
		}
	}
}

func (g *AccessGroup) deleteStoreFile(ls *liveStore) {
	if err := ls.reader.Close(); err != nil {
		g.log("accessgroup %s: close dropped store %s: %v", g.name, ls.path, err)
	}
	g.blockCache.InvalidateFile(ls.id)
	if err := g.fsys.Rmdir(ls.path); err != nil {
		g.log("accessgroup %s: delete dropped store %s: %v", g.name, ls.path, err)
	}
}

// storeFileSeq numbers cell-store files across every access group in the
// process, so the file IDs keying a shared block cache never collide.
var storeFileSeq int64

func (g *AccessGroup) nextStorePath() (string, uint64) {
	id := uint64(atomic.AddInt64(&storeFileSeq, 1))
	return filepath.Join(g.dir, g.name, fmt.Sprintf("cs-%020d.cs", id)), id
}

// RunCompaction executes a minor, major, or merging compaction (spec
// §4.G run_compaction()).
func (g *AccessGroup) RunCompaction(kind CompactionKind, cutoffTS uint64) error {
	switch kind {
	case CompactionMinor:
		return g.runMinorCompaction(cutoffTS)
	case CompactionMajor:
		return g.runFullCompaction(g.live, true)
	case CompactionMerging:
		g.mu.Lock()
		subset := mergeCandidates(g.live)
		g.mu.Unlock()
		return g.runFullCompaction(subset, true)
	default:
		return htcerr.New(htcerr.InvalidMetadata, "unknown compaction kind %d", kind)
	}
}

// mergeCandidates picks the oldest half of the live list (rounded up),
// bounding write amplification the way spec §4.G describes merging
// compaction ("only across a chosen subset").
func mergeCandidates(live []*liveStore) []*liveStore {
	if len(live) < 2 {
		return nil
	}
	n := (len(live) + 1) / 2
	return append([]*liveStore(nil), live[:n]...)
}

func (g *AccessGroup) runMinorCompaction(cutoffTS uint64) error {
	g.mu.Lock()
	if g.active.CellCount() == 0 {
		g.mu.Unlock()
		return nil
	}
	oldActive := g.active
	g.frozen = oldActive
	g.active = cellcache.New()
	g.mu.Unlock()

	snap := g.frozen.Freeze()
	cur := cellcache.NewCursor(snap, nil)
	ctx := scan.NewContext(scan.Spec{ReturnDeletes: true})
	ms := mergescan.New(ctx, []mergescan.Cursor{cur}, nil, uint64(time.Now().Unix()))

	ls, err := g.writeStoreFromScanner(ms)
	if err != nil {
		g.mu.Lock()
		g.frozen = nil
		g.mu.Unlock()
		return err
	}

	g.mu.Lock()
	g.live = append(g.live, ls)
	g.frozen = nil
	g.mu.Unlock()

	if g.onMinorComplete != nil {
		g.onMinorComplete(cutoffTS)
	}
	return nil
}

func (g *AccessGroup) runFullCompaction(sources []*liveStore, fullTombstones bool) error {
	if len(sources) == 0 {
		return nil
	}
	g.mu.Lock()
	frozenSnap := (*cellcache.Snapshot)(nil)
	if g.frozen != nil {
		frozenSnap = g.frozen.Freeze()
	}
	g.mu.Unlock()

	var cursors []mergescan.Cursor
	if frozenSnap != nil {
		cursors = append(cursors, cellcache.NewCursor(frozenSnap, nil))
	}
	for _, ls := range sources {
		sc, err := ls.reader.CreateScanner(scan.NewContext(scan.Spec{}))
		if err != nil {
			return err
		}
		cursors = append(cursors, sc)
	}
	ctx := scan.NewContext(scan.Spec{ReturnDeletes: !fullTombstones})
	ms := mergescan.New(ctx, cursors, nil, uint64(time.Now().Unix()))

	newStore, err := g.writeStoreFromScanner(ms)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.live = replaceLive(g.live, sources, newStore)
	g.mu.Unlock()

	for _, ls := range sources {
		atomic.StoreInt32(&ls.dropped, 1)
		if atomic.LoadInt32(&ls.refCount) == 0 {
			g.deleteStoreFile(ls)
		}
	}
	return nil
}

func replaceLive(live, removed []*liveStore, added *liveStore) []*liveStore {
	removeSet := make(map[uint64]bool, len(removed))
	for _, r := range removed {
		removeSet[r.id] = true
	}
	out := make([]*liveStore, 0, len(live)-len(removed)+1)
	for _, ls := range live {
		if !removeSet[ls.id] {
			out = append(out, ls)
		}
	}
	out = append(out, added)
	return out
}

func (g *AccessGroup) writeStoreFromScanner(ms *mergescan.Scanner) (*liveStore, error) {
	path, id := g.nextStorePath()
	if err := g.fsys.Mkdirs(filepath.Dir(path)); err != nil {
		return nil, err
	}
	writer, err := cellstore.Create(g.fsys, path, cellstore.WriterProps{
		TargetBlockSize: g.schema.BlockSize,
		Compression:     g.schema.Compression,
		BloomPolicy:     g.schema.BloomPolicy,
		ItemsEstimate:   1024,
		FalsePositive:   0.01,
		FamilyTTL:       familyTTLMap(g.schema.Families),
	})
	if err != nil {
		return nil, err
	}
	for ms.Valid() {
		c := ms.Cell()
		if err := writer.Add(c.Key(), c.Value); err != nil {
			return nil, err
		}
		ms.Next()
	}
	if err := ms.Err(); err != nil {
		return nil, err
	}
	if err := writer.Finalize(); err != nil {
		return nil, err
	}
	reader, err := cellstore.Open(g.fsys, path, id, g.blockCache, g.startRow, g.endRow)
	if err != nil {
		return nil, err
	}
	return &liveStore{id: id, path: path, reader: reader}, nil
}

func familyTTLMap(fams []ColumnFamily) map[uint8]uint64 {
	out := make(map[uint8]uint64)
	for _, f := range fams {
		if f.TTL > 0 {
			out[f.ID] = f.TTL
		}
	}
	return out
}

// FindSplitRow inspects every live store's block index and the active
// cache to pick a median row key so the group's data splits roughly in
// half (spec §4.G find_split_row()). Returns nil if no split point
// strictly between start_row and end_row exists.
func (g *AccessGroup) FindSplitRow() []byte {
	g.mu.Lock()
	live := append([]*liveStore(nil), g.live...)
	snap := g.active.Freeze()
	g.mu.Unlock()

	var rows [][]byte
	for _, ls := range live {
		for _, k := range ls.reader.FirstKeys() {
			rows = append(rows, append([]byte(nil), k.RowOf()...))
		}
	}
	for cur := cellcache.NewCursor(snap, nil); cur.Valid(); cur.Next() {
		rows = append(rows, append([]byte(nil), cur.Key().RowOf()...))
	}
	if len(rows) == 0 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool { return string(rows[i]) < string(rows[j]) })
	mid := rows[len(rows)/2]
	if !rowInRange(mid, g.startRow, g.endRow) {
		return nil
	}
	if (g.startRow != nil && string(mid) == string(g.startRow)) || (g.endRow != nil && string(mid) == string(g.endRow)) {
		return nil
	}
	return mid
}
