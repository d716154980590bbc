package hypertable

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/vicaya/hypertable-sub000/blockcache"
	"github.com/vicaya/hypertable-sub000/cellkey"
	"github.com/vicaya/hypertable-sub000/commitlog"
	"github.com/vicaya/hypertable-sub000/fs"
	"github.com/vicaya/hypertable-sub000/htcerr"
	"github.com/vicaya/hypertable-sub000/metalog"
	"github.com/vicaya/hypertable-sub000/scan"
)

// Identity is a Range's immutable coordinates (spec §3 Range:
// "(table_id, table_generation, start_row_exclusive, end_row_inclusive)").
type Identity struct {
	TableID        uint32
	TableGen       uint32
	StartRowExcl   []byte
	EndRowIncl     []byte
}

// UpdateResult reports the outcome of Range.Update (spec §4.H update()).
type UpdateResult struct {
	CommitTimestamp uint64
	OutOfRange      [][]byte // rows of cells rejected as out-of-range; caller sees PARTIAL_UPDATE
	SplitOff        [][]byte // rows of cells belonging to a sibling range not yet detached
}

// splitState tracks the two-phase split protocol of spec §4.H split().
type splitState int

const (
	splitNone splitState = iota
	splitStarted
	splitComplete
)

// Range aggregates one or more access groups covering the same row
// range (spec §4.H).
type Range struct {
	rw sync.RWMutex // "range.rw_lock": read-held during updates/scanner construction, write-held during split/identity changes

	id Identity

	groups   map[string]*AccessGroup
	groupFor map[uint8]string // family id -> group name

	fsys fs.Filesystem
	dir  string
	log  LogFunc

	commitLog   *commitlog.Writer
	split       splitState
	splitLog    *commitlog.Writer
	splitMidRow []byte

	mlog *metalog.Log
}

// NewRange constructs a Range with the given access groups, already
// wired to the schema's family→group assignment.
func NewRange(id Identity, schema *Schema, fsys fs.Filesystem, dir string, bc *blockcache.Cache, cfg *Config) (*Range, error) {
	r := &Range{
		id:       id,
		groups:   make(map[string]*AccessGroup),
		groupFor: make(map[uint8]string),
		fsys:     fsys,
		dir:      dir,
		log:      cfg.Log,
	}
	for _, gs := range schema.Groups {
		g := NewAccessGroup(gs.Name, gs, id.StartRowExcl, id.EndRowIncl, fsys, dir, bc, cfg.Log)
		r.groups[gs.Name] = g
		for _, f := range gs.Families {
			r.groupFor[f.ID] = gs.Name
		}
	}

	logDir := filepath.Join(dir, "log", rangeLogName(id))
	cl, err := commitlog.Open(fsys, commitlog.Config{
		Dir:                 logDir,
		RollSize:            cfg.CommitLogRollSize,
		GroupCommitDelay:    cfg.GroupCommitDelay,
		GroupCommitMaxBytes: cfg.GroupCommitMaxBytes,
		LogFunc:             cfg.Log,
	})
	if err != nil {
		return nil, err
	}
	r.commitLog = cl

	for _, g := range r.groups {
		grp := g
		grp.SetMinorCompactionHook(func(cutoff uint64) {
			if err := r.commitLog.Purge(cutoff); err != nil {
				r.log("range %s: commit log purge failed: %v", rangeLogName(id), err)
			}
		})
	}
	return r, nil
}

func rangeLogName(id Identity) string {
	return fmt.Sprintf("%d-%d-%x-%x", id.TableID, id.TableGen, id.StartRowExcl, id.EndRowIncl)
}

// Update applies a sorted batch of (key, value) mutations (spec §4.H
// update()). In-range cells are appended to the base commit log before
// being inserted into access-group caches; once a split has started,
// cells destined for the off-going half are instead appended to the
// split log only, never touching the live access-group caches (spec
// §4.H: "the split log captures all subsequent writes destined for the
// off-going half; retained writes continue on the base log"). The
// batch's highest in-range timestamp is returned as the commit point.
// Out-of-range cells are reported back to the caller rather than
// applied.
func (r *Range) Update(batch []cellkey.Cell) (UpdateResult, error) {
	r.rw.RLock()
	defer r.rw.RUnlock()

	var res UpdateResult
	var inRange, splitOff []cellkey.Cell
	for _, c := range batch {
		switch r.classify(c.Row) {
		case cellOutOfRange:
			res.OutOfRange = append(res.OutOfRange, c.Row)
		case cellSplitOff:
			res.SplitOff = append(res.SplitOff, c.Row)
			splitOff = append(splitOff, c)
		default:
			inRange = append(inRange, c)
		}
	}
	if len(inRange) == 0 && len(splitOff) == 0 {
		if len(res.OutOfRange) > 0 {
			return res, htcerr.New(htcerr.PartialUpdate, "no cells landed in range")
		}
		return res, nil
	}

	if len(splitOff) > 0 {
		if err := r.appendAndSync(r.splitLog, splitOff); err != nil {
			return res, err
		}
	}

	var commitTS uint64
	if len(inRange) > 0 {
		for _, c := range inRange {
			if c.Timestamp > commitTS {
				commitTS = c.Timestamp
			}
		}
		if err := r.appendAndSync(r.commitLog, inRange); err != nil {
			return res, err
		}
		for _, c := range inRange {
			groupName, ok := r.groupFor[c.FamilyID]
			if !ok {
				continue
			}
			if err := r.groups[groupName].Add(c.Key(), c.Value); err != nil {
				return res, err
			}
		}
	}

	res.CommitTimestamp = commitTS
	if len(res.OutOfRange) > 0 || len(res.SplitOff) > 0 {
		return res, htcerr.New(htcerr.PartialUpdate, "batch partially out of range")
	}
	return res, nil
}

func (r *Range) appendAndSync(log *commitlog.Writer, cells []cellkey.Cell) error {
	payload := encodeBatch(cells)
	var commitTS uint64
	for _, c := range cells {
		if c.Timestamp > commitTS {
			commitTS = c.Timestamp
		}
	}
	if err := log.Append(fmt.Sprint(r.id.TableID), payload, commitTS); err != nil {
		return err
	}
	return log.Sync()
}

type cellPlacement int

const (
	cellInRange cellPlacement = iota
	cellOutOfRange
	cellSplitOff
)

func (r *Range) classify(row []byte) cellPlacement {
	if !rowInRange(row, r.id.StartRowExcl, r.id.EndRowIncl) {
		return cellOutOfRange
	}
	if r.split != splitNone && r.splitMidRow != nil && string(row) > string(r.splitMidRow) {
		return cellSplitOff
	}
	return cellInRange
}

func encodeBatch(cells []cellkey.Cell) []byte {
	var buf []byte
	for _, c := range cells {
		k := c.Key()
		buf = appendBytes32(buf, k)
		buf = appendBytes32(buf, c.Value)
	}
	return buf
}

func appendBytes32(buf, b []byte) []byte {
	n := uint32(len(b))
	buf = append(buf, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	return append(buf, b...)
}

// CompositeScanner is a round-robin scanner over the access groups a
// scan's family mask selects (spec §4.H create_scanner()).
type CompositeScanner struct {
	handles []*scannerHandle
	idx     int
}

// CreateScanner opens a composite scanner over only the access groups
// that intersect ctx's family bitmap.
func (r *Range) CreateScanner(ctx *scan.Context) (*CompositeScanner, error) {
	r.rw.RLock()
	defer r.rw.RUnlock()

	cs := &CompositeScanner{}
	now := uint64(time.Now().Unix())
	for _, g := range r.groups {
		if !groupIntersects(g, ctx) {
			continue
		}
		h, err := g.CreateScanner(ctx, now)
		if err != nil {
			cs.Close()
			return nil, err
		}
		cs.handles = append(cs.handles, h)
	}
	return cs, nil
}

func groupIntersects(g *AccessGroup, ctx *scan.Context) bool {
	if len(ctx.Spec.Families) == 0 {
		return true
	}
	for _, f := range g.schema.Families {
		if ctx.IncludesFamily(f.ID) {
			return true
		}
	}
	return false
}

// Next advances through the composite scanner's handles round-robin,
// returning false once every handle is exhausted.
func (cs *CompositeScanner) Next() (cellkey.Cell, bool) {
	n := len(cs.handles)
	for i := 0; i < n; i++ {
		h := cs.handles[cs.idx%n]
		cs.idx++
		if h.Valid() {
			c := h.Cell()
			h.Next()
			return c, true
		}
	}
	return cellkey.Cell{}, false
}

// Close releases every access-group scanner's pinned live-store
// references.
func (cs *CompositeScanner) Close() {
	for _, h := range cs.handles {
		h.Close()
	}
}

// MaintenanceTick evaluates compaction pressure across every access
// group and runs minor compactions where needed (spec §4.H
// maintenance_tick()). Split threshold evaluation is left to the
// caller, which has visibility into sibling range placement.
func (r *Range) MaintenanceTick() {
	r.rw.RLock()
	groups := make([]*AccessGroup, 0, len(r.groups))
	for _, g := range r.groups {
		groups = append(groups, g)
	}
	r.rw.RUnlock()

	for _, g := range groups {
		if g.NeedsCompaction() {
			if err := g.RunCompaction(CompactionMinor, 0); err != nil {
				r.log("range %s: minor compaction failed: %v", rangeLogName(r.id), err)
			}
		}
	}
}

// StartSplit begins the two-phase split protocol at midpoint: it freezes
// nothing itself (access groups freeze independently on their next
// minor compaction) but opens a split commit log that captures every
// subsequent write destined for the off-going half (spec §4.H split()
// phase 1). A SplitStarted metalog entry is recorded only when r.mlog is
// set; NewRange leaves it nil, so no entry is written.
func (r *Range) StartSplit(midpoint []byte) error {
	r.rw.Lock()
	defer r.rw.Unlock()
	if r.split != splitNone {
		return htcerr.New(htcerr.InvalidMetadata, "split already in progress")
	}
	logDir := filepath.Join(r.dir, "log", rangeLogName(r.id)+"-split")
	cl, err := commitlog.Open(r.fsys, commitlog.Config{Dir: logDir, LogFunc: r.log})
	if err != nil {
		return err
	}
	r.splitLog = cl
	r.splitMidRow = midpoint
	r.split = splitStarted
	if r.mlog != nil {
		return r.mlog.Record(metalogTypeSplitStarted, 0, 0, midpoint)
	}
	return nil
}

// CompleteSplit marks the split as handed off to the master for
// placement (spec §4.H split() phase 2). Like StartSplit, it records a
// SplitComplete metalog entry only when r.mlog is set, which NewRange
// does not do.
func (r *Range) CompleteSplit() error {
	r.rw.Lock()
	defer r.rw.Unlock()
	if r.split != splitStarted {
		return htcerr.New(htcerr.InvalidMetadata, "no split in progress")
	}
	r.split = splitComplete
	if r.mlog != nil {
		return r.mlog.Record(metalogTypeSplitComplete, 0, 0, r.splitMidRow)
	}
	return nil
}

const (
	metalogTypeSplitStarted  uint32 = 1
	metalogTypeSplitComplete uint32 = 2
)
