// Package scan defines the query description shared by cell stores, the
// cell cache, and the merge scanner (spec §4.M): row and cell intervals,
// a column family bitmap, a time interval, version limiting, and the
// return_deletes/scan_and_filter_rows toggles.
package scan

import (
	"bytes"
	"regexp"

	"github.com/vicaya/hypertable-sub000/cellkey"
)

// RowInterval bounds the row range a scan covers. An empty Start means
// "from the beginning of the table"; an empty End means "to the end".
// StartInclusive/EndInclusive default to false, so a zero-valued
// interval excludes both of its bounds.
type RowInterval struct {
	Start          string
	StartInclusive bool
	End            string
	EndInclusive   bool
}

// CellInterval describes a column range within rows, the shape of point
// and cell-range queries (spec §4.M). Context and the merge scanner do
// not apply Spec.CellIntervals; only RowIntervals bound a scan.
type CellInterval struct {
	StartRow       string
	StartColumn    string
	StartInclusive bool
	EndRow         string
	EndColumn      string
	EndInclusive   bool
}

// TimeInterval bounds the timestamps a scan considers; zero value End
// means MaxTimestamp.
type TimeInterval struct {
	Start uint64
	End   uint64
}

// Spec is the caller-supplied description of a scan, equivalent to the
// original ScanSpec (spec §4.M).
type Spec struct {
	RowIntervals      []RowInterval
	CellIntervals     []CellInterval
	Families          []uint8 // empty means "all families"
	Time              TimeInterval
	MaxVersions       uint32 // 0 means unlimited
	RowLimit          uint32 // 0 means unlimited
	CellLimit         uint32 // 0 means unlimited, per-row cell cap
	ReturnDeletes     bool
	ScanAndFilterRows bool // supplemented feature: apply RowRegexp during the scan; when false RowRegexp is ignored (RowOffset applies either way)
	RowRegexp         string
	RowOffset         uint32
}

// Context compiles a Spec into the fast-path predicates the merge
// scanner and cell-store block skipping use: a family bitmap for O(1)
// membership tests and normalized timestamp bounds (spec §4.M,
// "ScanContext compiles a ScanSpec").
type Context struct {
	Spec         Spec
	familyBitmap [256]bool
	allFamilies  bool
	rowRegexp    *regexp.Regexp
}

// NewContext compiles spec into a Context. Spec.RowRegexp, if non-empty,
// is compiled once here rather than at every row test; an invalid
// pattern fails closed (MatchesRowRegexp then rejects every row) instead
// of silently behaving as an unfiltered scan.
func NewContext(spec Spec) *Context {
	ctx := &Context{Spec: spec}
	if len(spec.Families) == 0 {
		ctx.allFamilies = true
	} else {
		for _, f := range spec.Families {
			ctx.familyBitmap[f] = true
		}
	}
	if ctx.Spec.Time.End == 0 {
		ctx.Spec.Time.End = cellkey.MaxTimestamp
	}
	if spec.RowRegexp != "" {
		if re, err := regexp.Compile(spec.RowRegexp); err == nil {
			ctx.rowRegexp = re
		}
	}
	return ctx
}

// MatchesRowRegexp reports whether row satisfies Spec.RowRegexp. An
// empty RowRegexp matches every row; an uncompilable one matches none.
func (c *Context) MatchesRowRegexp(row []byte) bool {
	if c.Spec.RowRegexp == "" {
		return true
	}
	if c.rowRegexp == nil {
		return false
	}
	return c.rowRegexp.Match(row)
}

// IncludesFamily reports whether family id fid is selected by this scan.
func (c *Context) IncludesFamily(fid uint8) bool {
	return c.allFamilies || c.familyBitmap[fid]
}

// IncludesTimestamp reports whether ts falls within the scan's time
// interval, inclusive of Start and exclusive of End (spec §4.M).
func (c *Context) IncludesTimestamp(ts uint64) bool {
	return ts >= c.Spec.Time.Start && ts < c.Spec.Time.End
}

// IncludesRow reports whether row is covered by any configured row
// interval. An empty RowIntervals list matches every row.
func (c *Context) IncludesRow(row []byte) bool {
	if len(c.Spec.RowIntervals) == 0 {
		return true
	}
	for _, ri := range c.Spec.RowIntervals {
		if rowIntervalContains(ri, row) {
			return true
		}
	}
	return false
}

func rowIntervalContains(ri RowInterval, row []byte) bool {
	if ri.Start != "" {
		cmp := bytes.Compare(row, []byte(ri.Start))
		if cmp < 0 || (cmp == 0 && !ri.StartInclusive) {
			return false
		}
	}
	if ri.End != "" {
		cmp := bytes.Compare(row, []byte(ri.End))
		if cmp > 0 || (cmp == 0 && !ri.EndInclusive) {
			return false
		}
	}
	return true
}

// LowerBound returns the smallest row any configured interval can match,
// used by cell stores and the cell cache to seek directly to the first
// relevant key instead of scanning from the beginning (spec §4.F/§4.G).
func (c *Context) LowerBound() []byte {
	if len(c.Spec.RowIntervals) == 0 {
		return nil
	}
	var lo []byte
	for i, ri := range c.Spec.RowIntervals {
		if ri.Start == "" {
			return nil
		}
		if i == 0 || bytes.Compare([]byte(ri.Start), lo) < 0 {
			lo = []byte(ri.Start)
		}
	}
	return lo
}
