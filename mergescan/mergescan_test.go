package mergescan

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vicaya/hypertable-sub000/cellkey"
	"github.com/vicaya/hypertable-sub000/scan"
)

type fakeCursor struct {
	cells []cellkey.Cell
	pos   int
}

func newFakeCursor(cells ...cellkey.Cell) *fakeCursor {
	keyed := append([]cellkey.Cell(nil), cells...)
	return &fakeCursor{cells: keyed}
}

func (c *fakeCursor) Valid() bool { return c.pos < len(c.cells) }
func (c *fakeCursor) Key() cellkey.SerializedKey {
	cell := c.cells[c.pos]
	return cell.Key()
}
func (c *fakeCursor) Value() []byte { return c.cells[c.pos].Value }
func (c *fakeCursor) Next()         { c.pos++ }

func drain(s *Scanner) []cellkey.Cell {
	var out []cellkey.Cell
	for s.Valid() {
		out = append(out, s.Cell())
		s.Next()
	}
	return out
}

func TestMergeOrdersAcrossCursors(t *testing.T) {
	c1 := newFakeCursor(
		cellkey.Cell{Row: []byte("a"), FamilyID: 1, Qualifier: []byte("q"), Timestamp: 10, Flag: cellkey.FlagInsert, Value: []byte("a10")},
		cellkey.Cell{Row: []byte("c"), FamilyID: 1, Qualifier: []byte("q"), Timestamp: 10, Flag: cellkey.FlagInsert, Value: []byte("c10")},
	)
	c2 := newFakeCursor(
		cellkey.Cell{Row: []byte("b"), FamilyID: 1, Qualifier: []byte("q"), Timestamp: 10, Flag: cellkey.FlagInsert, Value: []byte("b10")},
	)
	ctx := scan.NewContext(scan.Spec{})
	s := New(ctx, []Cursor{c1, c2}, nil, 0)
	got := drain(s)
	require.Len(t, got, 3)
	require.Equal(t, []byte("a"), got[0].Row)
	require.Equal(t, []byte("b"), got[1].Row)
	require.Equal(t, []byte("c"), got[2].Row)
}

func TestDeleteRowSuppressesOlderInserts(t *testing.T) {
	c := newFakeCursor(
		cellkey.Cell{Row: []byte("r"), FamilyID: 1, Timestamp: 100, Flag: cellkey.FlagDeleteRow},
		cellkey.Cell{Row: []byte("r"), FamilyID: 1, Qualifier: []byte("q"), Timestamp: 90, Flag: cellkey.FlagInsert, Value: []byte("old")},
		cellkey.Cell{Row: []byte("r"), FamilyID: 1, Qualifier: []byte("q"), Timestamp: 110, Flag: cellkey.FlagInsert, Value: []byte("new")},
	)
	ctx := scan.NewContext(scan.Spec{})
	s := New(ctx, []Cursor{c}, nil, 0)
	got := drain(s)
	require.Len(t, got, 1)
	require.Equal(t, []byte("new"), got[0].Value)
}

func TestReturnDeletesSurfacesTombstones(t *testing.T) {
	c := newFakeCursor(
		cellkey.Cell{Row: []byte("r"), FamilyID: 1, Timestamp: 100, Flag: cellkey.FlagDeleteRow},
		cellkey.Cell{Row: []byte("r"), FamilyID: 1, Qualifier: []byte("q"), Timestamp: 90, Flag: cellkey.FlagInsert, Value: []byte("old")},
	)
	ctx := scan.NewContext(scan.Spec{ReturnDeletes: true})
	s := New(ctx, []Cursor{c}, nil, 0)
	got := drain(s)
	require.Len(t, got, 2)
	require.Equal(t, cellkey.FlagDeleteRow, got[0].Flag)
	require.Equal(t, cellkey.FlagInsert, got[1].Flag)
}

func TestMaxVersionsLimitsEmittedCount(t *testing.T) {
	c := newFakeCursor(
		cellkey.Cell{Row: []byte("r"), FamilyID: 1, Qualifier: []byte("q"), Timestamp: 30, Flag: cellkey.FlagInsert, Value: []byte("v3")},
		cellkey.Cell{Row: []byte("r"), FamilyID: 1, Qualifier: []byte("q"), Timestamp: 20, Flag: cellkey.FlagInsert, Value: []byte("v2")},
		cellkey.Cell{Row: []byte("r"), FamilyID: 1, Qualifier: []byte("q"), Timestamp: 10, Flag: cellkey.FlagInsert, Value: []byte("v1")},
	)
	ctx := scan.NewContext(scan.Spec{MaxVersions: 2})
	s := New(ctx, []Cursor{c}, nil, 0)
	got := drain(s)
	require.Len(t, got, 2)
	require.Equal(t, []byte("v3"), got[0].Value)
	require.Equal(t, []byte("v2"), got[1].Value)
}

func TestTTLFilterDropsExpiredCells(t *testing.T) {
	c := newFakeCursor(
		cellkey.Cell{Row: []byte("r"), FamilyID: 1, Qualifier: []byte("q"), Timestamp: 100, Flag: cellkey.FlagInsert, Value: []byte("stale")},
	)
	ctx := scan.NewContext(scan.Spec{})
	families := map[uint8]FamilyConfig{1: {TTLSeconds: 10}}
	s := New(ctx, []Cursor{c}, families, 1000)
	require.False(t, s.Valid())
}

func TestFamilyMaskExcludesOtherFamilies(t *testing.T) {
	c := newFakeCursor(
		cellkey.Cell{Row: []byte("r"), FamilyID: 1, Qualifier: []byte("q"), Timestamp: 1, Flag: cellkey.FlagInsert, Value: []byte("f1")},
		cellkey.Cell{Row: []byte("r"), FamilyID: 2, Qualifier: []byte("q"), Timestamp: 1, Flag: cellkey.FlagInsert, Value: []byte("f2")},
	)
	ctx := scan.NewContext(scan.Spec{Families: []uint8{2}})
	s := New(ctx, []Cursor{c}, nil, 0)
	got := drain(s)
	require.Len(t, got, 1)
	require.Equal(t, []byte("f2"), got[0].Value)
}

func threeRowCursor() *fakeCursor {
	return newFakeCursor(
		cellkey.Cell{Row: []byte("a"), FamilyID: 1, Qualifier: []byte("q"), Timestamp: 1, Flag: cellkey.FlagInsert, Value: []byte("a")},
		cellkey.Cell{Row: []byte("b"), FamilyID: 1, Qualifier: []byte("q"), Timestamp: 1, Flag: cellkey.FlagInsert, Value: []byte("b")},
		cellkey.Cell{Row: []byte("c"), FamilyID: 1, Qualifier: []byte("q"), Timestamp: 1, Flag: cellkey.FlagInsert, Value: []byte("c")},
	)
}

func TestRowLimitStopsAfterNRows(t *testing.T) {
	ctx := scan.NewContext(scan.Spec{RowLimit: 1})
	s := New(ctx, []Cursor{threeRowCursor()}, nil, 0)
	got := drain(s)
	require.Len(t, got, 1)
	require.Equal(t, []byte("a"), got[0].Row)
}

func TestRowOffsetSkipsLeadingRows(t *testing.T) {
	ctx := scan.NewContext(scan.Spec{RowOffset: 1, RowLimit: 1})
	s := New(ctx, []Cursor{threeRowCursor()}, nil, 0)
	got := drain(s)
	require.Len(t, got, 1)
	require.Equal(t, []byte("b"), got[0].Row)
}

func TestScanAndFilterRowsAppliesRowRegexp(t *testing.T) {
	ctx := scan.NewContext(scan.Spec{ScanAndFilterRows: true, RowRegexp: "^(a|c)$"})
	s := New(ctx, []Cursor{threeRowCursor()}, nil, 0)
	got := drain(s)
	require.Len(t, got, 2)
	require.Equal(t, []byte("a"), got[0].Row)
	require.Equal(t, []byte("c"), got[1].Row)
}

func TestRowRegexpIgnoredWithoutScanAndFilterRows(t *testing.T) {
	ctx := scan.NewContext(scan.Spec{RowRegexp: "^a$"})
	s := New(ctx, []Cursor{threeRowCursor()}, nil, 0)
	got := drain(s)
	require.Len(t, got, 3)
}

func TestCellLimitCapsCellsPerRow(t *testing.T) {
	c := newFakeCursor(
		cellkey.Cell{Row: []byte("r"), FamilyID: 1, Qualifier: []byte("q1"), Timestamp: 1, Flag: cellkey.FlagInsert, Value: []byte("v1")},
		cellkey.Cell{Row: []byte("r"), FamilyID: 1, Qualifier: []byte("q2"), Timestamp: 1, Flag: cellkey.FlagInsert, Value: []byte("v2")},
		cellkey.Cell{Row: []byte("s"), FamilyID: 1, Qualifier: []byte("q1"), Timestamp: 1, Flag: cellkey.FlagInsert, Value: []byte("v3")},
	)
	ctx := scan.NewContext(scan.Spec{CellLimit: 1})
	s := New(ctx, []Cursor{c}, nil, 0)
	got := drain(s)
	require.Len(t, got, 2)
	require.Equal(t, []byte("v1"), got[0].Value)
	require.Equal(t, []byte("v3"), got[1].Value)
}
