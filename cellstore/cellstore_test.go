package cellstore

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vicaya/hypertable-sub000/blockcache"
	"github.com/vicaya/hypertable-sub000/blockcompress"
	"github.com/vicaya/hypertable-sub000/bloomfilter"
	"github.com/vicaya/hypertable-sub000/cellkey"
	"github.com/vicaya/hypertable-sub000/fs"
	"github.com/vicaya/hypertable-sub000/scan"
)

func cellFixture(n int) []cellkey.Cell {
	cells := make([]cellkey.Cell, n)
	for i := 0; i < n; i++ {
		cells[i] = cellkey.Cell{
			Row:       []byte(rowName(i)),
			FamilyID:  1,
			Qualifier: []byte("q"),
			Timestamp: uint64(1000 + i),
			Revision:  uint64(1000 + i),
			Flag:      cellkey.FlagInsert,
			Value:     []byte("value-" + rowName(i)),
		}
	}
	return cells
}

func rowName(i int) string {
	const alphabet = "0123456789"
	return "row-" + string(alphabet[i/10%10]) + string(alphabet[i%10])
}

func writeStore(t *testing.T, path string, props WriterProps, cells []cellkey.Cell) {
	t.Helper()
	w, err := Create(fs.NewLocal(), path, props)
	require.NoError(t, err)
	for _, c := range cells {
		require.NoError(t, w.Add(c.Key(), c.Value))
	}
	require.NoError(t, w.Finalize())
}

func defaultProps(compression blockcompress.Type) WriterProps {
	return WriterProps{
		TargetBlockSize:  64,
		Compression:      compression,
		BloomPolicy:      bloomfilter.PolicyRows,
		ItemsEstimate:    100,
		FalsePositive:    0.01,
		CreationTimeUnix: 1700000000,
	}
}

func TestWriterRejectsOutOfOrderKeys(t *testing.T) {
	dir := t.TempDir()
	w, err := Create(fs.NewLocal(), filepath.Join(dir, "store.cs"), defaultProps(blockcompress.None))
	require.NoError(t, err)
	first := cellkey.Cell{Row: []byte("b"), FamilyID: 1, Timestamp: 1, Flag: cellkey.FlagInsert}
	second := cellkey.Cell{Row: []byte("a"), FamilyID: 1, Timestamp: 1, Flag: cellkey.FlagInsert}
	require.NoError(t, w.Add(first.Key(), []byte("v")))
	err = w.Add(second.Key(), []byte("v"))
	require.Error(t, err)
}

func TestWriteOpenScanRoundTrip(t *testing.T) {
	for _, codec := range []blockcompress.Type{blockcompress.None, blockcompress.LZO, blockcompress.QuickLZ} {
		dir := t.TempDir()
		path := filepath.Join(dir, "store.cs")
		cells := cellFixture(50)
		writeStore(t, path, defaultProps(codec), cells)

		bc := blockcache.New(1 << 20)
		r, err := Open(fs.NewLocal(), path, 1, bc, nil, nil)
		require.NoError(t, err)
		defer r.Close()

		require.Equal(t, uint64(50), r.TotalEntries())

		ctx := scan.NewContext(scan.Spec{})
		sc, err := r.CreateScanner(ctx)
		require.NoError(t, err)

		var got []string
		for sc.Valid() {
			c, err := sc.Key().Decode()
			require.NoError(t, err)
			got = append(got, string(c.Row))
			sc.Next()
		}
		require.NoError(t, sc.Err())
		require.Len(t, got, 50)
		for i := 1; i < len(got); i++ {
			require.True(t, got[i-1] < got[i], "scan must return ascending row order")
		}
	}
}

func TestBloomFilterExcludesAbsentRow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.cs")
	cells := cellFixture(20)
	writeStore(t, path, defaultProps(blockcompress.None), cells)

	bc := blockcache.New(1 << 20)
	r, err := Open(fs.NewLocal(), path, 1, bc, nil, nil)
	require.NoError(t, err)
	defer r.Close()

	require.True(t, r.MayContain([]byte("row-00")))
	require.False(t, r.MayContain([]byte("definitely-absent-row")))
}

func TestScannerRestrictedToRowInterval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.cs")
	cells := cellFixture(30)
	props := defaultProps(blockcompress.QuickLZ)
	props.TargetBlockSize = 1 // force one cell per block so row pruning is exact
	writeStore(t, path, props, cells)

	bc := blockcache.New(1 << 20)
	r, err := Open(fs.NewLocal(), path, 1, bc, nil, nil)
	require.NoError(t, err)
	defer r.Close()

	ctx := scan.NewContext(scan.Spec{
		RowIntervals: []scan.RowInterval{{Start: "row-10", StartInclusive: true, End: "row-10", EndInclusive: true}},
	})
	sc, err := r.CreateScanner(ctx)
	require.NoError(t, err)
	var got []string
	for sc.Valid() {
		c, err := sc.Key().Decode()
		require.NoError(t, err)
		got = append(got, string(c.Row))
		sc.Next()
	}
	require.Equal(t, []string{"row-10"}, got)
}

func TestScannerSurfacesTombstoneWithinRowBounds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.cs")
	cells := cellFixture(30)
	// Insert a DELETE_ROW tombstone for a row in the middle of the
	// keyspace, older than that row's own insert so it is preserved
	// rather than collapsed away at write time.
	cells = append(cells, cellkey.Cell{
		Row: []byte(rowName(15)), FamilyID: 1, Timestamp: 999, Revision: 999,
		Flag: cellkey.FlagDeleteRow,
	})
	sortCellsByKey(cells)
	props := defaultProps(blockcompress.None)
	props.TargetBlockSize = 1 // one cell per block, same as the row-pruning test
	writeStore(t, path, props, cells)

	bc := blockcache.New(1 << 20)
	r, err := Open(fs.NewLocal(), path, 1, bc, nil, nil)
	require.NoError(t, err)
	defer r.Close()

	ctx := scan.NewContext(scan.Spec{
		RowIntervals:  []scan.RowInterval{{Start: rowName(15), StartInclusive: true, End: rowName(15), EndInclusive: true}},
		ReturnDeletes: true,
	})
	sc, err := r.CreateScanner(ctx)
	require.NoError(t, err)

	var flags []cellkey.Flag
	for sc.Valid() {
		c, err := sc.Key().Decode()
		require.NoError(t, err)
		flags = append(flags, c.Flag)
		sc.Next()
	}
	require.NoError(t, sc.Err())
	require.Contains(t, flags, cellkey.FlagDeleteRow, "row-bounded scan must not skip past the tombstone block")
}

func sortCellsByKey(cells []cellkey.Cell) {
	sort.Slice(cells, func(i, j int) bool {
		return cells[i].Key().Less(cells[j].Key())
	})
}

func TestTrailerDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.cs")
	writeStore(t, path, defaultProps(blockcompress.None), cellFixture(5))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Corrupt the first byte of the trailer's magic.
	data[len(data)-trailerFixedLen] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0644))

	bc := blockcache.New(1 << 20)
	_, err = Open(fs.NewLocal(), path, 1, bc, nil, nil)
	require.Error(t, err)
}
