package hypertable

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vicaya/hypertable-sub000/blockcache"
	"github.com/vicaya/hypertable-sub000/blockcompress"
	"github.com/vicaya/hypertable-sub000/bloomfilter"
	"github.com/vicaya/hypertable-sub000/cellkey"
	"github.com/vicaya/hypertable-sub000/fs"
	"github.com/vicaya/hypertable-sub000/scan"
)

func testAccessGroupSchema() AccessGroupSchema {
	return AccessGroupSchema{
		Name:           "default",
		BlockSize:      65536,
		BloomPolicy:    bloomfilter.PolicyRows,
		Compression:    blockcompress.None,
		SplitThreshold: 1 << 20,
		Families:       []ColumnFamily{{ID: 1, Name: "f"}},
	}
}

func insertCell(t *testing.T, g *AccessGroup, row, qualifier string, ts uint64, value string) {
	t.Helper()
	c := cellkey.Cell{Row: []byte(row), FamilyID: 1, Qualifier: []byte(qualifier), Timestamp: ts, Revision: ts, Flag: cellkey.FlagInsert, Value: []byte(value)}
	require.NoError(t, g.Add(c.Key(), c.Value))
}

func scanAllValues(t *testing.T, g *AccessGroup) []string {
	t.Helper()
	ctx := scan.NewContext(scan.Spec{})
	h, err := g.CreateScanner(ctx, 0)
	require.NoError(t, err)
	defer h.Close()
	var got []string
	for h.Valid() {
		got = append(got, string(h.Cell().Value))
		h.Next()
	}
	require.NoError(t, h.Err())
	return got
}

func TestAccessGroupAddAndScanFromActiveCache(t *testing.T) {
	dir := t.TempDir()
	bc := blockcache.New(1 << 20)
	g := NewAccessGroup("default", testAccessGroupSchema(), nil, nil, fs.NewLocal(), dir, bc, nil)

	insertCell(t, g, "alpha", "q", 1, "v-alpha")
	insertCell(t, g, "beta", "q", 1, "v-beta")

	got := scanAllValues(t, g)
	require.Equal(t, []string{"v-alpha", "v-beta"}, got)
}

func TestAccessGroupRejectsRowOutOfRange(t *testing.T) {
	dir := t.TempDir()
	bc := blockcache.New(1 << 20)
	g := NewAccessGroup("default", testAccessGroupSchema(), []byte("m"), []byte("z"), fs.NewLocal(), dir, bc, nil)

	c := cellkey.Cell{Row: []byte("a"), FamilyID: 1, Timestamp: 1, Flag: cellkey.FlagInsert}
	err := g.Add(c.Key(), []byte("v"))
	require.Error(t, err)
}

func TestMinorCompactionPersistsCellsToDisk(t *testing.T) {
	dir := t.TempDir()
	bc := blockcache.New(1 << 20)
	g := NewAccessGroup("default", testAccessGroupSchema(), nil, nil, fs.NewLocal(), dir, bc, nil)

	insertCell(t, g, "alpha", "q", 1, "v-alpha")
	insertCell(t, g, "beta", "q", 1, "v-beta")

	var purgedAt uint64
	g.SetMinorCompactionHook(func(cutoff uint64) { purgedAt = cutoff })

	require.NoError(t, g.RunCompaction(CompactionMinor, 42))
	require.Equal(t, uint64(42), purgedAt)

	got := scanAllValues(t, g)
	require.Equal(t, []string{"v-alpha", "v-beta"}, got)

	entries, err := fs.NewLocal().Readdir(filepath.Join(dir, "default"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "minor compaction should have written exactly one cell store")
}

func TestFindSplitRowPicksMedianOfInMemoryCache(t *testing.T) {
	dir := t.TempDir()
	bc := blockcache.New(1 << 20)
	g := NewAccessGroup("default", testAccessGroupSchema(), nil, nil, fs.NewLocal(), dir, bc, nil)

	for _, row := range []string{"a", "b", "c", "d", "e"} {
		insertCell(t, g, row, "q", 1, "v")
	}

	mid := g.FindSplitRow()
	require.Equal(t, []byte("c"), mid)
}

func TestFindSplitRowNilWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	bc := blockcache.New(1 << 20)
	g := NewAccessGroup("default", testAccessGroupSchema(), nil, nil, fs.NewLocal(), dir, bc, nil)
	require.Nil(t, g.FindSplitRow())
}
