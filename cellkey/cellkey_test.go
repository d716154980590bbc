package cellkey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyRoundTrip(t *testing.T) {
	cases := []Cell{
		{Row: []byte("apple"), FamilyID: 3, Qualifier: []byte("q1"), Timestamp: 1000, Revision: 1000, Flag: FlagInsert},
		{Row: []byte("apple"), FamilyID: 3, Qualifier: nil, Timestamp: 2000, Revision: 2000, Flag: FlagInsert},
		{Row: []byte("banana"), FamilyID: 1, Timestamp: 500, Revision: 500, Flag: FlagDeleteRow},
		{Row: []byte("banana"), FamilyID: 2, Timestamp: 500, Revision: 500, Flag: FlagDeleteColumnFamily},
		{Row: []byte("banana"), FamilyID: 2, Qualifier: []byte("q9"), Timestamp: 500, Revision: 500, Flag: FlagDeleteCell},
	}
	for _, c := range cases {
		key := c.Key()
		got, err := key.Decode()
		require.NoError(t, err)
		require.Equal(t, c.Row, got.Row)
		require.Equal(t, c.FamilyID, got.FamilyID)
		require.Equal(t, c.Timestamp, got.Timestamp)
		require.Equal(t, c.Revision, got.Revision)
		require.Equal(t, c.Flag, got.Flag)
		if c.Flag == FlagInsert || c.Flag == FlagDeleteCell {
			require.Equal(t, c.Qualifier, got.Qualifier)
		}
	}
}

func TestKeyOrderingAscendingRow(t *testing.T) {
	a := (&Cell{Row: []byte("a"), FamilyID: 1, Timestamp: 1, Flag: FlagInsert}).Key()
	b := (&Cell{Row: []byte("b"), FamilyID: 1, Timestamp: 1, Flag: FlagInsert}).Key()
	require.True(t, a.Less(b))
}

func TestKeyOrderingDescendingTimestamp(t *testing.T) {
	newer := (&Cell{Row: []byte("r"), FamilyID: 1, Timestamp: 100, Flag: FlagInsert}).Key()
	older := (&Cell{Row: []byte("r"), FamilyID: 1, Timestamp: 50, Flag: FlagInsert}).Key()
	require.True(t, newer.Less(older))
}

func TestDeleteSortsBeforeInsertAtSameScope(t *testing.T) {
	del := (&Cell{Row: []byte("r"), FamilyID: 1, Timestamp: 100, Flag: FlagDeleteColumnFamily}).Key()
	ins := (&Cell{Row: []byte("r"), FamilyID: 1, Qualifier: []byte("q"), Timestamp: 100, Flag: FlagInsert}).Key()
	require.True(t, del.Less(ins))
}

func TestRowOf(t *testing.T) {
	key := (&Cell{Row: []byte("myrow"), FamilyID: 1, Qualifier: []byte("q"), Timestamp: 1, Flag: FlagInsert}).Key()
	require.Equal(t, []byte("myrow"), key.RowOf())
}

func TestDecodeEmptyKey(t *testing.T) {
	var k SerializedKey
	_, err := k.Decode()
	require.Error(t, err)
}
