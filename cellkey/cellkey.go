// Package cellkey implements the canonical on-disk key format used by
// every persisted structure in the range server: cell stores, the
// commit log, and the in-memory cell cache all order cells by the same
// SerializedKey byte-string comparison (spec §3).
package cellkey

import (
	"bytes"
	"math"

	"github.com/vicaya/hypertable-sub000/htcerr"
)

// Flag distinguishes an insert from the three delete scopes a cell can
// carry. Delete flags are numerically smaller than Insert, and the flag
// is compared right after the row, so every delete in a row sorts
// before every insert in that row (spec §3: "a delete at timestamp T suppresses all
// inserts with timestamp <= T").
type Flag uint8

const (
	FlagDeleteRow Flag = iota
	FlagDeleteColumnFamily
	FlagDeleteCell
	FlagInsert
)

func (f Flag) String() string {
	switch f {
	case FlagDeleteRow:
		return "DELETE_ROW"
	case FlagDeleteColumnFamily:
		return "DELETE_COLUMN_FAMILY"
	case FlagDeleteCell:
		return "DELETE_CELL"
	case FlagInsert:
		return "INSERT"
	default:
		return "UNKNOWN"
	}
}

// IsDelete reports whether f is one of the three tombstone flags.
func (f Flag) IsDelete() bool { return f != FlagInsert }

// Cell is the logical tuple described in spec §3. Row and Family must be
// non-empty for an Insert; Qualifier may be empty.
type Cell struct {
	Row       []byte
	FamilyID  uint8
	Qualifier []byte
	Timestamp uint64
	Revision  uint64
	Flag      Flag
	Value     []byte
}

// Key builds the SerializedKey for this cell. Layout (spec §3):
//
//	row NUL-terminated | flag(1) | family_id(1) | qualifier NUL-terminated | NUL
//	      | ~timestamp(8, big-endian) | ~revision(8, big-endian)
//
// Row leads so that bytes.Compare orders primarily by row; flag comes
// right after the row terminator, ahead of family/qualifier, so that a
// DELETE_ROW or DELETE_COLUMN_FAMILY tombstone sorts before every insert
// in that same row regardless of which family the insert targets
// (matching create_key_and_append's row-then-control-byte convention).
func (c *Cell) Key() SerializedKey {
	buf := make([]byte, 0, len(c.Row)+1+1+1+len(c.Qualifier)+1+1+8+8)
	buf = append(buf, c.Row...)
	buf = append(buf, 0)
	buf = append(buf, byte(c.Flag))
	buf = append(buf, c.FamilyID)
	if c.Flag == FlagInsert || c.Flag == FlagDeleteCell {
		buf = append(buf, c.Qualifier...)
	}
	buf = append(buf, 0, 0)
	putUint64BE(&buf, ^c.Timestamp)
	putUint64BE(&buf, ^c.Revision)
	return SerializedKey(buf)
}

func putUint64BE(buf *[]byte, v uint64) {
	*buf = append(*buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// SerializedKey is the flat byte-string encoding of a Cell's identity.
// Its natural bytes.Compare order is the table's total order (spec §3):
// ascending row, then flag, then family id, then qualifier, then
// descending timestamp, then descending revision. Flag sorting ahead of
// family/qualifier is what makes DELETE_ROW/DELETE_COLUMN_FAMILY keys
// sort before any insert in the same row, in any family.
type SerializedKey []byte

// Compare returns -1, 0, or 1 following bytes.Compare; this is the
// order every cell store, cursor and merge heap in this module uses.
func (k SerializedKey) Compare(other SerializedKey) int {
	return bytes.Compare(k, other)
}

// Less reports whether k sorts strictly before other.
func (k SerializedKey) Less(other SerializedKey) bool {
	return bytes.Compare(k, other) < 0
}

// Decode parses a SerializedKey back into Row, FamilyID, Qualifier,
// Timestamp and Revision (Qualifier's presence depends on the decoded
// Flag, matching Key's encoding rules).
func (k SerializedKey) Decode() (Cell, error) {
	var c Cell
	nul := bytes.IndexByte(k, 0)
	if nul < 0 {
		return c, htcerr.New(htcerr.SerializationInputOverrun, "row not NUL-terminated")
	}
	c.Row = k[:nul]
	rest := k[nul+1:]
	if len(rest) < 1 {
		return c, htcerr.New(htcerr.SerializationInputOverrun, "missing flag")
	}
	c.Flag = Flag(rest[0])
	rest = rest[1:]
	if len(rest) < 1 {
		return c, htcerr.New(htcerr.SerializationInputOverrun, "missing family id")
	}
	c.FamilyID = rest[0]
	rest = rest[1:]
	if c.Flag == FlagInsert || c.Flag == FlagDeleteCell {
		nul = bytes.IndexByte(rest, 0)
		if nul < 0 {
			return c, htcerr.New(htcerr.SerializationInputOverrun, "qualifier not NUL-terminated")
		}
		if nul > 0 {
			c.Qualifier = rest[:nul]
		}
		rest = rest[nul+1:]
	} else {
		if len(rest) < 1 || rest[0] != 0 {
			return c, htcerr.New(htcerr.SerializationInputOverrun, "missing qualifier terminator")
		}
		rest = rest[1:]
	}
	// Key() always appends a second NUL separator after the qualifier's
	// own terminator (empty or not); consume it here in both branches.
	if len(rest) < 1 || rest[0] != 0 {
		return c, htcerr.New(htcerr.SerializationInputOverrun, "missing key separator")
	}
	rest = rest[1:]
	if len(rest) != 16 {
		return c, htcerr.New(htcerr.SerializationInputOverrun, "timestamp/revision truncated")
	}
	c.Timestamp = ^getUint64BE(rest[:8])
	c.Revision = ^getUint64BE(rest[8:])
	return c, nil
}

func getUint64BE(b []byte) uint64 {
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}

// RowOf returns just the row of a serialized key without a full Decode,
// used by block-index and split-row logic that only cares about row
// boundaries.
func (k SerializedKey) RowOf() []byte {
	nul := bytes.IndexByte(k, 0)
	if nul < 0 {
		return k
	}
	return k[:nul]
}

// MaxTimestamp is the largest representable timestamp (all 64 bits
// set).
const MaxTimestamp = math.MaxUint64

// Value is length-prefixed opaque bytes on disk (4-byte big-endian
// length then bytes); in memory it is just a []byte, the prefix only exists in the
// serialized form written by cellstore and commitlog encoders.
type Value []byte
