// Package cellstore implements the immutable on-disk sorted file format
// described by spec §4.B: a run of compressed data blocks, a bloom
// filter block, a block index block, and a fixed-size trailer.
package cellstore

import (
	"encoding/binary"

	"github.com/vicaya/hypertable-sub000/blockcompress"
	"github.com/vicaya/hypertable-sub000/bloomfilter"
	"github.com/vicaya/hypertable-sub000/htcerr"
	"github.com/vicaya/hypertable-sub000/serial"
)

// trailerMagic identifies a cell-store trailer record; 10 bytes,
// distinct from the data-block magic in blockcompress so a corrupt
// offset can be told apart from a mis-seeked trailer read.
var trailerMagic = [10]byte{'H', 'T', 'C', 'E', 'L', 'L', 'T', 'R', 'L', '1'}

const trailerVersion = 1

// trailer is the fixed-size record written at the very end of every
// cell store (spec §4.B). Field order is the on-disk order.
type trailer struct {
	Version           uint16
	IndexOffset       int64
	IndexLength       int64
	BloomOffset       int64
	BloomLength       int64
	TotalEntries      uint64
	TotalBytes        uint64
	CompressionType   blockcompress.Type
	BloomItemsEstim   uint64
	BloomItemsActual  uint64
	BloomNumHashes    uint32
	BloomNumBits      uint64
	FilterPolicy      bloomfilter.Policy
	ExpirationTime    uint64 // supplemented: maximum TTL horizon seen among written cells
	ExpirableData     uint64 // supplemented: bytes of cells that carry a family TTL
	CreationTimestamp uint64
}

// trailerFixedLen is the exact byte length of the marshaled trailer
// (magic + version + all fields), used to seek back from end-of-file.
const trailerFixedLen = 10 + 2 + 8*4 + 8*2 + 1 + 8*2 + 4 + 8 + 1 + 8 + 8 + 8

func (t *trailer) marshal() []byte {
	buf := make([]byte, 0, trailerFixedLen)
	buf = append(buf, trailerMagic[:]...)
	buf = appendU16(buf, t.Version)
	buf = appendI64(buf, t.IndexOffset)
	buf = appendI64(buf, t.IndexLength)
	buf = appendI64(buf, t.BloomOffset)
	buf = appendI64(buf, t.BloomLength)
	buf = appendU64(buf, t.TotalEntries)
	buf = appendU64(buf, t.TotalBytes)
	buf = append(buf, byte(t.CompressionType))
	buf = appendU64(buf, t.BloomItemsEstim)
	buf = appendU64(buf, t.BloomItemsActual)
	buf = appendU32(buf, t.BloomNumHashes)
	buf = appendU64(buf, t.BloomNumBits)
	buf = append(buf, byte(t.FilterPolicy))
	buf = appendU64(buf, t.ExpirationTime)
	buf = appendU64(buf, t.ExpirableData)
	buf = appendU64(buf, t.CreationTimestamp)
	return buf
}

func unmarshalTrailer(buf []byte) (*trailer, error) {
	if len(buf) != trailerFixedLen {
		return nil, htcerr.New(htcerr.InvalidMetadata, "trailer length mismatch: got %d want %d", len(buf), trailerFixedLen)
	}
	if [10]byte(buf[:10]) != trailerMagic {
		return nil, htcerr.New(htcerr.InvalidMetadata, "bad trailer magic")
	}
	p := buf[10:]
	t := &trailer{}
	t.Version, p = readU16(p)
	t.IndexOffset, p = readI64(p)
	t.IndexLength, p = readI64(p)
	t.BloomOffset, p = readI64(p)
	t.BloomLength, p = readI64(p)
	t.TotalEntries, p = readU64(p)
	t.TotalBytes, p = readU64(p)
	t.CompressionType, p = blockcompress.Type(p[0]), p[1:]
	t.BloomItemsEstim, p = readU64(p)
	t.BloomItemsActual, p = readU64(p)
	t.BloomNumHashes, p = readU32(p)
	t.BloomNumBits, p = readU64(p)
	t.FilterPolicy, p = bloomfilter.Policy(p[0]), p[1:]
	t.ExpirationTime, p = readU64(p)
	t.ExpirableData, p = readU64(p)
	t.CreationTimestamp, _ = readU64(p)
	if t.Version != trailerVersion {
		return nil, htcerr.New(htcerr.InvalidMetadata, "unsupported trailer version %d", t.Version)
	}
	return t, nil
}

func appendU16(b []byte, v uint16) []byte { return append(b, byte(v>>8), byte(v)) }
func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}
func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}
func appendI64(b []byte, v int64) []byte { return appendU64(b, uint64(v)) }

func readU16(b []byte) (uint16, []byte) { return uint16(b[0])<<8 | uint16(b[1]), b[2:] }
func readU32(b []byte) (uint32, []byte) { return binary.BigEndian.Uint32(b), b[4:] }
func readU64(b []byte) (uint64, []byte) { return binary.BigEndian.Uint64(b), b[8:] }
func readI64(b []byte) (int64, []byte)  { v, r := readU64(b); return int64(v), r }

// indexEntry maps the first key of one data block to its location,
// the unit the block index is built from (spec §4.B).
type indexEntry struct {
	FirstKey       []byte
	Offset         int64
	CompressedSize int64
}

// marshalIndex encodes entries as a run of (bytes32 key, vint64 offset,
// vint64 size) tuples, to be wrapped in a data-block frame like any
// other payload so it benefits from the same compression and checksum
// machinery (spec §4.B: "the index is itself stored compressed in one
// frame").
func marshalIndex(entries []indexEntry) []byte {
	var buf []byte
	buf = serial.PutVint32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = serial.PutBytes32(buf, e.FirstKey)
		buf = serial.PutVint64(buf, uint64(e.Offset))
		buf = serial.PutVint64(buf, uint64(e.CompressedSize))
	}
	return buf
}

func unmarshalIndex(buf []byte) ([]indexEntry, error) {
	n, c, err := serial.GetVint32(buf)
	if err != nil {
		return nil, err
	}
	buf = buf[c:]
	entries := make([]indexEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		key, c1, err := serial.GetBytes32(buf)
		if err != nil {
			return nil, err
		}
		buf = buf[c1:]
		off, c2, err := serial.GetVint64(buf)
		if err != nil {
			return nil, err
		}
		buf = buf[c2:]
		sz, c3, err := serial.GetVint64(buf)
		if err != nil {
			return nil, err
		}
		buf = buf[c3:]
		entries = append(entries, indexEntry{FirstKey: append([]byte(nil), key...), Offset: int64(off), CompressedSize: int64(sz)})
	}
	return entries, nil
}
