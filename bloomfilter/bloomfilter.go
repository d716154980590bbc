// Package bloomfilter implements the checksummed bloom filter persisted
// at the end of every cell store (spec §4.B, §4.C). Membership may be
// tested at row, row+family, or row+cell granularity depending on the
// access group's Policy.
package bloomfilter

import (
	"encoding/binary"
	"math"

	"github.com/spaolacci/murmur3"
	"github.com/vicaya/hypertable-sub000/htcerr"
	"github.com/vicaya/hypertable-sub000/serial"
)

// Policy controls what key granularity is hashed into the filter,
// matching the original AccessGroup.cc's three-way BloomFilterMode.
type Policy int

const (
	PolicyNone Policy = iota
	PolicyRows
	PolicyRowsColumns
)

// Filter is a persisted Bloom filter with a Fletcher-32 checksum.
// The hash family starts from murmur3 of the key; each further hash is
// murmur3 of the key followed by the previous hash's four bytes
// (little-endian), so every hash derives from the one before it (spec
// §4.B); spaolacci/murmur3 is the teacher's own hash
// dependency, reused here in place of a literal MurmurHash2
// implementation, which no example repository carries (see DESIGN.md).
type Filter struct {
	bits          []byte
	numBits       uint64
	numHashes     int
	itemsEstimate uint64
	itemsActual   uint64
	falsePositive float64
}

// New sizes a filter from the standard formula: bits = n*(-ln p)/(ln2)^2,
// k = -log2(p) hash functions, both rounded up (spec §4.B).
func New(itemsEstimate uint64, falsePositiveProb float64) *Filter {
	if itemsEstimate == 0 {
		itemsEstimate = 1
	}
	if falsePositiveProb <= 0 || falsePositiveProb >= 1 {
		falsePositiveProb = 0.01
	}
	bitsPerItem := -math.Log(falsePositiveProb) / (math.Ln2 * math.Ln2)
	numBits := uint64(math.Ceil(float64(itemsEstimate) * bitsPerItem))
	if numBits < 8 {
		numBits = 8
	}
	numHashes := int(math.Ceil(-math.Log2(falsePositiveProb)))
	if numHashes < 1 {
		numHashes = 1
	}
	return &Filter{
		bits:          make([]byte, (numBits+7)/8),
		numBits:       numBits,
		numHashes:     numHashes,
		itemsEstimate: itemsEstimate,
		falsePositive: falsePositiveProb,
	}
}

// NumBits, NumHashes, ItemsEstimate, ItemsActual expose the trailer
// fields recorded by cellstore (spec §4.B trailer: bloom_num_hashes,
// bloom_num_bits, bloom_items_estimate/actual).
func (f *Filter) NumBits() uint64       { return f.numBits }
func (f *Filter) NumHashes() int        { return f.numHashes }
func (f *Filter) ItemsEstimate() uint64 { return f.itemsEstimate }
func (f *Filter) ItemsActual() uint64   { return f.itemsActual }

// Add inserts key into the filter.
func (f *Filter) Add(key []byte) {
	buf := make([]byte, len(key)+4)
	copy(buf, key)
	h := murmur3.Sum32(key)
	for i := 0; i < f.numHashes; i++ {
		bit := uint64(h) % f.numBits
		f.bits[bit/8] |= 1 << (bit % 8)
		buf[len(key)], buf[len(key)+1], buf[len(key)+2], buf[len(key)+3] = byte(h), byte(h>>8), byte(h>>16), byte(h>>24)
		h = murmur3.Sum32(buf)
	}
	f.itemsActual++
}

// MayContain tests membership. False positives are possible; false
// negatives never are (spec §8 property 4).
func (f *Filter) MayContain(key []byte) bool {
	buf := make([]byte, len(key)+4)
	copy(buf, key)
	h := murmur3.Sum32(key)
	for i := 0; i < f.numHashes; i++ {
		bit := uint64(h) % f.numBits
		if f.bits[bit/8]&(1<<(bit%8)) == 0 {
			return false
		}
		buf[len(key)], buf[len(key)+1], buf[len(key)+2], buf[len(key)+3] = byte(h), byte(h>>8), byte(h>>16), byte(h>>24)
		h = murmur3.Sum32(buf)
	}
	return true
}

// Serialize encodes the filter as a length-prefixed block with a
// trailing Fletcher-32 checksum over (metadata || bits), matching the
// "persisted with a length-prefix and Fletcher-32" requirement of
// spec §4.B.
func (f *Filter) Serialize() []byte {
	buf := make([]byte, 0, 32+len(f.bits))
	buf = serial.PutVint64(buf, f.numBits)
	buf = serial.PutVint32(buf, uint32(f.numHashes))
	buf = serial.PutVint64(buf, f.itemsEstimate)
	buf = serial.PutVint64(buf, f.itemsActual)
	buf = serial.PutBytes32(buf, f.bits)
	checksum := serial.Fletcher32(buf)
	out := make([]byte, 4+len(buf)+4)
	binary.BigEndian.PutUint32(out, uint32(len(buf)))
	copy(out[4:], buf)
	binary.BigEndian.PutUint32(out[4+len(buf):], checksum)
	return out
}

// Deserialize parses and validates a filter previously written by
// Serialize, returning BLOOMFILTER_CHECKSUM_MISMATCH on a checksum
// failure (spec §4.B, §7).
func Deserialize(data []byte) (*Filter, int, error) {
	if len(data) < 4 {
		return nil, 0, htcerr.New(htcerr.SerializationInputOverrun, "bloom filter header truncated")
	}
	n := binary.BigEndian.Uint32(data)
	total := 4 + int(n) + 4
	if total > len(data) {
		return nil, 0, htcerr.New(htcerr.SerializationInputOverrun, "bloom filter body truncated")
	}
	body := data[4 : 4+n]
	wantChecksum := binary.BigEndian.Uint32(data[4+n:])
	if serial.Fletcher32(body) != wantChecksum {
		return nil, 0, htcerr.New(htcerr.BloomFilterChecksumMismatch, "bloom filter checksum mismatch")
	}
	rest := body
	numBits, n1, err := serial.GetVint64(rest)
	if err != nil {
		return nil, 0, err
	}
	rest = rest[n1:]
	numHashes, n2, err := serial.GetVint32(rest)
	if err != nil {
		return nil, 0, err
	}
	rest = rest[n2:]
	itemsEstimate, n3, err := serial.GetVint64(rest)
	if err != nil {
		return nil, 0, err
	}
	rest = rest[n3:]
	itemsActual, n4, err := serial.GetVint64(rest)
	if err != nil {
		return nil, 0, err
	}
	rest = rest[n4:]
	bits, _, err := serial.GetBytes32(rest)
	if err != nil {
		return nil, 0, err
	}
	f := &Filter{
		bits:          append([]byte(nil), bits...),
		numBits:       numBits,
		numHashes:     int(numHashes),
		itemsEstimate: itemsEstimate,
		itemsActual:   itemsActual,
	}
	return f, total, nil
}

// BitsPerItemFor9p6 is the commonly quoted bits-per-item figure for p=0.01
// (~9.6), exposed for callers that want to pre-size without calling New.
const BitsPerItemFor9p6 = 9.6
