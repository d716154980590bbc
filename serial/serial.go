// Package serial implements the primitive on-disk encodings shared by
// every binary format in this module: fixed-width integers, vints, and
// length-prefixed byte strings, plus the Fletcher-32 and Adler-32
// checksums used throughout the cell store, commit log and metalog
// framing.
//
// The teacher (gholt/store) hand-rolls its own big-endian framing
// directly with encoding/binary rather than reaching for a serialization
// library; this package follows the same approach since Fletcher-32 is
// not available in any example repository's dependency set (see
// DESIGN.md).
package serial

import (
	"github.com/vicaya/hypertable-sub000/htcerr"
)

// PutUint8/Int8 and friends intentionally omitted: callers needing a
// single byte just index the slice directly, matching the teacher's
// style of not wrapping trivial accesses.

// PutVint32 appends a 7-bit continuation-encoded uint32 to buf and
// returns the grown slice.
func PutVint32(buf []byte, v uint32) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// PutVint64 appends a 7-bit continuation-encoded uint64 to buf.
func PutVint64(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// GetVint32 decodes a vint32 from the front of buf, returning the value
// and the number of bytes consumed, or SERIALIZATION_INPUT_OVERRUN if
// buf runs out before the continuation chain terminates.
func GetVint32(buf []byte) (uint32, int, error) {
	var v uint32
	var shift uint
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
		if shift > 35 {
			break
		}
	}
	return 0, 0, htcerr.New(htcerr.SerializationInputOverrun, "vint32 truncated")
}

// GetVint64 is the 64-bit counterpart of GetVint32.
func GetVint64(buf []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
		if shift > 70 {
			break
		}
	}
	return 0, 0, htcerr.New(htcerr.SerializationInputOverrun, "vint64 truncated")
}

// PutBytes32 appends a 4-byte big-endian length prefix followed by b.
func PutBytes32(buf []byte, b []byte) []byte {
	n := uint32(len(b))
	buf = append(buf, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	return append(buf, b...)
}

// GetBytes32 decodes a 4-byte big-endian length-prefixed byte string
// from the front of buf, returning the slice (sharing buf's backing
// array) and the number of bytes consumed.
func GetBytes32(buf []byte) ([]byte, int, error) {
	const hdr = 4
	if len(buf) < hdr {
		return nil, 0, htcerr.New(htcerr.SerializationInputOverrun, "bytes32 length truncated")
	}
	n := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	end := hdr + int(n)
	if end > len(buf) || end < hdr {
		return nil, 0, htcerr.New(htcerr.SerializationInputOverrun, "bytes32 overrun: need %d have %d", end, len(buf))
	}
	return buf[hdr:end], end, nil
}

// PutStr16 appends a 2-byte big-endian length prefix, the UTF-8 bytes of
// s, and a trailing NUL, mirroring the on-disk str16 encoding used for
// short identifiers (table names, column family names).
func PutStr16(buf []byte, s string) []byte {
	b := []byte(s)
	n := len(b) + 1
	buf = append(buf, byte(n>>8), byte(n))
	buf = append(buf, b...)
	return append(buf, 0)
}

// GetStr16 decodes a str16-encoded string from the front of buf.
func GetStr16(buf []byte) (string, int, error) {
	if len(buf) < 2 {
		return "", 0, htcerr.New(htcerr.SerializationInputOverrun, "str16 header truncated")
	}
	n := int(buf[0])<<8 | int(buf[1])
	end := 2 + n
	if end > len(buf) || n < 1 {
		return "", 0, htcerr.New(htcerr.SerializationInputOverrun, "str16 overrun")
	}
	return string(buf[2 : end-1]), end, nil
}

// Fletcher32 computes the Fletcher-32 checksum of data, per the
// reference algorithm: two 16-bit partial sums accumulated over 16-bit
// words of the payload, reduced modulo 65535, with the odd trailing
// byte (if any) treated as a word with a zero high byte.
func Fletcher32(data []byte) uint32 {
	var sum1, sum2 uint32 = 0xffff, 0xffff
	n := len(data)
	i := 0
	for i+360 <= n || (n-i) >= 2 {
		blockEnd := i + 360
		if blockEnd > n-(n-i)%2 {
			blockEnd = n - (n-i)%2
		}
		for ; i < blockEnd; i += 2 {
			word := uint32(data[i]) | uint32(data[i+1])<<8
			sum1 += word
			sum2 += sum1
		}
		sum1 = (sum1 & 0xffff) + (sum1 >> 16)
		sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	}
	if i < n {
		word := uint32(data[i])
		sum1 += word
		sum2 += sum1
		sum1 = (sum1 & 0xffff) + (sum1 >> 16)
		sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	}
	sum1 = (sum1 & 0xffff) + (sum1 >> 16)
	sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	return (sum2 << 16) | sum1
}

// Adler32 computes the Adler-32 checksum of data using the classic
// modulo-65521 rolling sums; kept alongside Fletcher32 because spec
// §4.A requires both primitives even though Fletcher-32 is the one used
// pervasively for on-disk payloads.
func Adler32(data []byte) uint32 {
	const mod = 65521
	var a, b uint32 = 1, 0
	for _, c := range data {
		a = (a + uint32(c)) % mod
		b = (b + a) % mod
	}
	return (b << 16) | a
}
