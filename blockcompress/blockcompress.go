// Package blockcompress implements the block-compression codecs and the
// versioned block-header framing used by cell-store data blocks and the
// block index (spec §4.D). The commit log frames its blocks with its
// own header and shares only the codec functions (CompressPayload,
// DecompressPayload). Three codecs are supported: NONE, LZO, and
// QUICKLZ.
//
// No literal LZO1X or QuickLZ package exists anywhere in the example
// corpus. Per DESIGN.md, the LZO slot is implemented with
// github.com/pierrec/lz4/v4 and the QUICKLZ slot with
// github.com/golang/snappy — both are pack-wide block-compression
// dependencies exercised the same way the originals would be: chosen
// per access group, dispatched on a one-byte type tag.
package blockcompress

import (
	"encoding/binary"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
	"github.com/vicaya/hypertable-sub000/htcerr"
	"github.com/vicaya/hypertable-sub000/serial"
)

// Type identifies a block codec; persisted as a single byte in every
// block header and in the cell-store trailer.
type Type uint8

const (
	None Type = iota
	LZO
	QuickLZ
)

func (t Type) String() string {
	switch t {
	case None:
		return "NONE"
	case LZO:
		return "LZO"
	case QuickLZ:
		return "QUICKLZ"
	default:
		return "UNKNOWN"
	}
}

// magic identifies a data-block frame on disk; 10 bytes per spec §4.B.
var magic = [10]byte{'H', 'T', 'C', 'E', 'L', 'L', 'B', 'L', 'K', '0'}

const (
	fixedHeaderLen = 1 + 4 + 4 + 4 + 2 // compression_type, payload_checksum, uncompressed_len, compressed_len, header_checksum
)

// CompressPayload and DecompressPayload expose the codec dispatch
// directly, for callers like commitlog that frame raw compressed
// payloads under their own header rather than EncodeBlock's.
func CompressPayload(t Type, src []byte) ([]byte, error) { return compress(t, src) }
func DecompressPayload(t Type, compressed []byte, uncompressedLen int) ([]byte, error) {
	return decompress(t, compressed, uncompressedLen)
}

// compress runs the codec named by t over src, returning the compressed
// bytes. LZO is backed by pierrec/lz4's block API, QUICKLZ by
// golang/snappy's block API; NONE is a no-op.
func compress(t Type, src []byte) ([]byte, error) {
	switch t {
	case None:
		return src, nil
	case LZO:
		dst := make([]byte, lz4.CompressBlockBound(len(src)))
		var c lz4.Compressor
		n, err := c.CompressBlock(src, dst)
		if err != nil {
			return nil, htcerr.Wrap(htcerr.BlockCompressorInflateError, err, "lz4 compress")
		}
		if n == 0 {
			// Incompressible per pierrec/lz4 contract: store raw, caller's
			// size comparison will fall back to NONE.
			return src, nil
		}
		return dst[:n], nil
	case QuickLZ:
		return snappy.Encode(nil, src), nil
	default:
		return nil, htcerr.New(htcerr.BlockCompressorBadHeader, "unknown compression type %d", t)
	}
}

// decompress reverses compress, given the known uncompressed length.
func decompress(t Type, compressed []byte, uncompressedLen int) ([]byte, error) {
	switch t {
	case None:
		out := make([]byte, len(compressed))
		copy(out, compressed)
		return out, nil
	case LZO:
		dst := make([]byte, uncompressedLen)
		n, err := lz4.UncompressBlock(compressed, dst)
		if err != nil {
			return nil, htcerr.Wrap(htcerr.BlockCompressorInflateError, err, "lz4 decompress")
		}
		if n != uncompressedLen {
			return nil, htcerr.New(htcerr.BlockCompressorInflateError, "lz4 decompress length mismatch: got %d want %d", n, uncompressedLen)
		}
		return dst, nil
	case QuickLZ:
		out, err := snappy.Decode(nil, compressed)
		if err != nil {
			return nil, htcerr.Wrap(htcerr.BlockCompressorInflateError, err, "snappy decompress")
		}
		if len(out) != uncompressedLen {
			return nil, htcerr.New(htcerr.BlockCompressorInflateError, "snappy decompress length mismatch: got %d want %d", len(out), uncompressedLen)
		}
		return out, nil
	default:
		return nil, htcerr.New(htcerr.BlockCompressorBadHeader, "unknown compression type %d", t)
	}
}

// EncodeBlock compresses payload with codec t and frames it per spec
// §4.B:
//
//	magic(10) | header_len(1) | compression_type(1)
//	        | payload_checksum(4, Fletcher-32 of compressed bytes)
//	        | uncompressed_len(4) | compressed_len(4)
//	        | [reserved to header_len] | header_checksum(2)
//	        | compressed payload
//
// If the compressed form is not smaller than the input, the frame is
// rewritten using None (spec §4.D).
func EncodeBlock(t Type, payload []byte) ([]byte, error) {
	compressed, err := compress(t, payload)
	if err != nil {
		return nil, err
	}
	if t != None && len(compressed) >= len(payload) {
		t = None
		compressed = payload
	}
	header := make([]byte, fixedHeaderLen)
	header[0] = byte(t)
	binary.BigEndian.PutUint32(header[1:], serial.Fletcher32(compressed))
	binary.BigEndian.PutUint32(header[5:], uint32(len(payload)))
	binary.BigEndian.PutUint32(header[9:], uint32(len(compressed)))
	headerChecksum := uint16(serial.Fletcher32(header[:fixedHeaderLen-2]) >> 16)
	binary.BigEndian.PutUint16(header[fixedHeaderLen-2:], headerChecksum)

	out := make([]byte, 0, 10+1+fixedHeaderLen+len(compressed))
	out = append(out, magic[:]...)
	out = append(out, byte(fixedHeaderLen))
	out = append(out, header...)
	out = append(out, compressed...)
	return out, nil
}

// DecodeBlock validates and decompresses a frame written by EncodeBlock,
// returning the original payload and the number of bytes consumed from
// buf.
func DecodeBlock(buf []byte) (payload []byte, consumed int, err error) {
	if len(buf) < 11 {
		return nil, 0, htcerr.New(htcerr.BlockCompressorTruncated, "block shorter than fixed prefix")
	}
	if [10]byte(buf[:10]) != magic {
		return nil, 0, htcerr.New(htcerr.BlockCompressorBadHeader, "bad block magic")
	}
	headerLen := int(buf[10])
	if len(buf) < 11+headerLen {
		return nil, 0, htcerr.New(htcerr.BlockCompressorTruncated, "block header truncated")
	}
	header := buf[11 : 11+headerLen]
	if headerLen < fixedHeaderLen {
		return nil, 0, htcerr.New(htcerr.BlockCompressorBadHeader, "header_len too small")
	}
	wantHeaderChecksum := binary.BigEndian.Uint16(header[headerLen-2:])
	gotHeaderChecksum := uint16(serial.Fletcher32(header[:headerLen-2]) >> 16)
	if wantHeaderChecksum != gotHeaderChecksum {
		return nil, 0, htcerr.New(htcerr.BlockCompressorBadHeader, "header checksum mismatch")
	}
	t := Type(header[0])
	payloadChecksum := binary.BigEndian.Uint32(header[1:])
	uncompressedLen := binary.BigEndian.Uint32(header[5:])
	compressedLen := binary.BigEndian.Uint32(header[9:])

	bodyStart := 11 + headerLen
	bodyEnd := bodyStart + int(compressedLen)
	if bodyEnd > len(buf) || bodyEnd < bodyStart {
		return nil, 0, htcerr.New(htcerr.BlockCompressorTruncated, "block payload truncated")
	}
	compressed := buf[bodyStart:bodyEnd]
	if serial.Fletcher32(compressed) != payloadChecksum {
		return nil, 0, htcerr.New(htcerr.BlockCompressorChecksumMismatch, "block payload checksum mismatch")
	}
	out, err := decompress(t, compressed, int(uncompressedLen))
	if err != nil {
		return nil, 0, err
	}
	return out, bodyEnd, nil
}
