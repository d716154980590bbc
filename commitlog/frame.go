// Package commitlog implements the durable, ordered, block-compressed
// write-ahead log described by spec §4.I: append, group-commit sync,
// cross-log link records, purge, and crash replay.
package commitlog

import (
	"encoding/binary"

	"github.com/vicaya/hypertable-sub000/blockcompress"
	"github.com/vicaya/hypertable-sub000/htcerr"
	"github.com/vicaya/hypertable-sub000/serial"
)

// frameKind distinguishes an ordinary mutation-batch frame from a link
// control frame (spec §4.I link()).
type frameKind uint8

const (
	frameData frameKind = iota
	frameLink
)

var logMagic = [10]byte{'H', 'T', 'C', 'L', 'O', 'G', 'F', 'R', 'M', '1'}

// frameFixedLen is the length of everything between header_len and the
// table identifier: uncompressed_len(4) + compressed_len(4) +
// compression_type(2) + payload_checksum(4) + timestamp(8) + kind(1).
const frameFixedLen = 4 + 4 + 2 + 4 + 8 + 1

// encodeFrame builds one commit-log frame (spec §4.I on-disk layout).
// header_len is the exact size of the variable-length prefix (magic
// excluded); this module does not pad headers to a declared budget, the
// same simplification blockcompress makes for data-block headers.
func encodeFrame(kind frameKind, compression blockcompress.Type, table string, timestamp uint64, payload []byte) ([]byte, error) {
	compressed, err := blockcompress.CompressPayload(compression, payload)
	if err != nil {
		return nil, err
	}
	if len(compressed) >= len(payload) {
		compression = blockcompress.None
		compressed = payload
	}
	checksum := serial.Fletcher32(compressed)

	var header []byte
	header = appendU32(header, uint32(len(payload)))
	header = appendU32(header, uint32(len(compressed)))
	header = appendU16(header, uint16(compression))
	header = appendU32(header, checksum)
	header = appendU64(header, timestamp)
	header = append(header, byte(kind))
	header = serial.PutStr16(header, table)

	headerLen := len(header)
	out := make([]byte, 0, 10+2+headerLen+len(compressed))
	out = append(out, logMagic[:]...)
	out = appendU16(out, uint16(headerLen))
	out = append(out, header...)
	out = append(out, compressed...)
	return out, nil
}

// decodeFrame parses and validates one frame from the front of buf,
// returning the frame's fields, decompressed payload, and bytes
// consumed. On a length/checksum problem scoped to this one frame it
// returns TRUNCATED_COMMIT_LOG so the reader can stop cleanly without
// failing the whole directory (spec §4.I read path).
func decodeFrame(buf []byte) (kind frameKind, table string, timestamp uint64, payload []byte, consumed int, err error) {
	if len(buf) < 12 {
		return 0, "", 0, nil, 0, htcerr.New(htcerr.TruncatedCommitLog, "frame shorter than fixed prefix")
	}
	if [10]byte(buf[:10]) != logMagic {
		return 0, "", 0, nil, 0, htcerr.New(htcerr.TruncatedCommitLog, "bad frame magic")
	}
	headerLen := int(binary.BigEndian.Uint16(buf[10:12]))
	if len(buf) < 12+headerLen {
		return 0, "", 0, nil, 0, htcerr.New(htcerr.TruncatedCommitLog, "frame header truncated")
	}
	header := buf[12 : 12+headerLen]
	if len(header) < frameFixedLen {
		return 0, "", 0, nil, 0, htcerr.New(htcerr.TruncatedCommitLog, "frame header too short")
	}
	uncompressedLen := binary.BigEndian.Uint32(header[0:4])
	compressedLen := binary.BigEndian.Uint32(header[4:8])
	compression := blockcompress.Type(binary.BigEndian.Uint16(header[8:10]))
	payloadChecksum := binary.BigEndian.Uint32(header[10:14])
	ts := binary.BigEndian.Uint64(header[14:22])
	k := frameKind(header[22])
	tableName, _, err := serial.GetStr16(header[23:])
	if err != nil {
		return 0, "", 0, nil, 0, htcerr.Wrap(htcerr.TruncatedCommitLog, err, "frame table identifier")
	}

	bodyStart := 12 + headerLen
	bodyEnd := bodyStart + int(compressedLen)
	if bodyEnd > len(buf) || bodyEnd < bodyStart {
		return 0, "", 0, nil, 0, htcerr.New(htcerr.TruncatedCommitLog, "frame payload truncated")
	}
	compressed := buf[bodyStart:bodyEnd]
	if serial.Fletcher32(compressed) != payloadChecksum {
		return 0, "", 0, nil, 0, htcerr.New(htcerr.TruncatedCommitLog, "frame payload checksum mismatch")
	}
	out, err := blockcompress.DecompressPayload(compression, compressed, int(uncompressedLen))
	if err != nil {
		return 0, "", 0, nil, 0, htcerr.Wrap(htcerr.TruncatedCommitLog, err, "frame decompress")
	}
	return k, tableName, ts, out, bodyEnd, nil
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
