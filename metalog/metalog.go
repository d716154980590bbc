// Package metalog implements the generic typed entity journal range
// servers and the master use to persist long-running operation state:
// range load/move, splits, table creation, node membership (spec §4.K).
package metalog

import (
	"encoding/binary"

	"github.com/vicaya/hypertable-sub000/fs"
	"github.com/vicaya/hypertable-sub000/htcerr"
	"github.com/vicaya/hypertable-sub000/serial"
)

const headerLen = 4 + 4 + 4 + 4 + 4 + 8 // type, id, flags, checksum, length, timestamp

// Flag bits carried in an EntityHeader.
const (
	FlagRemoval uint32 = 1 << iota
	FlagRecover
)

// Entry is one decoded record from the log.
type Entry struct {
	Type      uint32
	ID        uint32
	Flags     uint32
	Timestamp uint64
	Payload   []byte
}

// IsRemoval reports whether this entry marks its entity id as removed.
func (e Entry) IsRemoval() bool { return e.Flags&FlagRemoval != 0 }

// IsRecover reports whether this entry is the RECOVER marker. Create
// writes one at the head of every new log and Open writes none, so the
// marker does not tell a cleanly reopened log from one that was still
// being appended to at the moment of a crash.
func (e Entry) IsRecover() bool { return e.Flags&FlagRecover != 0 }

func encodeEntry(typ, id, flags uint32, timestamp uint64, payload []byte) []byte {
	checksum := serial.Fletcher32(payload)
	buf := make([]byte, headerLen, headerLen+len(payload))
	binary.BigEndian.PutUint32(buf[0:], typ)
	binary.BigEndian.PutUint32(buf[4:], id)
	binary.BigEndian.PutUint32(buf[8:], flags)
	binary.BigEndian.PutUint32(buf[12:], checksum)
	binary.BigEndian.PutUint32(buf[16:], uint32(len(payload)))
	binary.BigEndian.PutUint64(buf[20:], timestamp)
	return append(buf, payload...)
}

func decodeEntry(buf []byte) (Entry, int, error) {
	if len(buf) < headerLen {
		return Entry{}, 0, htcerr.New(htcerr.SerializationInputOverrun, "metalog header truncated")
	}
	typ := binary.BigEndian.Uint32(buf[0:])
	id := binary.BigEndian.Uint32(buf[4:])
	flags := binary.BigEndian.Uint32(buf[8:])
	checksum := binary.BigEndian.Uint32(buf[12:])
	length := binary.BigEndian.Uint32(buf[16:])
	ts := binary.BigEndian.Uint64(buf[20:])
	end := headerLen + int(length)
	if end > len(buf) || end < headerLen {
		return Entry{}, 0, htcerr.New(htcerr.SerializationInputOverrun, "metalog payload truncated")
	}
	payload := buf[headerLen:end]
	if serial.Fletcher32(payload) != checksum {
		return Entry{}, 0, htcerr.New(htcerr.MetaLogChecksumMismatch, "metalog entry checksum mismatch")
	}
	return Entry{Type: typ, ID: id, Flags: flags, Timestamp: ts, Payload: append([]byte(nil), payload...)}, end, nil
}

// Log is an append-only sequence of Entry records backed by a single
// Filesystem file.
type Log struct {
	fsys fs.Filesystem
	path string
	fd   fs.FD
}

// Create opens path for a brand-new metalog and writes the RECOVER
// marker entity (type 0, id 0) at its head; ReadAll reports the marker
// through its recovered result. Every log made by Create carries the
// marker, whether or not it was later closed cleanly.
func Create(fsys fs.Filesystem, path string) (*Log, error) {
	fd, err := fsys.Create(path, true, 1<<16, 3, 1<<20)
	if err != nil {
		return nil, err
	}
	l := &Log{fsys: fsys, path: path, fd: fd}
	if err := l.appendRaw(encodeEntry(0, 0, FlagRecover, 0, nil)); err != nil {
		return nil, err
	}
	return l, nil
}

// Open reopens an existing metalog file for further appends.
func Open(fsys fs.Filesystem, path string) (*Log, error) {
	fd, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	return &Log{fsys: fsys, path: path, fd: fd}, nil
}

func (l *Log) appendRaw(b []byte) error {
	return l.fsys.Append(l.fd, b, true)
}

// Record writes a new state record for entity (typ, id) (spec §4.K:
// "atomic state-record").
func (l *Log) Record(typ, id uint32, timestamp uint64, payload []byte) error {
	return l.appendRaw(encodeEntry(typ, id, 0, timestamp, payload))
}

// Remove writes a REMOVAL marker for entity (typ, id) (spec §4.K:
// "atomic ... removal").
func (l *Log) Remove(typ, id uint32, timestamp uint64) error {
	return l.appendRaw(encodeEntry(typ, id, FlagRemoval, timestamp, nil))
}

// Close closes the underlying file.
func (l *Log) Close() error { return l.fsys.Close(l.fd) }

// ReadAll replays path end to end, returning both the "all entities"
// view (every entry ever written, for debugging) and the "live
// entities" view (latest non-removed state per (type, id)), per spec
// §4.K.
func ReadAll(fsys fs.Filesystem, path string) (all []Entry, live map[[2]uint32]Entry, recovered bool, err error) {
	length, err := fsys.Length(path)
	if err != nil {
		return nil, nil, false, err
	}
	fd, err := fsys.Open(path)
	if err != nil {
		return nil, nil, false, err
	}
	defer fsys.Close(fd)
	data, err := fsys.Pread(fd, 0, int(length))
	if err != nil {
		return nil, nil, false, err
	}

	live = make(map[[2]uint32]Entry)
	off := 0
	for off < len(data) {
		e, consumed, derr := decodeEntry(data[off:])
		if derr != nil {
			// A truncated tail entry means the log was mid-write when the
			// process died; everything decoded so far is still valid.
			break
		}
		off += consumed
		if e.IsRecover() {
			recovered = true
			continue
		}
		all = append(all, e)
		key := [2]uint32{e.Type, e.ID}
		if e.IsRemoval() {
			delete(live, key)
		} else {
			live[key] = e
		}
	}
	return all, live, recovered, nil
}
