package commitlog

import (
	"path/filepath"
	"sort"

	"github.com/vicaya/hypertable-sub000/fs"
	"github.com/vicaya/hypertable-sub000/htcerr"
)

// Reader replays one or more log files in the order given, yielding
// each mutation-batch frame's payload for insertion into the matching
// range's access groups (spec §4.I read path). Link control frames are
// collected rather than yielded; callers follow them via Links() to
// replay a linked directory first, per spec §4.I link()/ordering
// guarantees.
type Reader struct {
	fsys  fs.Filesystem
	paths []string
	pidx  int
	buf   []byte
	off   int

	table     string
	ts        uint64
	payload   []byte
	links     []string
	err       error
}

// ListLogFiles returns the log files under dir in ascending name order,
// which is ascending time order because file names are zero-padded
// integers (spec §4.I: "ascending filename order = ascending time
// order").
func ListLogFiles(fsys fs.Filesystem, dir string) ([]string, error) {
	names, err := fsys.Readdir(dir)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	paths := make([]string, 0, len(names))
	for _, n := range names {
		paths = append(paths, filepath.Join(dir, n))
	}
	return paths, nil
}

// NewReader opens a Reader over paths, read in the given order.
func NewReader(fsys fs.Filesystem, paths []string) (*Reader, error) {
	return &Reader{fsys: fsys, paths: paths}, nil
}

// Next advances to the next data frame, loading subsequent files as
// needed. A truncated trailing frame in one file stops iteration of
// that file only (spec §4.I: "truncated trailing frames are not fatal
// across the directory") and Next simply moves on to the next file.
func (r *Reader) Next() bool {
	for {
		if r.buf == nil {
			if !r.loadNextFile() {
				return false
			}
		}
		if r.off >= len(r.buf) {
			r.buf = nil
			continue
		}
		kind, table, ts, payload, consumed, err := decodeFrame(r.buf[r.off:])
		if err != nil {
			if htcerr.Of(err) == htcerr.TruncatedCommitLog {
				// Truncated tail: stop reading this file, move to the next.
				r.buf = nil
				continue
			}
			r.err = err
			return false
		}
		r.off += consumed
		if kind == frameLink {
			r.links = append(r.links, table)
			continue
		}
		r.table, r.ts, r.payload = table, ts, payload
		return true
	}
}

func (r *Reader) loadNextFile() bool {
	if r.pidx >= len(r.paths) {
		return false
	}
	path := r.paths[r.pidx]
	r.pidx++
	length, err := r.fsys.Length(path)
	if err != nil {
		r.err = err
		return false
	}
	fd, err := r.fsys.Open(path)
	if err != nil {
		r.err = err
		return false
	}
	data, err := r.fsys.Pread(fd, 0, int(length))
	r.fsys.Close(fd)
	if err != nil {
		r.err = err
		return false
	}
	r.buf = data
	r.off = 0
	return true
}

// Table, Timestamp, Payload expose the frame Next just positioned on.
func (r *Reader) Table() string    { return r.table }
func (r *Reader) Timestamp() uint64 { return r.ts }
func (r *Reader) Payload() []byte  { return r.payload }

// Links returns the directories recorded by link control frames seen so
// far.
func (r *Reader) Links() []string { return r.links }

// Err returns the first non-recoverable error encountered.
func (r *Reader) Err() error { return r.err }
