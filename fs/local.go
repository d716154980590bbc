package fs

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/vicaya/hypertable-sub000/htcerr"
)

// Local is a Filesystem backed directly by the local disk, used by the
// standalone CLI and by tests in place of the real distributed broker.
// Grounded on the teacher's osOpenReadSeeker/osCreateWriteCloser/
// osReaddirnames helpers (package.go), generalized from ad-hoc functions
// into one fd-table-backed implementation of the Filesystem interface.
type Local struct {
	mu   sync.Mutex
	next FD
	open map[FD]*os.File
}

// NewLocal constructs a Local filesystem rooted wherever absolute paths
// passed to its methods point; it performs no chrooting of its own.
func NewLocal() *Local {
	return &Local{open: make(map[FD]*os.File)}
}

func (l *Local) track(f *os.File) FD {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.open[l.next] = f
	return l.next
}

func (l *Local) get(fd FD) (*os.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.open[fd]
	if !ok {
		return nil, htcerr.New(htcerr.LocalIOError, "fd %d not open", fd)
	}
	return f, nil
}

func (l *Local) drop(fd FD) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.open, fd)
}

func (l *Local) Open(path string) (FD, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, htcerr.Wrap(htcerr.LocalIOError, err, "open %s", path)
	}
	return l.track(f), nil
}

func (l *Local) Create(path string, overwrite bool, bufSize, replication int, blockSize int64) (FD, error) {
	flags := os.O_RDWR | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return 0, htcerr.Wrap(htcerr.LocalIOError, err, "create %s", path)
	}
	return l.track(f), nil
}

func (l *Local) Read(fd FD, n int) ([]byte, error) {
	f, err := l.get(fd)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	nr, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, htcerr.Wrap(htcerr.LocalIOError, err, "read")
	}
	return buf[:nr], nil
}

func (l *Local) Pread(fd FD, offset int64, n int) ([]byte, error) {
	f, err := l.get(fd)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	nr, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, htcerr.Wrap(htcerr.LocalIOError, err, "pread")
	}
	return buf[:nr], nil
}

func (l *Local) Append(fd FD, data []byte, flush bool) error {
	f, err := l.get(fd)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return htcerr.Wrap(htcerr.LocalIOError, err, "append")
	}
	if flush {
		return l.Flush(fd)
	}
	return nil
}

func (l *Local) Seek(fd FD, offset int64) error {
	f, err := l.get(fd)
	if err != nil {
		return err
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return htcerr.Wrap(htcerr.LocalIOError, err, "seek")
	}
	return nil
}

func (l *Local) Flush(fd FD) error {
	f, err := l.get(fd)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return htcerr.Wrap(htcerr.LocalIOError, err, "flush")
	}
	return nil
}

func (l *Local) Close(fd FD) error {
	f, err := l.get(fd)
	if err != nil {
		return err
	}
	l.drop(fd)
	if err := f.Close(); err != nil {
		return htcerr.Wrap(htcerr.LocalIOError, err, "close")
	}
	return nil
}

func (l *Local) Length(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, htcerr.Wrap(htcerr.LocalIOError, err, "length %s", path)
	}
	return fi.Size(), nil
}

func (l *Local) Mkdirs(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return htcerr.Wrap(htcerr.LocalIOError, err, "mkdirs %s", path)
	}
	return nil
}

func (l *Local) Readdir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, htcerr.Wrap(htcerr.LocalIOError, err, "readdir %s", path)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (l *Local) Rmdir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return htcerr.Wrap(htcerr.LocalIOError, err, "rmdir %s", path)
	}
	return nil
}

func (l *Local) Rename(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return htcerr.Wrap(htcerr.LocalIOError, err, "rename mkdirs %s", dst)
	}
	if err := os.Rename(src, dst); err != nil {
		return htcerr.Wrap(htcerr.LocalIOError, err, "rename %s -> %s", src, dst)
	}
	return nil
}

func (l *Local) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, htcerr.Wrap(htcerr.LocalIOError, err, "exists %s", path)
}

var _ Filesystem = (*Local)(nil)
