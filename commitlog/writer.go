package commitlog

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vicaya/hypertable-sub000/blockcompress"
	"github.com/vicaya/hypertable-sub000/fs"
	"github.com/vicaya/hypertable-sub000/htcerr"
)

// Config mirrors the teacher's Config/resolveConfig/OptX pattern
// (package.go), adapted to the commit log's own tunables rather than
// the teacher's replication/ring settings.
type Config struct {
	Dir                 string
	RollSize            int64
	Compression         blockcompress.Type
	GroupCommitDelay    time.Duration
	GroupCommitMaxBytes int64
	LogFunc             func(format string, v ...interface{})
}

func resolveConfig(cfg Config) Config {
	if cfg.RollSize <= 0 {
		cfg.RollSize = 64 << 20
	}
	if cfg.GroupCommitDelay <= 0 {
		cfg.GroupCommitDelay = 10 * time.Millisecond
	}
	if cfg.GroupCommitMaxBytes <= 0 {
		cfg.GroupCommitMaxBytes = 1 << 20
	}
	if cfg.LogFunc == nil {
		cfg.LogFunc = func(string, ...interface{}) {}
	}
	return cfg
}

type syncWaiter struct {
	done chan error
}

// Writer appends mutation-batch frames to a numbered sequence of log
// files under Config.Dir, coalescing concurrent Sync calls behind a
// single group-commit timer goroutine (spec §4.I sync(): "a single-
// threaded group commit timer coalesces writes ... into one sync").
type Writer struct {
	fsys fs.Filesystem
	cfg  Config

	mu            sync.Mutex
	curFD         fs.FD
	curPath       string
	curSize       int64
	fileSeq       int
	lastTimestamp uint64

	waitMu  sync.Mutex
	waiters []syncWaiter
	timer   *time.Timer

	unsyncedBytes int64 // atomic; bytes appended since the last flushWaiters
}

// Open creates (or reopens) the log directory and starts its first log
// file.
func Open(fsys fs.Filesystem, cfg Config) (*Writer, error) {
	cfg = resolveConfig(cfg)
	if err := fsys.Mkdirs(cfg.Dir); err != nil {
		return nil, err
	}
	w := &Writer{fsys: fsys, cfg: cfg}
	if err := w.rollLocked(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) rollLocked() error {
	w.fileSeq++
	path := filepath.Join(w.cfg.Dir, fmt.Sprintf("%010d.log", w.fileSeq))
	fd, err := w.fsys.Create(path, true, 1<<16, 3, 1<<26)
	if err != nil {
		return err
	}
	w.curFD = fd
	w.curPath = path
	w.curSize = 0
	return nil
}

// Append compresses and writes one mutation-batch frame, returning once
// the write() call itself has succeeded; durability is only guaranteed
// after a subsequent Sync (spec §4.I append/sync).
func (w *Writer) Append(table string, payload []byte, commitTS uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	frame, err := encodeFrame(frameData, w.cfg.Compression, table, commitTS, payload)
	if err != nil {
		return err
	}
	if w.curSize > 0 && w.curSize+int64(len(frame)) > w.cfg.RollSize {
		if err := w.rollLocked(); err != nil {
			return err
		}
	}
	if err := w.fsys.Append(w.curFD, frame, false); err != nil {
		return err
	}
	w.curSize += int64(len(frame))
	atomic.AddInt64(&w.unsyncedBytes, int64(len(frame)))
	if commitTS > w.lastTimestamp {
		w.lastTimestamp = commitTS
	}
	return nil
}

// Link records, as a control frame, that other_log_dir must be replayed
// before this log on recovery (spec §4.I link()).
func (w *Writer) Link(otherLogDir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	frame, err := encodeFrame(frameLink, blockcompress.None, otherLogDir, w.lastTimestamp, nil)
	if err != nil {
		return err
	}
	if err := w.fsys.Append(w.curFD, frame, false); err != nil {
		return err
	}
	w.curSize += int64(len(frame))
	return nil
}

// Sync enqueues the caller behind the group-commit timer and blocks
// until the coalesced flush completes, returning whatever error (if
// any) that flush produced (spec §4.I: "All waiters are released on
// successful sync; on failure each waiter receives the error"). Once
// the bytes appended since the last flush reach GroupCommitMaxBytes,
// Sync skips the remaining wait and flushes immediately instead of
// arming (or waiting on) the delay timer.
func (w *Writer) Sync() error {
	wait := syncWaiter{done: make(chan error, 1)}
	w.waitMu.Lock()
	w.waiters = append(w.waiters, wait)
	immediate := atomic.LoadInt64(&w.unsyncedBytes) >= w.cfg.GroupCommitMaxBytes
	if immediate {
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
	} else if w.timer == nil {
		w.timer = time.AfterFunc(w.cfg.GroupCommitDelay, w.flushWaiters)
	}
	w.waitMu.Unlock()
	if immediate {
		w.flushWaiters()
	}
	return <-wait.done
}

func (w *Writer) flushWaiters() {
	w.waitMu.Lock()
	waiters := w.waiters
	w.waiters = nil
	w.timer = nil
	w.waitMu.Unlock()

	atomic.StoreInt64(&w.unsyncedBytes, 0)

	w.mu.Lock()
	err := w.fsys.Flush(w.curFD)
	w.mu.Unlock()

	if err != nil {
		w.cfg.LogFunc("commitlog: group sync failed: %v", err)
	}
	for _, wt := range waiters {
		wt.done <- err
	}
}

// Purge deletes log files whose highest recorded timestamp is <=
// thresholdTS (spec §4.I purge()), called after a compaction makes
// every mutation up to thresholdTS durable in a cell store.
func (w *Writer) Purge(thresholdTS uint64) error {
	names, err := w.fsys.Readdir(w.cfg.Dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		path := filepath.Join(w.cfg.Dir, name)
		if path == w.curPath {
			continue
		}
		maxTS, err := highestTimestamp(w.fsys, path)
		if err != nil {
			w.cfg.LogFunc("commitlog: purge scan failed for %s: %v", path, err)
			continue
		}
		if maxTS <= thresholdTS {
			if err := w.fsys.Rmdir(path); err != nil {
				return err
			}
		}
	}
	return nil
}

func highestTimestamp(fsys fs.Filesystem, path string) (uint64, error) {
	r, err := NewReader(fsys, []string{path})
	if err != nil {
		return 0, err
	}
	var max uint64
	for r.Next() {
		if r.Timestamp() > max {
			max = r.Timestamp()
		}
	}
	if err := r.Err(); err != nil {
		if htcerr.Of(err) == htcerr.TruncatedCommitLog {
			return max, nil
		}
		return 0, err
	}
	return max, nil
}

// Close flushes and closes the current log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fsys.Flush(w.curFD); err != nil {
		return err
	}
	return w.fsys.Close(w.curFD)
}
