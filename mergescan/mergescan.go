// Package mergescan implements the k-way merge scanner that combines a
// cell cache cursor with one cursor per live cell store into the single
// ordered, filtered cell stream a range serves to clients (spec §4.F
// MergeScanner).
package mergescan

import (
	"bytes"
	"container/heap"
	"fmt"

	"github.com/vicaya/hypertable-sub000/cellkey"
	"github.com/vicaya/hypertable-sub000/scan"
)

// Cursor is the shared shape of cellcache.Cursor and cellstore.Scanner;
// the merge scanner is built against this interface rather than either
// concrete type so it can merge any mix of in-memory and on-disk
// sources (spec §4.F: "a cell-cache scanner + one per cell store").
type Cursor interface {
	Valid() bool
	Key() cellkey.SerializedKey
	Value() []byte
	Next()
}

// FamilyConfig carries the per-family TTL the TTL filter needs; zero TTL
// means no expiry for that family.
type FamilyConfig struct {
	TTLSeconds uint64
}

// Scanner merges cursors in key order applying, per emission, the
// filter chain of spec §4.F in the order it specifies: range, family
// mask, TTL, tombstone propagation, max_versions, time predicate,
// return_deletes.
type Scanner struct {
	ctx       *scan.Context
	families  map[uint8]FamilyConfig
	now       uint64
	heap      cursorHeap
	deleteRow map[string]uint64
	deleteFam map[string]uint64
	deleteCell map[string]uint64
	versions  map[string]uint32

	curCell  cellkey.Cell
	curValue []byte
	curValid bool
	err      error

	// row_limit/row_offset bookkeeping (spec §6 ScanSpec). rowOrdinal is
	// the 1-based count of distinct rows seen so far that passed the row
	// regexp filter; it only ever advances, which is safe because cursors
	// feed advance() in ascending key order.
	curRow     []byte
	rowSeen    bool
	rowOrdinal uint32
	cellsInRow uint32
	stopped    bool
}

type cursorHeap []Cursor

func (h cursorHeap) Len() int { return len(h) }
func (h cursorHeap) Less(i, j int) bool {
	return h[i].Key().Compare(h[j].Key()) < 0
}
func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x interface{}) {
	*h = append(*h, x.(Cursor))
}
func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// New builds a Scanner over cursors (already positioned, e.g. seeked to
// a lower bound by their owners), applying ctx's filters and nowUnix as
// the reference time for TTL expiry.
func New(ctx *scan.Context, cursors []Cursor, families map[uint8]FamilyConfig, nowUnix uint64) *Scanner {
	s := &Scanner{
		ctx:        ctx,
		families:   families,
		now:        nowUnix,
		deleteRow:  make(map[string]uint64),
		deleteFam:  make(map[string]uint64),
		deleteCell: make(map[string]uint64),
		versions:   make(map[string]uint32),
	}
	for _, c := range cursors {
		if c.Valid() {
			s.heap = append(s.heap, c)
		}
	}
	heap.Init(&s.heap)
	s.advance()
	return s
}

// Valid reports whether the scanner currently sits on an emittable cell.
func (s *Scanner) Valid() bool { return s.curValid }

// Err returns the first decode error encountered, if any.
func (s *Scanner) Err() error { return s.err }

// Cell returns the cell the scanner currently sits on (value already
// attached).
func (s *Scanner) Cell() cellkey.Cell {
	c := s.curCell
	c.Value = s.curValue
	return c
}

// Next advances to the next emittable cell.
func (s *Scanner) Next() { s.advance() }

// advance pops from the heap, applying the filter chain, until an
// emittable cell is found or the heap is exhausted.
func (s *Scanner) advance() {
	if s.stopped {
		s.curValid = false
		return
	}
	for s.heap.Len() > 0 {
		top := s.heap[0]
		key := top.Key()
		val := top.Value()
		top.Next()
		if top.Valid() {
			heap.Fix(&s.heap, 0)
		} else {
			heap.Pop(&s.heap)
		}

		cell, err := key.Decode()
		if err != nil {
			s.err = err
			s.curValid = false
			return
		}
		cell.Value = val

		if !s.ctx.IncludesRow(cell.Row) {
			continue
		}
		if s.ctx.Spec.ScanAndFilterRows && !s.ctx.MatchesRowRegexp(cell.Row) {
			continue
		}

		if !s.rowSeen || !bytes.Equal(cell.Row, s.curRow) {
			s.curRow = append(s.curRow[:0], cell.Row...)
			s.rowSeen = true
			s.rowOrdinal++
			s.cellsInRow = 0
			if s.ctx.Spec.RowLimit > 0 && s.rowOrdinal > s.ctx.Spec.RowOffset+s.ctx.Spec.RowLimit {
				s.stopped = true
				s.curValid = false
				return
			}
		}
		if s.ctx.Spec.RowOffset > 0 && s.rowOrdinal <= s.ctx.Spec.RowOffset {
			continue
		}

		if !s.ctx.IncludesFamily(cell.FamilyID) {
			continue
		}
		if fc, ok := s.families[cell.FamilyID]; ok && fc.TTLSeconds > 0 {
			if s.now > cell.Timestamp && s.now-cell.Timestamp > fc.TTLSeconds {
				continue
			}
		}

		rowKey := string(cell.Row)
		famKey := rowKey + "\x00" + fmt.Sprint(cell.FamilyID)
		cellKey := famKey + "\x00" + string(cell.Qualifier)

		switch cell.Flag {
		case cellkey.FlagDeleteRow:
			if ts, ok := s.deleteRow[rowKey]; !ok || cell.Timestamp > ts {
				s.deleteRow[rowKey] = cell.Timestamp
			}
		case cellkey.FlagDeleteColumnFamily:
			if ts, ok := s.deleteFam[famKey]; !ok || cell.Timestamp > ts {
				s.deleteFam[famKey] = cell.Timestamp
			}
		case cellkey.FlagDeleteCell:
			if ts, ok := s.deleteCell[cellKey]; !ok || cell.Timestamp > ts {
				s.deleteCell[cellKey] = cell.Timestamp
			}
		}

		if !s.ctx.Spec.ReturnDeletes {
			if cell.Flag.IsDelete() {
				continue
			}
			if ts, ok := s.deleteRow[rowKey]; ok && cell.Timestamp <= ts {
				continue
			}
			if ts, ok := s.deleteFam[famKey]; ok && cell.Timestamp <= ts {
				continue
			}
			if ts, ok := s.deleteCell[cellKey]; ok && cell.Timestamp <= ts {
				continue
			}
		}

		if s.ctx.Spec.MaxVersions > 0 && !cell.Flag.IsDelete() {
			n := s.versions[cellKey]
			if n >= s.ctx.Spec.MaxVersions {
				continue
			}
			s.versions[cellKey] = n + 1
		}

		if !s.ctx.IncludesTimestamp(cell.Timestamp) {
			continue
		}

		if s.ctx.Spec.CellLimit > 0 {
			if s.cellsInRow >= s.ctx.Spec.CellLimit {
				continue
			}
			s.cellsInRow++
		}

		s.curCell = cell
		s.curValue = val
		s.curValid = true
		return
	}
	s.curValid = false
}
