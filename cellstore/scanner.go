package cellstore

import (
	"github.com/vicaya/hypertable-sub000/bloomfilter"
	"github.com/vicaya/hypertable-sub000/cellkey"
	"github.com/vicaya/hypertable-sub000/scan"
	"github.com/vicaya/hypertable-sub000/serial"
)

// Scanner is a forward-only cursor over one Reader, restricted to the
// blocks a scan.Context's row bounds can touch (spec §4.B
// CellStoreScanner, §4.F's per-store child cursor).
type Scanner struct {
	r         *Reader
	ctx       *scan.Context
	blockIdx  int
	pairs     []pair
	pairIdx   int
	err       error
	exhausted bool
}

type pair struct {
	key   cellkey.SerializedKey
	value []byte
}

// CreateScanner opens a scanner restricted to ctx's row interval,
// seeking directly to the first candidate block (spec §4.B
// create_scanner). If ctx selects a single row and the store's bloom
// policy covers that granularity, an absent row short-circuits to an
// already-exhausted scanner.
func (r *Reader) CreateScanner(ctx *scan.Context) (*Scanner, error) {
	s := &Scanner{r: r, ctx: ctx}

	lower := ctx.LowerBound()
	if lower != nil && r.bloom != nil && r.trailer.FilterPolicy == bloomfilter.PolicyRows && len(ctx.Spec.RowIntervals) == 1 {
		ri := ctx.Spec.RowIntervals[0]
		if ri.Start == ri.End && ri.StartInclusive {
			if !r.MayContain(lower) {
				s.exhausted = true
				return s, nil
			}
		}
	}

	if lower == nil {
		s.blockIdx = 0
	} else {
		// Row leads the serialized key, and every real key is strictly
		// longer than the bare row bytes, so lower itself sorts before
		// every key whose row is >= lower (Go's []byte ordering treats a
		// proper prefix as "less than" the longer string it prefixes).
		// blockAt then backs up to the last block entirely before lower's
		// row, guaranteeing the scan starts at or before that row's
		// first block — including any tombstone block that sorts ahead
		// of that row's inserts — rather than skipping into the middle
		// of the row the way a probe suffixed past the row would.
		probe := cellkey.SerializedKey(lower)
		idx := r.blockAt(probe)
		if idx < 0 {
			idx = 0
		}
		s.blockIdx = idx
	}

	if err := s.loadBlock(); err != nil {
		s.err = err
		return s, nil
	}
	// The starting block may hold cells of rows below lower; step past
	// them so the first cell returned is at or after lower's row.
	for lower != nil && s.Valid() && string(s.Key().RowOf()) < string(lower) {
		s.Next()
	}
	return s, nil
}

func (s *Scanner) loadBlock() error {
	for {
		if s.blockIdx >= len(s.r.index) {
			s.exhausted = true
			return nil
		}
		if !s.blockInRange(s.blockIdx) {
			s.exhausted = true
			return nil
		}
		payload, err := s.r.readBlock(s.blockIdx)
		if err != nil {
			return err
		}
		pairs, err := decodePairs(payload)
		if err != nil {
			return err
		}
		s.pairs = pairs
		s.pairIdx = 0
		if len(pairs) > 0 {
			return nil
		}
		s.blockIdx++
	}
}

// blockInRange reports whether block i's first key can possibly fall
// within the scan's row bounds; blocks whose first key exceeds the
// upper bound are skipped entirely (spec §4.B: "skips blocks whose
// first key exceeds scan_ctx.end_key").
func (s *Scanner) blockInRange(i int) bool {
	if len(s.r.index) == 0 {
		return false
	}
	first := cellkey.SerializedKey(s.r.index[i].FirstKey)
	row := first.RowOf()
	if len(s.ctx.Spec.RowIntervals) == 0 {
		return true
	}
	for _, ri := range s.ctx.Spec.RowIntervals {
		if ri.End == "" || string(row) <= ri.End {
			return true
		}
	}
	return false
}

func decodePairs(payload []byte) ([]pair, error) {
	var out []pair
	for len(payload) > 0 {
		key, n1, err := serial.GetBytes32(payload)
		if err != nil {
			return nil, err
		}
		payload = payload[n1:]
		val, n2, err := serial.GetBytes32(payload)
		if err != nil {
			return nil, err
		}
		payload = payload[n2:]
		out = append(out, pair{key: append(cellkey.SerializedKey(nil), key...), value: append([]byte(nil), val...)})
	}
	return out, nil
}

// Valid reports whether the scanner currently sits on a cell.
func (s *Scanner) Valid() bool { return s.err == nil && !s.exhausted && s.pairIdx < len(s.pairs) }

// Err returns the first error encountered, if any.
func (s *Scanner) Err() error { return s.err }

// Key and Value return the cell the scanner currently sits on.
func (s *Scanner) Key() cellkey.SerializedKey { return s.pairs[s.pairIdx].key }
func (s *Scanner) Value() []byte              { return s.pairs[s.pairIdx].value }

// Next advances the scanner by one cell, crossing block boundaries and
// stopping at end-of-store or out-of-range as needed.
func (s *Scanner) Next() {
	if s.err != nil || s.exhausted {
		return
	}
	s.pairIdx++
	if s.pairIdx >= len(s.pairs) {
		s.blockIdx++
		if err := s.loadBlock(); err != nil {
			s.err = err
		}
	}
}
