package cellstore

import (
	"time"

	"github.com/vicaya/hypertable-sub000/bloomfilter"
	"github.com/vicaya/hypertable-sub000/blockcompress"
	"github.com/vicaya/hypertable-sub000/cellkey"
	"github.com/vicaya/hypertable-sub000/fs"
	"github.com/vicaya/hypertable-sub000/htcerr"
	"github.com/vicaya/hypertable-sub000/serial"
)

// WriterProps configures a new cell store; grounded on the teacher's
// Config/resolveConfig/OptX functional-option idiom (package.go), here
// kept as a plain struct since every field is mandatory for this
// component rather than independently optional.
type WriterProps struct {
	TargetBlockSize  int
	Compression      blockcompress.Type
	BloomPolicy      bloomfilter.Policy
	ItemsEstimate    uint64
	FalsePositive    float64
	FamilyTTL        map[uint8]uint64 // family id -> TTL seconds, supplemented feature for expiration_time/expirable_data bookkeeping
	CreationTimeUnix uint64
}

// Writer buffers cells in ascending-key order and emits compressed data
// blocks once the buffer reaches the target size (spec §4.B create/add).
type Writer struct {
	fsys  fs.Filesystem
	fd    fs.FD
	path  string
	props WriterProps

	offset      int64
	pending     []byte // pending block payload
	pendingLast cellkey.SerializedKey
	hasLast     bool
	index       []indexEntry
	blockFirst  cellkey.SerializedKey
	blockHasAny bool

	bloom        *bloomfilter.Filter
	totalEntries uint64
	totalBytes   uint64

	expirationTime uint64
	expirableBytes uint64
}

// Create opens path for writing and returns a Writer (spec §4.B
// "create(path, target_block_size, props)").
func Create(fsys fs.Filesystem, path string, props WriterProps) (*Writer, error) {
	fd, err := fsys.Create(path, true, 1<<16, 3, 1<<26)
	if err != nil {
		return nil, err
	}
	if props.CreationTimeUnix == 0 {
		props.CreationTimeUnix = uint64(time.Now().Unix())
	}
	return &Writer{
		fsys:  fsys,
		fd:    fd,
		path:  path,
		props: props,
		bloom: bloomfilter.New(props.ItemsEstimate, props.FalsePositive),
	}, nil
}

// Add appends (key, value) to the store. Keys must arrive in strictly
// ascending order; otherwise BAD_KEY_ORDER is returned and the writer is
// left usable for Finalize with whatever was accepted so far (matching
// the teacher's fail-fast style rather than rolling back prior Adds).
func (w *Writer) Add(key cellkey.SerializedKey, value []byte) error {
	if w.hasLast && key.Compare(w.pendingLast) <= 0 {
		return htcerr.New(htcerr.BadKeyOrder, "key out of order: %x <= %x", key, w.pendingLast)
	}
	w.pendingLast = append(cellkey.SerializedKey(nil), key...)
	w.hasLast = true

	if !w.blockHasAny {
		w.blockFirst = append(cellkey.SerializedKey(nil), key...)
		w.blockHasAny = true
	}
	w.pending = serial.PutBytes32(w.pending, key)
	w.pending = serial.PutBytes32(w.pending, value)

	w.bloomAdd(key)
	w.totalEntries++
	w.totalBytes += uint64(len(key) + len(value))
	w.trackExpiry(key, value)

	if len(w.pending) >= w.props.TargetBlockSize {
		return w.flushBlock()
	}
	return nil
}

func (w *Writer) bloomAdd(key cellkey.SerializedKey) {
	switch w.props.BloomPolicy {
	case bloomfilter.PolicyNone:
		return
	case bloomfilter.PolicyRows:
		w.bloom.Add(key.RowOf())
	case bloomfilter.PolicyRowsColumns:
		w.bloom.Add(key)
	}
}

func (w *Writer) trackExpiry(key cellkey.SerializedKey, value []byte) {
	if len(w.props.FamilyTTL) == 0 {
		return
	}
	c, err := key.Decode()
	if err != nil {
		return
	}
	ttl, ok := w.props.FamilyTTL[c.FamilyID]
	if !ok || ttl == 0 {
		return
	}
	horizon := c.Timestamp + ttl
	if horizon > w.expirationTime {
		w.expirationTime = horizon
	}
	w.expirableBytes += uint64(len(key) + len(value))
}

func (w *Writer) flushBlock() error {
	if len(w.pending) == 0 {
		return nil
	}
	frame, err := blockcompress.EncodeBlock(w.props.Compression, w.pending)
	if err != nil {
		return err
	}
	if err := w.fsys.Append(w.fd, frame, false); err != nil {
		return err
	}
	w.index = append(w.index, indexEntry{
		FirstKey:       w.blockFirst,
		Offset:         w.offset,
		CompressedSize: int64(len(frame)),
	})
	w.offset += int64(len(frame))
	w.pending = w.pending[:0]
	w.blockHasAny = false
	return nil
}

// Finalize flushes the last block, writes the bloom filter, the block
// index, and the trailer, then closes the file (spec §4.B finalize).
func (w *Writer) Finalize() error {
	if err := w.flushBlock(); err != nil {
		return err
	}

	bloomBytes := w.bloom.Serialize()
	if w.props.BloomPolicy == bloomfilter.PolicyNone {
		bloomBytes = nil
	}
	bloomOffset := w.offset
	if len(bloomBytes) > 0 {
		if err := w.fsys.Append(w.fd, bloomBytes, false); err != nil {
			return err
		}
		w.offset += int64(len(bloomBytes))
	}

	indexPayload := marshalIndex(w.index)
	indexFrame, err := blockcompress.EncodeBlock(w.props.Compression, indexPayload)
	if err != nil {
		return err
	}
	indexOffset := w.offset
	if err := w.fsys.Append(w.fd, indexFrame, false); err != nil {
		return err
	}
	w.offset += int64(len(indexFrame))

	tr := &trailer{
		Version:           trailerVersion,
		IndexOffset:       indexOffset,
		IndexLength:       int64(len(indexFrame)),
		BloomOffset:       bloomOffset,
		BloomLength:       int64(len(bloomBytes)),
		TotalEntries:      w.totalEntries,
		TotalBytes:        w.totalBytes,
		CompressionType:   w.props.Compression,
		BloomItemsEstim:   w.bloom.ItemsEstimate(),
		BloomItemsActual:  w.bloom.ItemsActual(),
		BloomNumHashes:    uint32(w.bloom.NumHashes()),
		BloomNumBits:      w.bloom.NumBits(),
		FilterPolicy:      w.props.BloomPolicy,
		ExpirationTime:    w.expirationTime,
		ExpirableData:     w.expirableBytes,
		CreationTimestamp: w.props.CreationTimeUnix,
	}
	if err := w.fsys.Append(w.fd, tr.marshal(), true); err != nil {
		return err
	}
	return w.fsys.Close(w.fd)
}
