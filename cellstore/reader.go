package cellstore

import (
	"sort"

	"github.com/vicaya/hypertable-sub000/blockcache"
	"github.com/vicaya/hypertable-sub000/blockcompress"
	"github.com/vicaya/hypertable-sub000/bloomfilter"
	"github.com/vicaya/hypertable-sub000/cellkey"
	"github.com/vicaya/hypertable-sub000/fs"
	"github.com/vicaya/hypertable-sub000/htcerr"
)

// Reader is an opened, immutable cell store: its trailer, block index
// and bloom filter are loaded into memory; data blocks are fetched
// lazily through a shared blockcache.Cache (spec §4.B open/§4.E).
type Reader struct {
	fsys     fs.Filesystem
	path     string
	fd       fs.FD
	fileID   uint64
	trailer  *trailer
	index    []indexEntry
	bloom    *bloomfilter.Filter
	cache    *blockcache.Cache
	startRow []byte
	endRow   []byte
}

// Open reads the trailer, the block index and the bloom filter of the
// cell store at path. startRow and endRow are recorded on the Reader
// but do not limit what its scanners return: a scanner is bounded only
// by its scan.Context's row intervals.
func Open(fsys fs.Filesystem, path string, fileID uint64, cache *blockcache.Cache, startRow, endRow []byte) (*Reader, error) {
	fd, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	length, err := fsys.Length(path)
	if err != nil {
		return nil, err
	}
	if length < int64(trailerFixedLen) {
		return nil, htcerr.New(htcerr.InvalidMetadata, "cell store too short: %s", path)
	}
	trailerBytes, err := fsys.Pread(fd, length-int64(trailerFixedLen), trailerFixedLen)
	if err != nil {
		return nil, err
	}
	tr, err := unmarshalTrailer(trailerBytes)
	if err != nil {
		return nil, err
	}

	indexFrame, err := fsys.Pread(fd, tr.IndexOffset, int(tr.IndexLength))
	if err != nil {
		return nil, err
	}
	indexPayload, _, err := blockcompress.DecodeBlock(indexFrame)
	if err != nil {
		return nil, err
	}
	index, err := unmarshalIndex(indexPayload)
	if err != nil {
		return nil, err
	}

	var bloom *bloomfilter.Filter
	if tr.BloomLength > 0 {
		bloomFrame, err := fsys.Pread(fd, tr.BloomOffset, int(tr.BloomLength))
		if err != nil {
			return nil, err
		}
		bloom, _, err = bloomfilter.Deserialize(bloomFrame)
		if err != nil {
			return nil, err
		}
	}

	return &Reader{
		fsys:     fsys,
		path:     path,
		fd:       fd,
		fileID:   fileID,
		trailer:  tr,
		index:    index,
		bloom:    bloom,
		cache:    cache,
		startRow: startRow,
		endRow:   endRow,
	}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.fsys.Close(r.fd) }

// TotalEntries, TotalBytes, ExpirationTime, ExpirableData, FilterPolicy
// expose trailer fields consumed by AccessGroup compaction planning and
// by split-row selection.
func (r *Reader) TotalEntries() uint64            { return r.trailer.TotalEntries }
func (r *Reader) TotalBytes() uint64              { return r.trailer.TotalBytes }
func (r *Reader) ExpirationTime() uint64          { return r.trailer.ExpirationTime }
func (r *Reader) ExpirableData() uint64           { return r.trailer.ExpirableData }
func (r *Reader) FilterPolicy() bloomfilter.Policy { return r.trailer.FilterPolicy }

// FirstKeys returns the first key of each data block, in block order;
// AccessGroup.find_split_row uses this to locate a median row across the
// union of all live stores without fully scanning any of them.
func (r *Reader) FirstKeys() []cellkey.SerializedKey {
	keys := make([]cellkey.SerializedKey, len(r.index))
	for i, e := range r.index {
		keys[i] = cellkey.SerializedKey(e.FirstKey)
	}
	return keys
}

// MayContain tests rowOrCellKey against the store's bloom filter; the
// caller passes a row or a full key to match FilterPolicy(). A store
// written without a filter (policy None) always reports true (spec
// §4.B CellStoreScanner).
func (r *Reader) MayContain(rowOrCellKey []byte) bool {
	if r.bloom == nil {
		return true
	}
	return r.bloom.MayContain(rowOrCellKey)
}

// blockAt locates the index of the data block that would contain key:
// the last block whose first key is <= key (binary search then step
// back), per spec §4.B CellStoreScanner.
func (r *Reader) blockAt(key cellkey.SerializedKey) int {
	i := sort.Search(len(r.index), func(i int) bool {
		return cellkey.SerializedKey(r.index[i].FirstKey).Compare(key) > 0
	})
	return i - 1
}

// readBlock fetches and decompresses data block i, through the shared
// block cache keyed by (fileID, offset) (spec §4.E).
func (r *Reader) readBlock(i int) ([]byte, error) {
	if i < 0 || i >= len(r.index) {
		return nil, htcerr.New(htcerr.InvalidMetadata, "block index out of range: %d", i)
	}
	e := r.index[i]
	if data, ok := r.cache.Checkout(r.fileID, uint64(e.Offset)); ok {
		defer r.cache.Checkin(r.fileID, uint64(e.Offset))
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
	frame, err := r.fsys.Pread(r.fd, e.Offset, int(e.CompressedSize))
	if err != nil {
		return nil, err
	}
	payload, _, err := blockcompress.DecodeBlock(frame)
	if err != nil {
		return nil, err
	}
	r.cache.InsertAndCheckout(r.fileID, uint64(e.Offset), payload)
	r.cache.Checkin(r.fileID, uint64(e.Offset))
	return payload, nil
}
