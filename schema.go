package hypertable

import (
	"github.com/vicaya/hypertable-sub000/blockcompress"
	"github.com/vicaya/hypertable-sub000/bloomfilter"
)

// ColumnFamily describes one column family of a table schema (spec §3
// Schema): a small numeric id used inside SerializedKey, a name, an
// optional TTL, and the counter/tombstone flags. The flags are carried in
// the schema only; the merge scanner and writers treat every family's
// cells the same way regardless of them.
type ColumnFamily struct {
	ID        uint8
	Name      string
	TTL       uint64 // seconds; 0 means no expiry
	Counter   bool
	Tombstone bool
}

// AccessGroupSchema names the column families grouped into one access
// group and that group's independent storage policy (spec §3: "each
// access group has independent in-memory flag, block size, bloom-filter
// policy, compressor").
type AccessGroupSchema struct {
	Name           string
	Families       []ColumnFamily
	InMemory       bool
	BlockSize      int
	BloomPolicy    bloomfilter.Policy
	Compression    blockcompress.Type
	SplitThreshold int64
}

// Schema is a table's full column-family layout plus its identity and
// generation (spec §3: "a stable numeric id, an integer generation
// (bumped on every alter)").
type Schema struct {
	TableID    uint32
	Generation uint32
	Name       string
	Groups     []AccessGroupSchema
}

// FamilyByID returns the ColumnFamily with the given id, if any.
func (s *Schema) FamilyByID(id uint8) (ColumnFamily, bool) {
	for _, g := range s.Groups {
		for _, f := range g.Families {
			if f.ID == id {
				return f, true
			}
		}
	}
	return ColumnFamily{}, false
}

// FamilyTTLs builds the family-id -> TTL map the merge scanner and cell
// store writer need for TTL filtering and expiration bookkeeping.
func (s *Schema) FamilyTTLs() map[uint8]uint64 {
	out := make(map[uint8]uint64)
	for _, g := range s.Groups {
		for _, f := range g.Families {
			if f.TTL > 0 {
				out[f.ID] = f.TTL
			}
		}
	}
	return out
}
