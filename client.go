package hypertable

import (
	"github.com/vicaya/hypertable-sub000/cellkey"
	"github.com/vicaya/hypertable-sub000/htcerr"
	"github.com/vicaya/hypertable-sub000/scan"
)

// CellInput is the string/family-name-addressed convenience shape the
// CLI and tests build batches from, translated to cellkey.Cell via the
// table schema's family name -> id mapping before being handed to
// Range.Update.
type CellInput struct {
	Row       string
	Family    string
	Qualifier string
	Timestamp uint64
	Revision  uint64
	Flag      cellkey.Flag
	Value     []byte
}

// ApplyCellInputs translates inputs into cellkey.Cells using schema's
// family name->id mapping and applies them to r as one batch.
func ApplyCellInputs(r *Range, schema *Schema, inputs []CellInput) error {
	batch := make([]cellkey.Cell, 0, len(inputs))
	for _, in := range inputs {
		fid, ok := familyIDByName(schema, in.Family)
		if !ok {
			return htcerr.New(htcerr.TableNotFound, "unknown family %q", in.Family)
		}
		flag := in.Flag
		if flag == 0 && in.Value != nil {
			flag = cellkey.FlagInsert
		}
		batch = append(batch, cellkey.Cell{
			Row:       []byte(in.Row),
			FamilyID:  fid,
			Qualifier: []byte(in.Qualifier),
			Timestamp: in.Timestamp,
			Revision:  in.Revision,
			Flag:      flag,
			Value:     in.Value,
		})
	}
	_, err := r.Update(batch)
	return err
}

func familyIDByName(schema *Schema, name string) (uint8, bool) {
	for _, g := range schema.Groups {
		for _, f := range g.Families {
			if f.Name == name {
				return f.ID, true
			}
		}
	}
	return 0, false
}

// ScanRow is a convenience wrapper for the common point-row scan used
// by the CLI's demo command and by tests (spec §8 scenario S1): it
// opens a composite scanner restricted to row, drains it, and closes
// it, releasing every pinned cell-store reference.
func ScanRow(r *Range, row string) ([]cellkey.Cell, error) {
	ctx := scan.NewContext(scan.Spec{
		RowIntervals: []scan.RowInterval{{Start: row, StartInclusive: true, End: row, EndInclusive: true}},
	})
	cs, err := r.CreateScanner(ctx)
	if err != nil {
		return nil, err
	}
	defer cs.Close()
	var out []cellkey.Cell
	for {
		c, ok := cs.Next()
		if !ok {
			break
		}
		out = append(out, c)
	}
	return out, nil
}
