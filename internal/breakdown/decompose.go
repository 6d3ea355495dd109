package breakdown

import (
	"fmt"
	"slices"
	"strings"
)

// Row is one decomposed record: a copy of a source record attributed to a
// single activity column.
type Row struct {
	// Source is the raw sheet row the record came from.
	Source int
	// Seq is the emission order of the row. Later passes never reorder rows;
	// Seq is what they use to break ties.
	Seq int
	// Activity is the schema index of the activity column this row carries.
	Activity int
	Cells    []Cell
}

// Decompose expands every record into one row per activity column with
// logged hours. Records with no hours produce nothing. The meal value of a
// record stays on the row of its winning activity, the one with the most
// hours, first in header order on ties.
func Decompose(frame *Frame) ([]Row, error) {
	h := frame.Header
	if !h.HasTargets() {
		var missing []string
		if h.ActivityTarget < 0 {
			missing = append(missing, "activity")
		}
		if h.ShiftTarget < 0 {
			missing = append(missing, "shift")
		}
		return nil, fmt.Errorf("%w: no %s target column in header", ErrMissingTargetColumns, strings.Join(missing, " or "))
	}

	var rows []Row
	for _, rec := range frame.Records {
		active := activeColumns(rec, h)
		if len(active) == 0 {
			continue
		}
		winner := active[0]
		for _, idx := range active[1:] {
			if rec.Cells[idx].Float() > rec.Cells[winner].Float() {
				winner = idx
			}
		}

		for _, chosen := range active {
			cells := slices.Clone(rec.Cells)
			col := h.Schema[chosen]
			cells[h.ActivityTarget] = TextCell(col.Top)
			cells[h.ShiftTarget] = TextCell(col.Bottom)
			for _, other := range h.Activities {
				if other != chosen {
					cells[other] = NumberCell(0)
				}
			}
			if h.Meal >= 0 && chosen != winner {
				cells[h.Meal] = NumberCell(0)
			}
			rows = append(rows, Row{
				Source:   rec.Source,
				Seq:      len(rows),
				Activity: chosen,
				Cells:    cells,
			})
		}
	}
	return rows, nil
}

func activeColumns(rec Record, h *Header) []int {
	var active []int
	for _, idx := range h.Activities {
		if rec.Cells[idx].Float() > 0 {
			active = append(active, idx)
		}
	}
	return active
}

// Hours is the sum of every activity column of the row.
func (r Row) Hours(h *Header) float64 {
	total := 0.0
	for _, idx := range h.Activities {
		total += r.Cells[idx].Float()
	}
	return total
}
