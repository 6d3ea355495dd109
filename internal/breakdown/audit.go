package breakdown

import (
	"strings"

	"github.com/shopspring/decimal"
)

type ExcessEntry struct {
	Worker string  `json:"worker"`
	Date   string  `json:"date"`
	Shift  string  `json:"shift"`
	Hours  float64 `json:"hours"`
}

// ShiftTotal is the hours a worker logged on one shift of one date,
// activities and meal included.
type ShiftTotal struct {
	Worker string
	Date   string
	Shift  string
	Hours  decimal.Decimal
}

// ShiftTotals groups rows by worker, date and shift in order of first
// appearance. Sums are exact decimals so thresholds compare cleanly.
// Without name and date columns there is nothing to group and it returns nil.
func ShiftTotals(rows []Row, h *Header, order DateOrder) []ShiftTotal {
	if h.Name < 0 || h.Date < 0 {
		return nil
	}

	var totals []ShiftTotal
	index := make(map[string]int)
	for _, row := range rows {
		worker := row.Cells[h.Name].String()
		date := row.Cells[h.Date].String()
		if worker == "" || date == "" {
			continue
		}
		date = displayDate(date, order)
		shift := row.Cells[h.ShiftTarget].String()

		hours := decimal.Zero
		for _, idx := range h.Activities {
			hours = hours.Add(decimal.NewFromFloat(row.Cells[idx].Float()))
		}
		if h.Meal >= 0 {
			hours = hours.Add(decimal.NewFromFloat(row.Cells[h.Meal].Float()))
		}

		key := strings.Join([]string{worker, date, shift}, "\x00")
		i, ok := index[key]
		if !ok {
			index[key] = len(totals)
			totals = append(totals, ShiftTotal{
				Worker: worker,
				Date:   date,
				Shift:  shift,
				Hours:  hours,
			})
			continue
		}
		totals[i].Hours = totals[i].Hours.Add(hours)
	}
	return totals
}

// Audit reports every shift whose total is strictly above threshold.
func Audit(totals []ShiftTotal, threshold float64) []ExcessEntry {
	limit := decimal.NewFromFloat(threshold)
	var excess []ExcessEntry
	for _, t := range totals {
		if !t.Hours.GreaterThan(limit) {
			continue
		}
		excess = append(excess, ExcessEntry{
			Worker: t.Worker,
			Date:   t.Date,
			Shift:  t.Shift,
			Hours:  t.Hours.InexactFloat64(),
		})
	}
	return excess
}

// displayDate is the calendar day of value as yyyy-mm-dd, or value itself
// when it does not parse.
func displayDate(value string, order DateOrder) string {
	if parsed, ok := ParseDate(value, order); ok {
		return parsed.Format("2006-01-02")
	}
	return value
}
