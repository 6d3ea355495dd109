package breakdown

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var isoLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	time.RFC3339,
	time.RFC3339Nano,
}

var dmyLayouts = []string{
	"2/1/2006",
	"02/01/2006",
	"2/1/06",
	"02/01/06",
	"2-1-2006",
	"02-01-2006",
	"02.01.2006",
	"2/1/2006 15:04",
	"02/01/2006 15:04:05",
}

var mdyLayouts = []string{
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"01/02/06",
	"1-2-2006",
	"01-02-2006",
	"01.02.2006",
	"1/2/2006 15:04",
	"01/02/2006 15:04:05",
}

// ParseDate reads a calendar date from cell text. Excel serial numbers are
// accepted within a plausible range so plain counts are not taken for dates.
func ParseDate(value string, order DateOrder) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		if serial >= 20000 && serial <= 80000 {
			if parsed, err := excelize.ExcelDateToTime(serial, false); err == nil {
				return dateOnly(parsed), true
			}
		}
		return time.Time{}, false
	}

	layouts := dmyLayouts
	if order == DateOrderMDY {
		layouts = mdyLayouts
	}
	for _, group := range [][]string{isoLayouts, layouts} {
		for _, layout := range group {
			if parsed, err := time.Parse(layout, value); err == nil {
				return dateOnly(parsed), true
			}
		}
	}
	return time.Time{}, false
}

// NormalizeDates turns every cell under a date column into a date value.
// Cells that do not parse become empty. It returns how many did not parse.
func NormalizeDates(rows []Row, h *Header, order DateOrder) int {
	fallbacks := 0
	for _, row := range rows {
		for _, idx := range h.Dates {
			cell := row.Cells[idx]
			if cell.Kind == KindDate || cell.IsEmpty() {
				continue
			}
			parsed, ok := ParseDate(cell.String(), order)
			if !ok {
				fallbacks++
				row.Cells[idx] = Cell{}
				continue
			}
			row.Cells[idx] = DateCell(parsed)
		}
	}
	return fallbacks
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
