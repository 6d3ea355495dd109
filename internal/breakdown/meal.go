package breakdown

import "strings"

// DedupMeals keeps at most one meal credit per meal group. The row with the
// most activity hours keeps its meal value, the earliest row wins on ties,
// and every other row in the group has its meal cleared. Rows are updated in
// place and never reordered. It returns how many meal values were cleared.
//
// The pass is a no-op unless the header has meal, name and date columns.
// Rows with a blank name or date belong to no group and are left alone.
// Dates are compared as calendar days, so a serial and its text form meet.
func DedupMeals(rows []Row, h *Header, scope MealScope, order DateOrder) int {
	if h.Meal < 0 || h.Name < 0 || h.Date < 0 {
		return 0
	}

	keys := make([]string, len(rows))
	best := make(map[string]int)
	for i, row := range rows {
		key, ok := mealKey(row, h, scope, order)
		if !ok {
			continue
		}
		keys[i] = key
		j, seen := best[key]
		if !seen || outranks(rows[i], rows[j], h) {
			best[key] = i
		}
	}

	cleared := 0
	for i := range rows {
		if keys[i] == "" || best[keys[i]] == i {
			continue
		}
		if rows[i].Cells[h.Meal].Float() != 0 {
			cleared++
		}
		rows[i].Cells[h.Meal] = NumberCell(0)
	}
	return cleared
}

func outranks(a, b Row, h *Header) bool {
	ha, hb := a.Hours(h), b.Hours(h)
	if ha != hb {
		return ha > hb
	}
	return a.Seq < b.Seq
}

func mealKey(row Row, h *Header, scope MealScope, order DateOrder) (string, bool) {
	name := row.Cells[h.Name].String()
	date := row.Cells[h.Date].String()
	if name == "" || date == "" {
		return "", false
	}
	parts := []string{name, displayDate(date, order)}
	if scope == MealScopeShift {
		parts = append(parts, row.Cells[h.ShiftTarget].String())
	}
	return strings.Join(parts, "\x00"), true
}
