package breakdown

import (
	"fmt"
	"strings"
)

// Header is the parsed two-row header plus every column role the later
// stages need. Roles are resolved once here; an index of -1 means the
// column is absent.
type Header struct {
	Anchor int
	// Top holds the forward-filled top labels and Bottom the raw bottom
	// labels, both as they are written back into the report.
	Top    []string
	Bottom []string
	Schema Schema

	Activities     []int
	Meal           int
	ActivityTarget int
	ShiftTarget    int
	Name           int
	Date           int
	Dates          []int
}

// ParseHeader locates the anchor row and names the columns beneath it.
func ParseHeader(raw RawSheet, policy Policy) (*Header, error) {
	anchor, err := LocateHeader(raw, policy)
	if err != nil {
		return nil, err
	}
	return NameColumns(raw, anchor, policy), nil
}

// LocateHeader returns the index of the first row, within the scan window,
// that mentions both the key marker and the attendance marker.
func LocateHeader(raw RawSheet, policy Policy) (int, error) {
	key := strings.ToUpper(policy.Markers.Key)
	attendance := strings.ToUpper(policy.Markers.Attendance)

	limit := policy.ScanRows
	if limit > len(raw) {
		limit = len(raw)
	}
	for i := 0; i < limit; i++ {
		var hasKey, hasAttendance bool
		for _, cell := range raw[i] {
			upper := strings.ToUpper(cell)
			if strings.Contains(upper, key) {
				hasKey = true
			}
			if strings.Contains(upper, attendance) {
				hasAttendance = true
			}
		}
		if hasKey && hasAttendance {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: no row among the first %d mentions %q and %q",
		ErrHeaderNotFound, limit, policy.Markers.Key, policy.Markers.Attendance)
}

// NameColumns fuses rows anchor and anchor+1 into a schema. Merged header
// cells are forward-filled so every column under a merge shares its label.
func NameColumns(raw RawSheet, anchor int, policy Policy) *Header {
	topRow := rowAt(raw, anchor)
	bottomRow := rowAt(raw, anchor+1)

	width := len(topRow)
	if len(bottomRow) > width {
		width = len(bottomRow)
	}

	h := &Header{
		Anchor: anchor,
		Top:    make([]string, width),
		Bottom: make([]string, width),
		Schema: make(Schema, 0, width),
	}

	last := ""
	for i := 0; i < width; i++ {
		top := strings.TrimSpace(cellAt(topRow, i))
		if top == "" {
			top = last
		} else {
			last = top
		}
		h.Top[i] = top
		h.Bottom[i] = strings.TrimSpace(cellAt(bottomRow, i))
	}

	seen := make(map[string]int, width)
	for i := 0; i < width; i++ {
		h.appendColumn(i, h.Top[i], normalizeBottom(h.Bottom[i]), policy.Separator, policy.BlankTop == BlankTopPlaceholder, seen)
	}
	h.resolve(policy)
	return h
}

// extend grows the schema with placeholder columns so wider data rows can
// be kept under WidthPad.
func (h *Header) extend(width int, separator string) {
	if width <= len(h.Schema) {
		return
	}
	seen := make(map[string]int, width)
	for _, col := range h.Schema {
		seen[col.Key]++
	}
	for i := len(h.Schema); i < width; i++ {
		h.Top = append(h.Top, "")
		h.Bottom = append(h.Bottom, "")
		h.appendColumn(i, "", "", separator, true, seen)
	}
}

func (h *Header) appendColumn(index int, top, bottom, separator string, placeholder bool, seen map[string]int) {
	if top == "" && placeholder {
		top = fmt.Sprintf("Col_%d", index)
	}
	key := top + separator + bottom
	seen[key]++
	if n := seen[key]; n > 1 {
		key = fmt.Sprintf("%s#%d", key, n)
	}
	h.Schema = append(h.Schema, Column{Top: top, Bottom: bottom, Key: key})
}

func (h *Header) resolve(policy Policy) {
	m := policy.Markers
	activity := strings.ToUpper(m.Activity)
	meal := strings.ToUpper(m.Meal)
	total := strings.ToUpper(m.Total)
	name := strings.ToUpper(m.Name)
	date := strings.ToUpper(m.Date)

	h.Activities = nil
	h.Dates = nil
	h.Meal, h.ActivityTarget, h.ShiftTarget, h.Name, h.Date = -1, -1, -1, -1, -1

	for i, col := range h.Schema {
		top := strings.ToUpper(col.Top)
		key := strings.ToUpper(col.Key)

		if strings.Contains(top, activity) {
			h.Activities = append(h.Activities, i)
			continue
		}
		// The last meal column wins, so merged COMIDA cells resolve to the
		// rightmost sub-column.
		if meal != "" && strings.Contains(top, meal) && (total == "" || !strings.Contains(top, total)) {
			h.Meal = i
			continue
		}
		if h.ActivityTarget < 0 && strings.EqualFold(strings.TrimSpace(col.Top), m.ActivityTarget) {
			h.ActivityTarget = i
			continue
		}
		if h.ShiftTarget < 0 && strings.EqualFold(strings.TrimSpace(col.Top), m.ShiftTarget) {
			h.ShiftTarget = i
			continue
		}
		if name != "" && h.Name < 0 && strings.Contains(key, name) {
			h.Name = i
		}
		if date != "" && strings.Contains(key, date) {
			h.Dates = append(h.Dates, i)
			if h.Date < 0 {
				h.Date = i
			}
		}
	}
}

func (h *Header) HasTargets() bool {
	return h.ActivityTarget >= 0 && h.ShiftTarget >= 0
}

func normalizeBottom(value string) string {
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "x") {
		return ""
	}
	return value
}

func rowAt(raw RawSheet, index int) []string {
	if index < 0 || index >= len(raw) {
		return nil
	}
	return raw[index]
}

func cellAt(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return row[index]
}
