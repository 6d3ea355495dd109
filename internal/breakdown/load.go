package breakdown

import (
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Record is one typed data row aligned to the header schema.
type Record struct {
	Source int
	Cells  []Cell
}

type Frame struct {
	Header  *Header
	Records []Record

	CoercionFallbacks int
	TruncatedCells    int
	PaddedCells       int
}

// Load types the data block that starts two rows below the anchor. Hour
// and meal cells become numbers; anything unparsable is counted and read
// as zero. Under WidthPad the header may be extended in place.
func Load(raw RawSheet, h *Header, policy Policy, logger *zap.Logger) *Frame {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := h.Anchor + 2
	frame := &Frame{Header: h}
	if start >= len(raw) {
		return frame
	}
	data := raw[start:]

	if policy.Width == WidthPad {
		widest := 0
		for _, row := range data {
			if n := lastFilled(row) + 1; n > widest {
				widest = n
			}
		}
		if widest > len(h.Schema) {
			logger.Debug("extending schema for wide data rows",
				zap.Int("header_width", len(h.Schema)),
				zap.Int("data_width", widest))
			h.extend(widest, policy.Separator)
		}
	}

	numeric := make(map[int]bool, len(h.Activities)+1)
	for _, idx := range h.Activities {
		numeric[idx] = true
	}
	if h.Meal >= 0 {
		numeric[h.Meal] = true
	}

	width := len(h.Schema)
	for offset, row := range data {
		if lastFilled(row) < 0 {
			continue
		}
		source := start + offset
		if extra := lastFilled(row) + 1 - width; extra > 0 {
			frame.TruncatedCells += extra
		}

		cells := make([]Cell, width)
		for i := 0; i < width; i++ {
			if i >= len(row) && policy.Width == WidthPad {
				frame.PaddedCells++
			}
			value := cellAt(row, i)
			if !numeric[i] {
				cells[i] = TextCell(value)
				continue
			}
			hours, ok := parseHours(value)
			if !ok {
				frame.CoercionFallbacks++
				logger.Debug("non-numeric hours read as zero",
					zap.Int("row", source+1),
					zap.String("column", h.Schema[i].Key),
					zap.String("value", value))
			}
			cells[i] = NumberCell(hours)
		}
		frame.Records = append(frame.Records, Record{Source: source, Cells: cells})
	}
	return frame
}

// parseHours accepts plain and comma-decimal numbers. Blank cells are zero
// without counting as a fallback.
func parseHours(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, true
	}
	if strings.Contains(value, ",") && !strings.Contains(value, ".") {
		value = strings.Replace(value, ",", ".", 1)
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, false
	}
	return parsed, true
}

func lastFilled(row []string) int {
	for i := len(row) - 1; i >= 0; i-- {
		if strings.TrimSpace(row[i]) != "" {
			return i
		}
	}
	return -1
}
