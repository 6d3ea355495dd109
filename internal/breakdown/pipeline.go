package breakdown

import (
	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
)

type Stats struct {
	SourceRows        int     `json:"sourceRows"`
	SkippedRows       int     `json:"skippedRows"`
	EmittedRows       int     `json:"emittedRows"`
	MealsCleared      int     `json:"mealsCleared"`
	CoercionFallbacks int     `json:"coercionFallbacks"`
	DateFallbacks     int     `json:"dateFallbacks"`
	TruncatedCells    int     `json:"truncatedCells"`
	PaddedCells       int     `json:"paddedCells"`
	Shifts            int     `json:"shifts"`
	TotalHours        float64 `json:"totalHours"`
	MaxShiftHours     float64 `json:"maxShiftHours"`
	MeanShiftHours    float64 `json:"meanShiftHours"`
}

type Result struct {
	Header *Header
	Rows   []Row
	Excess []ExcessEntry
	Stats  Stats
}

// Processor runs the whole breakdown for one sheet. It holds no state
// between calls and is safe to share.
type Processor struct {
	Policy Policy
	Logger *zap.Logger
}

func NewProcessor(policy Policy, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{Policy: policy, Logger: logger}
}

// Process locates the header, loads and decomposes the data, enforces the
// meal policy, audits shift hours and normalizes dates. A missing header or
// missing target columns abort the run; no partial result is returned.
func (p *Processor) Process(raw RawSheet) (*Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := p.Policy.Validate(); err != nil {
		return nil, err
	}

	header, err := ParseHeader(raw, p.Policy)
	if err != nil {
		return nil, err
	}
	logger.Debug("header located",
		zap.Int("anchor_row", header.Anchor+1),
		zap.Strings("columns", header.Schema.Keys()),
		zap.Int("activity_columns", len(header.Activities)),
		zap.Bool("meal_column", header.Meal >= 0))

	frame := Load(raw, header, p.Policy, logger)
	rows, err := Decompose(frame)
	if err != nil {
		return nil, err
	}

	cleared := DedupMeals(rows, header, p.Policy.MealScope, p.Policy.DateOrder)
	totals := ShiftTotals(rows, header, p.Policy.DateOrder)
	excess := Audit(totals, p.Policy.ExcessThreshold)
	dateFallbacks := NormalizeDates(rows, header, p.Policy.DateOrder)

	res := &Result{
		Header: header,
		Rows:   rows,
		Excess: excess,
		Stats: Stats{
			SourceRows:        len(frame.Records),
			SkippedRows:       len(frame.Records) - countSources(rows),
			EmittedRows:       len(rows),
			MealsCleared:      cleared,
			CoercionFallbacks: frame.CoercionFallbacks,
			DateFallbacks:     dateFallbacks,
			TruncatedCells:    frame.TruncatedCells,
			PaddedCells:       frame.PaddedCells,
			Shifts:            len(totals),
		},
	}
	summarize(&res.Stats, totals)

	logger.Info("sheet processed",
		zap.Int("source_rows", res.Stats.SourceRows),
		zap.Int("emitted_rows", res.Stats.EmittedRows),
		zap.Int("meals_cleared", cleared),
		zap.Int("excess", len(excess)))
	return res, nil
}

// Table is the exportable form of the result: both header rows followed by
// every decomposed row in emission order.
func (r *Result) Table() [][]Cell {
	width := len(r.Header.Schema)
	table := make([][]Cell, 0, len(r.Rows)+2)
	for _, labels := range [][]string{r.Header.Top, r.Header.Bottom} {
		row := make([]Cell, width)
		for i := 0; i < width && i < len(labels); i++ {
			row[i] = TextCell(labels[i])
		}
		table = append(table, row)
	}
	for _, row := range r.Rows {
		table = append(table, row.Cells)
	}
	return table
}

func summarize(s *Stats, totals []ShiftTotal) {
	if len(totals) == 0 {
		return
	}
	hours := make(stats.Float64Data, len(totals))
	for i, t := range totals {
		hours[i] = t.Hours.InexactFloat64()
	}
	if sum, err := hours.Sum(); err == nil {
		s.TotalHours = sum
	}
	if max, err := hours.Max(); err == nil {
		s.MaxShiftHours = max
	}
	if mean, err := hours.Mean(); err == nil {
		s.MeanShiftHours = mean
	}
}

func countSources(rows []Row) int {
	seen := make(map[int]struct{}, len(rows))
	for _, row := range rows {
		seen[row.Source] = struct{}{}
	}
	return len(seen)
}
