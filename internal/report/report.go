package report

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/phillip-england/desglose/internal/breakdown"
	"github.com/xuri/excelize/v2"
)

const (
	FileName    = "Reporte_Desglosado_Listo.xlsx"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	reportSheet = "Reporte"
	excessSheet = "Excesos"

	maxColumnWidth = 50
)

type styles struct {
	header   int
	activity int
	date     int
	centered int
	plain    int
}

// Render writes the result as a styled workbook with the header rows shaded
// and columns sized to their content. Shifts over the threshold are listed on
// a second sheet.
func Render(res *breakdown.Result) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return nil, fmt.Errorf("name report sheet: %w", err)
	}
	st, err := newStyles(f)
	if err != nil {
		return nil, err
	}

	if err := writeReport(f, st, res); err != nil {
		return nil, err
	}
	if len(res.Excess) > 0 {
		if err := writeExcess(f, st, res.Excess); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeReport(f *excelize.File, st styles, res *breakdown.Result) error {
	sw, err := f.NewStreamWriter(reportSheet)
	if err != nil {
		return fmt.Errorf("open report sheet: %w", err)
	}

	table := res.Table()
	if err := setWidths(sw, table); err != nil {
		return err
	}

	activityCol := res.Header.ActivityTarget
	for r, row := range table {
		cells := make([]interface{}, len(row))
		for c, cell := range row {
			style := st.plain
			switch {
			case r < 2:
				style = st.header
			case c == activityCol:
				style = st.activity
			case cell.Kind == breakdown.KindDate:
				style = st.date
			case looksLikeDate(cell):
				style = st.centered
			}
			cells[c] = excelize.Cell{StyleID: style, Value: cellValue(cell)}
		}
		if err := setRow(sw, r+1, cells); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush report sheet: %w", err)
	}
	return nil
}

func writeExcess(f *excelize.File, st styles, excess []breakdown.ExcessEntry) error {
	if _, err := f.NewSheet(excessSheet); err != nil {
		return fmt.Errorf("create excess sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(excessSheet)
	if err != nil {
		return fmt.Errorf("open excess sheet: %w", err)
	}
	if err := sw.SetColWidth(1, 1, 30); err != nil {
		return err
	}
	if err := sw.SetColWidth(2, 4, 14); err != nil {
		return err
	}

	header := []interface{}{}
	for _, title := range []string{"Trabajador", "Fecha", "Turno", "Horas"} {
		header = append(header, excelize.Cell{StyleID: st.header, Value: title})
	}
	if err := setRow(sw, 1, header); err != nil {
		return err
	}
	for i, entry := range excess {
		row := []interface{}{
			excelize.Cell{StyleID: st.plain, Value: entry.Worker},
			excelize.Cell{StyleID: st.centered, Value: entry.Date},
			excelize.Cell{StyleID: st.plain, Value: entry.Shift},
			excelize.Cell{StyleID: st.plain, Value: entry.Hours},
		}
		if err := setRow(sw, i+2, row); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush excess sheet: %w", err)
	}
	return nil
}

func setRow(sw *excelize.StreamWriter, row int, cells []interface{}) error {
	ref, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := sw.SetRow(ref, cells); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func setWidths(sw *excelize.StreamWriter, table [][]breakdown.Cell) error {
	if len(table) == 0 {
		return nil
	}
	for c := range table[0] {
		longest := 0
		for _, row := range table {
			if c < len(row) {
				if n := utf8.RuneCountInString(row[c].String()); n > longest {
					longest = n
				}
			}
		}
		width := longest + 3
		if width > maxColumnWidth {
			width = maxColumnWidth
		}
		if err := sw.SetColWidth(c+1, c+1, float64(width)); err != nil {
			return fmt.Errorf("size column %d: %w", c+1, err)
		}
	}
	return nil
}

func cellValue(cell breakdown.Cell) interface{} {
	switch cell.Kind {
	case breakdown.KindText:
		return cell.Text
	case breakdown.KindNumber:
		return cell.Number
	case breakdown.KindDate:
		return cell.Date
	default:
		return nil
	}
}

// looksLikeDate catches date text outside the recognized date columns, such
// as "2024-03-04" in a free-form column.
func looksLikeDate(cell breakdown.Cell) bool {
	return cell.Kind == breakdown.KindText && strings.HasPrefix(cell.Text, "20") && strings.Contains(cell.Text, "-")
}

func newStyles(f *excelize.File) (styles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	dateFormat := "yyyy-mm-dd"

	var st styles
	defs := []struct {
		id    *int
		style *excelize.Style
	}{
		{&st.header, &excelize.Style{
			Border:    border,
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"404040"}, Pattern: 1},
			Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		}},
		{&st.activity, &excelize.Style{
			Border:    border,
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"FFF2CC"}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "left"},
		}},
		{&st.date, &excelize.Style{
			Border:       border,
			Alignment:    &excelize.Alignment{Horizontal: "center"},
			CustomNumFmt: &dateFormat,
		}},
		{&st.centered, &excelize.Style{
			Border:    border,
			Alignment: &excelize.Alignment{Horizontal: "center"},
		}},
		{&st.plain, &excelize.Style{Border: border}},
	}
	for _, def := range defs {
		id, err := f.NewStyle(def.style)
		if err != nil {
			return styles{}, fmt.Errorf("create style: %w", err)
		}
		*def.id = id
	}
	return st, nil
}
