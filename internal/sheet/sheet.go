package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/extrame/xls"
	"github.com/phillip-england/desglose/internal/breakdown"
	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

var (
	ErrEmpty      = errors.New("worksheet is empty")
	ErrUnreadable = errors.New("unreadable spreadsheet")
)

const maxXLSRows = 100000

// Read turns an uploaded file into a raw sheet. The format is chosen from the
// file name; a trailing .xz is decompressed first. Only the first worksheet
// of a workbook is read.
func Read(data []byte, filename string) (breakdown.RawSheet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: uploaded file has no content", ErrEmpty)
	}
	raw, err := read(data, filename)
	if err != nil && !errors.Is(err, ErrEmpty) && !errors.Is(err, ErrUnreadable) {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return raw, err
}

func read(data []byte, filename string) (breakdown.RawSheet, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".xz":
		inner, err := decompress(data)
		if err != nil {
			return nil, err
		}
		return Read(inner, strings.TrimSuffix(filename, filepath.Ext(filename)))
	case ".xls":
		return readXLS(data)
	case ".csv", ".txt":
		return readCSV(data)
	default:
		return readXLSX(data)
	}
}

func readXLSX(data []byte) (breakdown.RawSheet, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = file.Close() }()

	sheetName := file.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no worksheet found")
	}

	// Raw values keep dates as serial numbers and hours unformatted.
	rows, err := file.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read worksheet %s: %w", sheetName, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	return trimRows(rows), nil
}

func readXLS(data []byte) (breakdown.RawSheet, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	if workbook.NumSheets() == 0 {
		return nil, fmt.Errorf("no worksheet found")
	}
	ws := workbook.GetSheet(0)
	if ws == nil {
		return nil, fmt.Errorf("no worksheet found")
	}

	last := int(ws.MaxRow)
	if last >= maxXLSRows {
		last = maxXLSRows - 1
	}
	rows := make([][]string, 0, last+1)
	for i := 0; i <= last; i++ {
		row := ws.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for j := 0; j < row.LastCol(); j++ {
			cells = append(cells, row.Col(j))
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	return trimRows(rows), nil
}

func readCSV(data []byte) (breakdown.RawSheet, error) {
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("decode csv: %w", err)
		}
		data = decoded
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	return trimRows(rows), nil
}

func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

func decompress(data []byte) ([]byte, error) {
	reader, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xz stream: %w", err)
	}
	inner, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompress xz stream: %w", err)
	}
	return inner, nil
}

// Compress wraps data in an xz stream.
func Compress(data []byte) ([]byte, error) {
	var out bytes.Buffer
	writer, err := xz.NewWriter(&out)
	if err != nil {
		return nil, fmt.Errorf("open xz writer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("compress report: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close xz writer: %w", err)
	}
	return out.Bytes(), nil
}

func trimRows(rows [][]string) breakdown.RawSheet {
	out := make(breakdown.RawSheet, len(rows))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = strings.TrimSpace(cell)
		}
		out[i] = cells
	}
	return out
}
