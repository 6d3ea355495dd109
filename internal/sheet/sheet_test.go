package sheet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func workbookBytes(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		values := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &values))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestReadXLSXKeepsRawValues(t *testing.T) {
	data := workbookBytes(t, [][]interface{}{
		{"Clave", "Nombre", "Fecha", "RMMAL 01"},
		{" 101 ", "Ana", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), 4.5},
	})

	raw, err := Read(data, "asistencia.xlsx")
	require.NoError(t, err)
	require.Len(t, raw, 2)
	assert.Equal(t, []string{"Clave", "Nombre", "Fecha", "RMMAL 01"}, raw[0])
	assert.Equal(t, "101", raw[1][0])
	assert.Equal(t, "45355", raw[1][2])
	assert.Equal(t, "4.5", raw[1][3])
}

func TestReadCSVSniffsDelimiterAndEncoding(t *testing.T) {
	// "Año" in Windows-1252.
	data := []byte("Clave;A\xf1o;RMMAL 01\n101;2024;4,5\n")
	raw, err := Read(data, "export.csv")
	require.NoError(t, err)
	require.Len(t, raw, 2)
	assert.Equal(t, []string{"Clave", "Año", "RMMAL 01"}, raw[0])
	assert.Equal(t, []string{"101", "2024", "4,5"}, raw[1])
}

func TestReadCSVWithCommas(t *testing.T) {
	raw, err := Read([]byte("\xef\xbb\xbfClave,Nombre\n101,\"Lopez, Ana\"\n"), "export.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"Clave", "Nombre"}, raw[0])
	assert.Equal(t, []string{"101", "Lopez, Ana"}, raw[1])
}

func TestReadCompressedUpload(t *testing.T) {
	data := workbookBytes(t, [][]interface{}{{"Clave", "Asistencia"}})
	packed, err := Compress(data)
	require.NoError(t, err)

	raw, err := Read(packed, "asistencia.xlsx.xz")
	require.NoError(t, err)
	assert.Equal(t, []string{"Clave", "Asistencia"}, raw[0])
}

func TestReadRejectsGarbage(t *testing.T) {
	_, err := Read(nil, "vacio.xlsx")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Read([]byte("not a workbook"), "roto.xlsx")
	assert.ErrorIs(t, err, ErrUnreadable)

	_, err = Read([]byte("not xz"), "roto.xlsx.xz")
	assert.ErrorIs(t, err, ErrUnreadable)
}
