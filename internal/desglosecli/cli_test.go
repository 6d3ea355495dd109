package desglosecli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phillip-england/desglose/internal/report"
	"github.com/phillip-england/desglose/internal/sheet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, path string, hours ...interface{}) {
	t.Helper()
	rows := [][]interface{}{
		{"Clave", "Nombre", "Fecha", "Asistencia", "Act", "Turno", "RMMAL 01", "RMMAL 02", "COMIDA"},
		{"", "", "", "", "", "", "T1", "T2", "x"},
		append([]interface{}{"101", "Ana Lopez", "04/03/2024", "1", "", ""}, hours...),
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		values := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &values))
	}
	require.NoError(t, f.SaveAs(path))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := execute(context.Background(), args, &out, &out)
	return out.String(), err
}

func TestUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		nil,
		{"bogus"},
		{"split"},
		{"split", "a.xlsx", "b.xlsx"},
		{"split", "--nope", "a.xlsx"},
		{"batch"},
	} {
		_, err := run(t, args...)
		assert.ErrorIs(t, err, ErrUsage, "args %v", args)
	}
}

func TestSplitWritesReportAndListsExcess(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "asistencia.xlsx")
	writeWorkbook(t, input, 13, 2, 1)
	db := filepath.Join(dir, "ledger.db")

	out, err := run(t, "split", input, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "2 rows from 1 records")
	assert.Contains(t, out, "exceso: Ana Lopez 2024-03-04 T1 14.00 h")

	f, err := excelize.OpenFile(filepath.Join(dir, report.FileName))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, []string{"Reporte", "Excesos"}, f.GetSheetList())

	out, err = run(t, "runs", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "asistencia.xlsx")
}

func TestSplitCompressed(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "asistencia.xlsx")
	writeWorkbook(t, input, 4, 6, 1)
	target := filepath.Join(dir, "out", "reporte.xlsx")

	_, err := run(t, "split", input, "-o", target, "--xz")
	require.NoError(t, err)

	data, err := os.ReadFile(target + ".xz")
	require.NoError(t, err)
	raw, err := sheet.Read(data, "reporte.xlsx.xz")
	require.NoError(t, err)
	assert.Equal(t, "Clave", raw[0][0])
}

func TestBatchIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "planta.xlsx")
	writeWorkbook(t, good, 4, 6, 1)
	bad := filepath.Join(dir, "lista.csv")
	require.NoError(t, os.WriteFile(bad, []byte("a,b\n1,2\n"), 0o644))
	outDir := filepath.Join(dir, "reportes")

	out, err := run(t, "batch", good, bad, "--out-dir", outDir, "--jobs", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files failed")
	assert.Contains(t, out, "lista.csv:")
	_, statErr := os.Stat(filepath.Join(outDir, "planta_desglose.xlsx"))
	assert.NoError(t, statErr)
}

func TestSetupWritesEnv(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	_, err := run(t, "setup", "--access-password", "planta-norte-2024", "--env-file", envPath)
	require.NoError(t, err)

	data, err := os.ReadFile(envPath)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "DESGLOSE_ACCESS_HASH=")
	assert.Contains(t, content, "DESGLOSE_CSRF_KEY=")

	_, err = run(t, "setup", "--env-file", envPath)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "already exists"))

	_, err = run(t, "setup", "--access-password", "short", "--env-file", envPath, "--force")
	assert.Error(t, err)
}

func TestReportName(t *testing.T) {
	assert.Equal(t, "planta_desglose.xlsx", reportName("planta.xlsx"))
	assert.Equal(t, "planta_desglose.xlsx", reportName("planta.csv.xz"))
}
