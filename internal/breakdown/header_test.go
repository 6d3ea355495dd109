package breakdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameColumnsForwardFillsMergedTops(t *testing.T) {
	raw := RawSheet{
		{"", "Clave", "Asistencia", "RMMAL 10", "", "COMIDA", "Act", "Turno"},
		{"", "", "X", "T1", "T2", "", "", ""},
	}
	h, err := ParseHeader(raw, DefaultPolicy())
	require.NoError(t, err)

	assert.Equal(t, []string{"Col_0|", "Clave|", "Asistencia|", "RMMAL 10|T1", "RMMAL 10|T2", "COMIDA|", "Act|", "Turno|"}, h.Schema.Keys())
	assert.Equal(t, []int{3, 4}, h.Activities)
	assert.Equal(t, 5, h.Meal)
	assert.Equal(t, 6, h.ActivityTarget)
	assert.Equal(t, 7, h.ShiftTarget)
	assert.Equal(t, -1, h.Name)
	assert.Equal(t, "", h.Top[0])
	assert.Equal(t, "RMMAL 10", h.Top[4])
	assert.Equal(t, "X", h.Bottom[2])
}

func TestNameColumnsBlankTopEmptyKeepsKeysUnique(t *testing.T) {
	raw := RawSheet{
		{"", "", "Clave Asistencia"},
		{"", "", ""},
	}
	policy := DefaultPolicy()
	policy.BlankTop = BlankTopEmpty
	h, err := ParseHeader(raw, policy)
	require.NoError(t, err)

	assert.Equal(t, []string{"|", "|#2", "Clave Asistencia|"}, h.Schema.Keys())
	assert.Equal(t, "", h.Schema[1].Top)
}

func TestNameColumnsDuplicateMergedKeys(t *testing.T) {
	raw := RawSheet{
		{"Clave", "Asistencia", "Nombre", ""},
		{},
	}
	h, err := ParseHeader(raw, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, []string{"Clave|", "Asistencia|", "Nombre|", "Nombre|#2"}, h.Schema.Keys())
	assert.Equal(t, 2, h.Name)
}

func TestMealColumnSkipsTotals(t *testing.T) {
	raw := RawSheet{
		{"Clave", "Asistencia", "TOTAL COMIDA", "Comida", "Comida extra"},
		{},
	}
	h, err := ParseHeader(raw, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, 4, h.Meal)
}

func TestMealColumnTakesLastMergedSubColumn(t *testing.T) {
	raw := RawSheet{
		{"Clave", "Asistencia", "COMIDA", "", "TOTAL COMIDA"},
		{"", "", "Cant", "Hrs", ""},
	}
	h, err := ParseHeader(raw, DefaultPolicy())
	require.NoError(t, err)
	require.Equal(t, 3, h.Meal)
	assert.Equal(t, "COMIDA|Hrs", h.Schema[h.Meal].Key)
}

func TestLocateHeaderIsCaseInsensitive(t *testing.T) {
	raw := RawSheet{
		{"titulo"},
		{"clave del empleado", "ASISTENCIA"},
	}
	anchor, err := LocateHeader(raw, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, 1, anchor)
}

func TestLoadWidthPolicies(t *testing.T) {
	raw := RawSheet{
		{"Clave", "Asistencia", "Act", "Turno", "RMMAL 01"},
		{"", "", "", "", "T1"},
		{"1", "1", "", "", "4", "extra", "mas"},
		{"2", "1"},
	}

	truncate := DefaultPolicy()
	h, err := ParseHeader(raw, truncate)
	require.NoError(t, err)
	frame := Load(raw, h, truncate, nil)
	require.Len(t, frame.Records, 2)
	assert.Len(t, frame.Records[0].Cells, 5)
	assert.Equal(t, 2, frame.TruncatedCells)
	assert.Equal(t, NumberCell(0), frame.Records[1].Cells[4])

	pad := DefaultPolicy()
	pad.Width = WidthPad
	h, err = ParseHeader(raw, pad)
	require.NoError(t, err)
	frame = Load(raw, h, pad, nil)
	require.Len(t, frame.Records, 2)
	assert.Equal(t, []string{"Clave|", "Asistencia|", "Act|", "Turno|", "RMMAL 01|T1", "Col_5|", "Col_6|"}, h.Schema.Keys())
	assert.Equal(t, "extra", frame.Records[0].Cells[5].String())
	assert.Zero(t, frame.TruncatedCells)
	assert.Equal(t, 5, frame.PaddedCells)
}

func TestLoadSkipsBlankRows(t *testing.T) {
	raw := RawSheet{
		{"Clave", "Asistencia", "Act", "Turno", "RMMAL 01"},
		{},
		{"", "  ", ""},
		{"1", "1", "", "", "4"},
	}
	h, err := ParseHeader(raw, DefaultPolicy())
	require.NoError(t, err)
	frame := Load(raw, h, DefaultPolicy(), nil)
	require.Len(t, frame.Records, 1)
	assert.Equal(t, 3, frame.Records[0].Source)
}

func TestParseHours(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"", 0, true},
		{"4", 4, true},
		{" 2.5 ", 2.5, true},
		{"2,5", 2.5, true},
		{"abc", 0, false},
		{"NaN", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseHours(tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
	}
}
