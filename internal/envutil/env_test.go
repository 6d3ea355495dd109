package envutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, WriteDotEnv(path, map[string]string{
		"DESGLOSE_TEST_ADDR":  ":9090",
		"DESGLOSE_TEST_TOKEN": "planta norte",
	}, false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	t.Setenv("DESGLOSE_TEST_ADDR", ":7070")
	os.Unsetenv("DESGLOSE_TEST_TOKEN")
	t.Cleanup(func() { os.Unsetenv("DESGLOSE_TEST_TOKEN") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, ":7070", os.Getenv("DESGLOSE_TEST_ADDR"))
	assert.Equal(t, "planta norte", os.Getenv("DESGLOSE_TEST_TOKEN"))
}

func TestWriteRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, WriteDotEnv(path, map[string]string{"A": "1"}, false))
	assert.Error(t, WriteDotEnv(path, map[string]string{"A": "2"}, false))
	assert.NoError(t, WriteDotEnv(path, map[string]string{"A": "2"}, true))
}

func TestLoadMissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestIntFallback(t *testing.T) {
	t.Setenv("DESGLOSE_TEST_N", "nope")
	assert.Equal(t, 7, Int("DESGLOSE_TEST_N", 7))
	t.Setenv("DESGLOSE_TEST_N", "12")
	assert.Equal(t, 12, Int("DESGLOSE_TEST_N", 7))
	t.Setenv("DESGLOSE_TEST_N", "0")
	assert.Equal(t, 7, Int("DESGLOSE_TEST_N", 7))
	t.Setenv("DESGLOSE_TEST_N", "-3")
	assert.Equal(t, 7, Int("DESGLOSE_TEST_N", 7))
	t.Setenv("DESGLOSE_TEST_S", "  ")
	assert.Equal(t, "x", String("DESGLOSE_TEST_S", "x"))
}
