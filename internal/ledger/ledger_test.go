package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/phillip-england/desglose/internal/breakdown"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndGet(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	run, err := store.Record(ctx, Run{
		Filename:  "asistencia.xlsx",
		UploadKey: "abc",
		Policy:    "fp",
		Stats:     breakdown.Stats{SourceRows: 2, EmittedRows: 3, MealsCleared: 1, MaxShiftHours: 13},
		Excess: []breakdown.ExcessEntry{
			{Worker: "Ana Lopez", Date: "2024-03-04", Shift: "T1", Hours: 13},
			{Worker: "Luis Perez", Date: "2024-03-04", Shift: "T2", Hours: 12.5},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 2, run.ExcessCount)

	got, err := store.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "asistencia.xlsx", got.Filename)
	assert.Equal(t, run.Stats, got.Stats)
	assert.Equal(t, run.Excess, got.Excess)
	assert.True(t, run.CreatedAt.Equal(got.CreatedAt))
}

func TestGetUnknownRun(t *testing.T) {
	_, err := openStore(t).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	base := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	for i, name := range []string{"a.xlsx", "b.xlsx", "c.xlsx"} {
		_, err := store.Record(ctx, Run{Filename: name, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	runs, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c.xlsx", runs[0].Filename)
	assert.Equal(t, "b.xlsx", runs[1].Filename)
	assert.Nil(t, runs[0].Excess)
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "desglose.db")
	store, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(context.Background(), path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	runs, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
