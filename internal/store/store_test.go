package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "experiments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleExperiment(id string, createdAt time.Time) *Experiment {
	return &Experiment{
		ID:              id,
		Strategy:        "momentum",
		Symbols:         "AAPL,MSFT",
		StartDate:       time.Date(2021, time.January, 4, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2022, time.January, 3, 0, 0, 0, 0, time.UTC),
		InitialCapital:  100000,
		FinalValue:      112500,
		TotalReturn:     0.125,
		SharpeRatio:     1.4,
		MaxDrawdown:     -0.08,
		TotalTrades:     42,
		ValidationGrade: "A",
		ValidationScore: 0.93,
		ReportPath:      "results/" + id + "/report.json",
		CreatedAt:       createdAt,
	}
}

// TestStore_SaveAndGet round-trips an experiment row.
func TestStore_SaveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exp := sampleExperiment("momentum_20230601_120000", time.Now().UTC().Truncate(time.Second))
	require.NoError(t, s.SaveExperiment(ctx, exp))

	got, err := s.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, exp.Strategy, got.Strategy)
	assert.Equal(t, exp.Symbols, got.Symbols)
	assert.Equal(t, exp.TotalReturn, got.TotalReturn)
	assert.Equal(t, exp.ValidationGrade, got.ValidationGrade)
	assert.True(t, exp.StartDate.Equal(got.StartDate))
	assert.True(t, exp.CreatedAt.Equal(got.CreatedAt))
}

// TestStore_GetMissing surfaces a not-found error.
func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetExperiment(context.Background(), "nope")
	assert.Error(t, err)
}

// TestStore_ListNewestFirst verifies ordering and limit.
func TestStore_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2023, time.June, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		exp := sampleExperiment("run_"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, s.SaveExperiment(ctx, exp))
	}

	all, err := s.ListExperiments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run_c", all[0].ID)
	assert.Equal(t, "run_a", all[2].ID)

	limited, err := s.ListExperiments(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

// TestStore_SaveReplacesExisting verifies an ID collision updates the
// row instead of duplicating it.
func TestStore_SaveReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exp := sampleExperiment("run_x", time.Now().UTC())
	require.NoError(t, s.SaveExperiment(ctx, exp))

	exp.TotalReturn = 0.5
	require.NoError(t, s.SaveExperiment(ctx, exp))

	all, err := s.ListExperiments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 0.5, all[0].TotalReturn)
}
