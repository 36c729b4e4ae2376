package marketdata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/equity-backtest/internal/logging"
	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

// fakeSource returns canned bars or a canned error, counting calls.
type fakeSource struct {
	name  string
	bars  []types.Bar
	err   error
	calls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(_ context.Context, symbol string, _, _ time.Time) ([]types.Bar, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.Bar, len(f.bars))
	for i, b := range f.bars {
		b.Symbol = symbol
		out[i] = b
	}
	return out, nil
}

func fakeBars(n int) []types.Bar {
	bars := make([]types.Bar, n)
	for i := range bars {
		price := 100.0 + float64(i)
		bars[i] = types.Bar{
			Date:   time.Date(2023, time.January, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Open:   price,
			High:   price + 1,
			Low:    price - 1,
			Close:  price,
			Volume: 500_000,
		}
	}
	return bars
}

func newTestFetcher(sources ...Source) *Fetcher {
	return NewFetcher(
		logging.NewNop().WithComponent("test"),
		sources,
		WithRetry(2, time.Millisecond),
	)
}

// TestRateLimiter_AllowsUpToLimit verifies the window admits exactly
// limit requests without blocking.
func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, rl.Wait(ctx))
	}
	assert.Equal(t, 5, rl.Pending())
}

// TestRateLimiter_BlocksWhenFull verifies the sixth request blocks
// until cancelled.
func TestRateLimiter_BlocksWhenFull(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, rl.Wait(ctx))
	require.NoError(t, rl.Wait(ctx))

	err := rl.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestRateLimiter_WindowSlides verifies slots free up as stamps age out.
func TestRateLimiter_WindowSlides(t *testing.T) {
	rl := NewRateLimiter(1, 30*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, rl.Wait(ctx))
	start := time.Now()
	require.NoError(t, rl.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

// TestCSVSource_ParseAndFilter round-trips a CSV file through the
// source and checks range filtering.
func TestCSVSource_ParseAndFilter(t *testing.T) {
	dir := t.TempDir()
	content := "date,open,high,low,close,volume\n" +
		"2023-01-02,100,102,99,101,1000000\n" +
		"2023-01-03,101,103,100,102,1100000\n" +
		"2023-01-04,102,104,101,103,1200000\n" +
		"not-a-date,1,1,1,1,1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AAPL.csv"), []byte(content), 0644))

	src := NewCSVSource(dir)
	bars, err := src.Fetch(context.Background(),
		"AAPL",
		time.Date(2023, time.January, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2023, time.January, 4, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 102.0, bars[0].Close)
	assert.Equal(t, "AAPL", bars[0].Symbol)
}

// TestCSVSource_CacheHit verifies the second fetch is served from the
// cache.
func TestCSVSource_CacheHit(t *testing.T) {
	dir := t.TempDir()
	content := "date,open,high,low,close,volume\n2023-01-02,100,102,99,101,1000000\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MSFT.csv"), []byte(content), 0644))

	src := NewCSVSource(dir)
	start := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	_, err := src.Fetch(context.Background(), "MSFT", start, end)
	require.NoError(t, err)
	_, err = src.Fetch(context.Background(), "MSFT", start, end)
	require.NoError(t, err)

	hits, misses := src.CacheStats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

// TestCSVSource_MissingFile maps a missing file to ErrDataUnavailable.
func TestCSVSource_MissingFile(t *testing.T) {
	src := NewCSVSource(t.TempDir())
	_, err := src.Fetch(context.Background(), "NOPE", time.Now().AddDate(-1, 0, 0), time.Now())
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

// TestFetcher_FallbackChain verifies the second source serves a symbol
// the first cannot.
func TestFetcher_FallbackChain(t *testing.T) {
	primary := &fakeSource{name: "primary", err: fmt.Errorf("down: %w", ErrDataUnavailable)}
	secondary := &fakeSource{name: "secondary", bars: fakeBars(5)}
	f := newTestFetcher(primary, secondary)

	bars, source, err := f.Get(context.Background(), "AAPL", time.Now().AddDate(0, -1, 0), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "secondary", source)
	assert.Len(t, bars, 5)
	assert.Positive(t, primary.calls)
}

// TestFetcher_RetriesOnRateLimit verifies rate-limit errors are retried
// and other errors are not.
func TestFetcher_RetriesOnRateLimit(t *testing.T) {
	throttled := &fakeSource{name: "throttled", err: fmt.Errorf("429: %w", ErrRateLimited)}
	f := newTestFetcher(throttled)

	_, _, err := f.Get(context.Background(), "AAPL", time.Now().AddDate(0, -1, 0), time.Now())
	require.Error(t, err)
	assert.Equal(t, 2, throttled.calls, "rate-limited source retried to the attempt cap")

	broken := &fakeSource{name: "broken", err: errors.New("parse failure")}
	f = newTestFetcher(broken)
	_, _, err = f.Get(context.Background(), "AAPL", time.Now().AddDate(0, -1, 0), time.Now())
	require.Error(t, err)
	assert.Equal(t, 1, broken.calls, "non-retryable error tried once")
}

// TestFetcher_GetManyIsolatesFailures verifies one symbol's failure
// does not abort the batch.
func TestFetcher_GetManyIsolatesFailures(t *testing.T) {
	src := &selectiveSource{good: map[string][]types.Bar{
		"AAPL": fakeBars(3),
		"MSFT": fakeBars(4),
	}}
	f := newTestFetcher(src)

	data, errs := f.GetMany(context.Background(), []string{"AAPL", "FAIL", "MSFT"},
		time.Now().AddDate(0, -1, 0), time.Now())

	assert.Len(t, data, 2)
	assert.Contains(t, data, "AAPL")
	assert.Contains(t, data, "MSFT")
	require.Len(t, errs, 1)
	assert.Contains(t, errs, "FAIL")
}

// selectiveSource succeeds only for configured symbols.
type selectiveSource struct {
	good map[string][]types.Bar
}

func (s *selectiveSource) Name() string { return "selective" }

func (s *selectiveSource) Fetch(_ context.Context, symbol string, _, _ time.Time) ([]types.Bar, error) {
	bars, ok := s.good[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, ErrDataUnavailable)
	}
	out := make([]types.Bar, len(bars))
	for i, b := range bars {
		b.Symbol = symbol
		out[i] = b
	}
	return out, nil
}
