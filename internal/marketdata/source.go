// Package marketdata supplies adjusted daily OHLCV bars for the backtest
// engine. Remote sources share a sliding-window rate limiter; multiple
// sources form an ordered fallback chain so one provider's outage does
// not sink a run.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

// ErrDataUnavailable means a source had no usable bars for the request.
// Per-symbol skips are built on this error; it is never fatal for a
// multi-symbol fetch.
var ErrDataUnavailable = errors.New("market data unavailable")

// ErrRateLimited means the provider throttled the request. Fetch retries
// with backoff before giving up on the symbol.
var ErrRateLimited = errors.New("rate limit exceeded")

// Source fetches adjusted daily bars for one symbol over a date range.
type Source interface {
	Name() string
	Fetch(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error)
}

// FetchResult pairs a symbol with its outcome inside a batch fetch.
type FetchResult struct {
	Symbol string
	Bars   []types.Bar
	Source string
	Err    error
}
