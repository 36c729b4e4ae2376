package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

// Fetcher resolves bar requests against an ordered chain of sources and
// runs multi-symbol fetches with bounded concurrency. A symbol fails only
// after every source has been tried; one symbol's failure never aborts
// the batch.
type Fetcher struct {
	sources    []Source
	batchSize  int
	maxRetries int
	retryDelay time.Duration
	log        *logrus.Entry
}

// FetcherOption tweaks Fetcher construction.
type FetcherOption func(*Fetcher)

// WithBatchSize bounds how many symbols fetch concurrently.
func WithBatchSize(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

// WithRetry configures retry attempts and the base backoff delay for
// rate-limited requests.
func WithRetry(attempts int, baseDelay time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if attempts > 0 {
			f.maxRetries = attempts
		}
		if baseDelay > 0 {
			f.retryDelay = baseDelay
		}
	}
}

// NewFetcher builds a fetcher over the given source chain, tried in order.
func NewFetcher(log *logrus.Entry, sources []Source, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		sources:    sources,
		batchSize:  3,
		maxRetries: 3,
		retryDelay: 2 * time.Second,
		log:        log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get fetches bars for one symbol, walking the source chain until one
// succeeds. Each remote attempt retries with backoff when throttled.
func (f *Fetcher) Get(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, string, error) {
	var lastErr error

	for _, src := range f.sources {
		var bars []types.Bar
		err := retry(ctx, f.maxRetries, f.retryDelay, func() error {
			var fetchErr error
			bars, fetchErr = src.Fetch(ctx, symbol, start, end)
			return fetchErr
		})
		if err == nil {
			return bars, src.Name(), nil
		}

		lastErr = err
		f.log.WithFields(logrus.Fields{
			"symbol": symbol,
			"source": src.Name(),
		}).WithError(err).Warn("source failed, trying next")

		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%s: %w: no sources configured", symbol, ErrDataUnavailable)
	}
	return nil, "", lastErr
}

// GetMany fetches bars for all symbols in batches of batchSize. The
// returned map holds only the symbols that succeeded; failures come back
// separately so the caller can record diagnostics.
func (f *Fetcher) GetMany(ctx context.Context, symbols []string, start, end time.Time) (map[string][]types.Bar, map[string]error) {
	bars := make(map[string][]types.Bar, len(symbols))
	failures := make(map[string]error)
	var mu sync.Mutex

	ordered := append([]string(nil), symbols...)
	sort.Strings(ordered)

	for i := 0; i < len(ordered); i += f.batchSize {
		if ctx.Err() != nil {
			for _, sym := range ordered[i:] {
				failures[sym] = ctx.Err()
			}
			break
		}

		batch := ordered[i:min(i+f.batchSize, len(ordered))]
		var wg sync.WaitGroup
		for _, symbol := range batch {
			wg.Add(1)
			go func(symbol string) {
				defer wg.Done()
				symbolBars, source, err := f.Get(ctx, symbol, start, end)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures[symbol] = err
					return
				}
				bars[symbol] = symbolBars
				f.log.WithFields(logrus.Fields{
					"symbol": symbol,
					"source": source,
					"bars":   len(symbolBars),
				}).Info("fetched history")
			}(symbol)
		}
		wg.Wait()
	}

	return bars, failures
}
