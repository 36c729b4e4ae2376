package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

// CSVSource reads daily bars from local files laid out as
// <root>/<SYMBOL>.csv with a "date,open,high,low,close,volume" header.
// Parsed files are cached so walk-forward and Monte Carlo reruns do not
// hit the disk repeatedly.
type CSVSource struct {
	root string

	cacheMu   sync.RWMutex
	cache     map[string][]types.Bar
	hitCount  atomic.Int64
	missCount atomic.Int64
}

// NewCSVSource creates a source rooted at dir.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{
		root:  dir,
		cache: make(map[string][]types.Bar),
	}
}

func (s *CSVSource) Name() string { return "csv" }

// Fetch loads bars for symbol and filters them to [start, end].
func (s *CSVSource) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all, err := s.load(symbol)
	if err != nil {
		return nil, err
	}

	bars := make([]types.Bar, 0, len(all))
	for _, b := range all {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("csv: %s: no bars in range: %w", symbol, ErrDataUnavailable)
	}
	return bars, nil
}

func (s *CSVSource) load(symbol string) ([]types.Bar, error) {
	s.cacheMu.RLock()
	if bars, ok := s.cache[symbol]; ok {
		s.cacheMu.RUnlock()
		s.hitCount.Add(1)
		return bars, nil
	}
	s.cacheMu.RUnlock()

	path := filepath.Join(s.root, strings.ToUpper(symbol)+".csv")
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: %s: %w", symbol, ErrDataUnavailable)
	}
	defer file.Close()

	bars, err := parseBars(symbol, file)
	if err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	s.cache[symbol] = bars
	s.cacheMu.Unlock()
	s.missCount.Add(1)

	return bars, nil
}

func parseBars(symbol string, r io.Reader) ([]types.Bar, error) {
	reader := csv.NewReader(r)

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("csv: %s: read header: %w", symbol, err)
	}

	var bars []types.Bar
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %s: %w", symbol, err)
		}
		if len(record) < 6 {
			continue
		}

		date, err := time.Parse("2006-01-02", record[0])
		if err != nil {
			continue
		}

		fields := make([]float64, 5)
		ok := true
		for i := 0; i < 5; i++ {
			fields[i], err = strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}

		bar := types.Bar{
			Symbol: symbol,
			Date:   date.UTC(),
			Open:   fields[0],
			High:   fields[1],
			Low:    fields[2],
			Close:  fields[3],
			Volume: fields[4],
		}
		if bar.Close <= 0 || bar.Open <= 0 {
			continue
		}
		if err := bar.Validate(); err != nil {
			continue
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("csv: %s: no valid rows: %w", symbol, ErrDataUnavailable)
	}
	return bars, nil
}

// CacheStats reports hit/miss counters for diagnostics.
func (s *CSVSource) CacheStats() (hits, misses int64) {
	return s.hitCount.Load(), s.missCount.Load()
}
