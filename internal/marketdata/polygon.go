package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ducminhle1904/equity-backtest/internal/monitoring"
	"github.com/ducminhle1904/equity-backtest/pkg/types"
)

// PolygonSource fetches adjusted daily aggregates from the Polygon.io
// v2 aggs endpoint. All requests pass through the shared rate limiter
// (starter plans allow 5 requests per minute).
type PolygonSource struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *RateLimiter
}

// NewPolygonSource builds a source against baseURL with the given key and
// shared limiter.
func NewPolygonSource(apiKey, baseURL string, limiter *RateLimiter) *PolygonSource {
	return &PolygonSource{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
	}
}

func (s *PolygonSource) Name() string { return "polygon" }

type polygonAgg struct {
	Timestamp int64   `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

type polygonAggsResponse struct {
	Status  string       `json:"status"`
	Error   string       `json:"error"`
	Results []polygonAgg `json:"results"`
}

// Fetch returns adjusted daily bars for symbol in [start, end].
func (s *PolygonSource) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("polygon: %w: no API key configured", ErrDataUnavailable)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/day/%s/%s",
		s.baseURL, url.PathEscape(symbol),
		start.Format("2006-01-02"), end.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("polygon: build request: %w", err)
	}
	q := req.URL.Query()
	q.Set("adjusted", "true")
	q.Set("sort", "asc")
	q.Set("limit", "50000")
	q.Set("apiKey", s.apiKey)
	req.URL.RawQuery = q.Encode()

	resp, err := s.client.Do(req)
	if err != nil {
		monitoring.RecordFetch(s.Name(), "error")
		return nil, fmt.Errorf("polygon: request %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		monitoring.RecordFetch(s.Name(), "throttled")
		return nil, fmt.Errorf("polygon: %s: %w", symbol, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		monitoring.RecordFetch(s.Name(), "error")
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("polygon: %s: unexpected status %d: %s", symbol, resp.StatusCode, body)
	}

	var payload polygonAggsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		monitoring.RecordFetch(s.Name(), "error")
		return nil, fmt.Errorf("polygon: decode %s: %w", symbol, err)
	}

	if payload.Status != "OK" && payload.Status != "DELAYED" {
		monitoring.RecordFetch(s.Name(), "error")
		return nil, fmt.Errorf("polygon: %s: API status %q: %s", symbol, payload.Status, payload.Error)
	}
	if len(payload.Results) == 0 {
		monitoring.RecordFetch(s.Name(), "empty")
		return nil, fmt.Errorf("polygon: %s: %w", symbol, ErrDataUnavailable)
	}

	bars := make([]types.Bar, 0, len(payload.Results))
	for _, agg := range payload.Results {
		bar := types.Bar{
			Symbol: symbol,
			Date:   time.UnixMilli(agg.Timestamp).UTC().Truncate(24 * time.Hour),
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			Volume: agg.Volume,
		}
		if err := bar.Validate(); err != nil {
			continue // drop malformed rows rather than failing the symbol
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		monitoring.RecordFetch(s.Name(), "empty")
		return nil, fmt.Errorf("polygon: %s: %w", symbol, ErrDataUnavailable)
	}

	monitoring.RecordFetch(s.Name(), "ok")
	return bars, nil
}
