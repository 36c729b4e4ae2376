package monitoring

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtest_data_fetch_requests_total",
			Help: "Market data fetch attempts by source and outcome",
		},
		[]string{"source", "status"},
	)

	rateLimitWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backtest_rate_limit_wait_seconds",
			Help:    "Time spent blocked on the data-source rate limiter",
			Buckets: prometheus.DefBuckets,
		},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtest_runs_total",
			Help: "Completed backtest runs by strategy and outcome",
		},
		[]string{"strategy", "status"},
	)

	tradesSimulated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtest_trades_simulated_total",
			Help: "Round-trip trades produced by the simulator",
		},
		[]string{"symbol"},
	)

	monteCarloTrials = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backtest_monte_carlo_trials_total",
			Help: "Monte Carlo bootstrap trials executed",
		},
	)

	validationScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backtest_validation_score",
			Help: "Most recent validation score by category",
		},
		[]string{"category"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backtest_run_duration_seconds",
			Help:    "Wall-clock duration of full backtest runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"strategy"},
	)
)

func init() {
	prometheus.MustRegister(
		fetchRequestsTotal,
		rateLimitWaitSeconds,
		runsTotal,
		tradesSimulated,
		monteCarloTrials,
		validationScore,
		runDuration,
	)
}

// RecordFetch counts one data-source request outcome.
func RecordFetch(source, status string) {
	fetchRequestsTotal.WithLabelValues(source, status).Inc()
}

// RecordRateLimitWait observes time spent blocked on the limiter.
func RecordRateLimitWait(d time.Duration) {
	rateLimitWaitSeconds.Observe(d.Seconds())
}

// RecordRun counts one completed run and its duration.
func RecordRun(strategy, status string, d time.Duration) {
	runsTotal.WithLabelValues(strategy, status).Inc()
	runDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// RecordTrade counts one simulated round trip.
func RecordTrade(symbol string) {
	tradesSimulated.WithLabelValues(symbol).Inc()
}

// RecordMonteCarloTrials adds completed bootstrap trials.
func RecordMonteCarloTrials(n int) {
	monteCarloTrials.Add(float64(n))
}

// SetValidationScore publishes the latest category score.
func SetValidationScore(category string, score float64) {
	validationScore.WithLabelValues(category).Set(score)
}

// StartMetricsServer exposes /metrics on the given port. Blocking.
func StartMetricsServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), nil)
}
