// Package metrics exposes Prometheus collectors for the finder.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapeTasksTotal           *prometheus.CounterVec
	scrapeTaskDurationSeconds  prometheus.Histogram
	cacheLookupsTotal          *prometheus.CounterVec
	activeSessions             prometheus.Gauge
	cachePersistFailuresTotal  prometheus.Counter
	navigationRateDelaySeconds prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapeTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finder_scrape_tasks_total",
				Help: "Total number of scrape tasks finished, labeled by terminal state.",
			},
			[]string{"state"},
		)

		scrapeTaskDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "finder_scrape_task_duration_seconds",
				Help:    "Histogram of scrape task durations.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finder_cache_lookups_total",
				Help: "Total number of cache lookups, labeled by hit or miss.",
			},
			[]string{"result"},
		)

		activeSessions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "finder_active_sessions",
				Help: "Number of browser sessions currently open.",
			},
		)

		cachePersistFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "finder_cache_persist_failures_total",
				Help: "Total number of failed cache persists.",
			},
		)

		navigationRateDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "finder_navigation_rate_delay_seconds",
				Help:    "Histogram of time spent waiting on the navigation rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTask records a finished scrape task.
func ObserveTask(state string, duration time.Duration) {
	Init()
	scrapeTasksTotal.WithLabelValues(state).Inc()
	scrapeTaskDurationSeconds.Observe(duration.Seconds())
}

// ObserveCacheLookup counts a cache hit or miss.
func ObserveCacheLookup(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// IncActiveSessions increments the open sessions gauge.
func IncActiveSessions() {
	Init()
	activeSessions.Inc()
}

// DecActiveSessions decrements the open sessions gauge.
func DecActiveSessions() {
	Init()
	activeSessions.Dec()
}

// ObservePersistFailure counts a failed cache persist.
func ObservePersistFailure() {
	Init()
	cachePersistFailuresTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a navigation rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	navigationRateDelaySeconds.Observe(duration.Seconds())
}
