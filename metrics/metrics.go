package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WindowKeys tracks the number of distinct keys per flushed window
	WindowKeys = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tqloader_window_keys",
			Help:    "Distinct keys per flushed batch window",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"resolver"},
	)

	// WindowRequests tracks the number of pending requests per flushed window
	WindowRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tqloader_window_requests",
			Help:    "Pending requests per flushed batch window",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"resolver"},
	)

	// WindowDelay tracks how long a window stayed open before flushing
	WindowDelay = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tqloader_window_delay_seconds",
			Help:    "Time between the first registration and the flush of a window",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"resolver"},
	)

	// FetchLatency tracks the latency of bulk fetch calls
	FetchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tqloader_fetch_latency_seconds",
			Help:    "Bulk fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resolver"},
	)

	// FetchErrors counts failed bulk fetches
	FetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tqloader_fetch_errors_total",
			Help: "Total number of failed bulk fetches",
		},
		[]string{"resolver"},
	)

	// ResolveTotal counts resolve outcomes (found, not_found, error, cancelled, invalid)
	ResolveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tqloader_resolve_total",
			Help: "Total number of resolve calls by outcome",
		},
		[]string{"resolver", "outcome"},
	)

	// CurrentDelay reports the current window delay in milliseconds
	CurrentDelay = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tqloader_current_delay_ms",
			Help: "Current batch window delay in milliseconds",
		},
		[]string{"resolver"},
	)

	// ResolvesPerSecond reports the measured resolve throughput
	ResolvesPerSecond = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tqloader_resolves_per_second",
			Help: "Resolved requests per second over the last adjustment interval",
		},
		[]string{"resolver"},
	)

	// DelayAdjustments counts adaptive delay changes by direction
	DelayAdjustments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tqloader_delay_adjustments_total",
			Help: "Total number of adaptive delay adjustments",
		},
		[]string{"resolver", "direction"},
	)

	// DatabaseQueries counts queries sent to the database by replica
	DatabaseQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tqloader_database_queries_total",
			Help: "Total queries sent to database",
		},
		[]string{"replica"},
	)

	once sync.Once
)

// Init registers all metrics with Prometheus
func Init() {
	once.Do(func() {
		prometheus.MustRegister(WindowKeys)
		prometheus.MustRegister(WindowRequests)
		prometheus.MustRegister(WindowDelay)
		prometheus.MustRegister(FetchLatency)
		prometheus.MustRegister(FetchErrors)
		prometheus.MustRegister(ResolveTotal)
		prometheus.MustRegister(CurrentDelay)
		prometheus.MustRegister(ResolvesPerSecond)
		prometheus.MustRegister(DelayAdjustments)
		prometheus.MustRegister(DatabaseQueries)
	})
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
