package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clubsite",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clubsite",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	datasetLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clubsite",
			Subsystem: "dataset",
			Name:      "loads_total",
			Help:      "Dataset loads by outcome.",
		},
		[]string{"dataset", "outcome"},
	)
	assetResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clubsite",
			Subsystem: "asset",
			Name:      "resolutions_total",
			Help:      "Asset resolutions by winning strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)
	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clubsite",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, datasetLoads, assetResolutions, rateLimited)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordDatasetLoad counts one dataset load; outcome is "ok" or an error class.
func RecordDatasetLoad(dataset, outcome string) {
	RegisterMetrics()
	datasetLoads.WithLabelValues(dataset, outcome).Inc()
}

// RecordAssetResolution counts one asset lookup. strategy is empty on failure.
func RecordAssetResolution(strategy, outcome string) {
	RegisterMetrics()
	if strategy == "" {
		strategy = "none"
	}
	assetResolutions.WithLabelValues(strategy, outcome).Inc()
}

func RecordRateLimited() {
	RegisterMetrics()
	rateLimited.Inc()
}
