// Package metrics provides Prometheus metrics for the configurator.
//
// # Overview
//
// The package exposes pre-registered collectors for the HTTP facade, the
// configuration commit protocol, and store operations. All collectors are
// registered with the default registry via promauto; the facade serves them
// on /metrics.
//
// # Basic Usage
//
//	// Count an HTTP request
//	metrics.HTTPRequests.WithLabelValues("GET", "/datasources", "200").Inc()
//
//	// Time a store operation
//	timer := metrics.NewTimer()
//	id, err := store.AddConfig(ctx, doc, comment)
//	metrics.StoreOperationDuration.WithLabelValues("add_config").Observe(timer.Stop().Seconds())
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts facade requests.
	// Labels: method, path, status (numeric HTTP status).
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchforge_http_requests_total",
			Help: "Total number of HTTP requests handled by the facade",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks facade request latency in seconds.
	// Labels: method, path.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matchforge_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// SnapshotsCreated counts configuration snapshots written to the store,
	// including candidates that later failed validation.
	SnapshotsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matchforge_snapshots_created_total",
			Help: "Total number of configuration snapshots added to the store",
		},
	)

	// ValidationFailures counts candidate snapshots rejected by the commit
	// protocol. Labels: stage (initialize/search).
	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchforge_validation_failures_total",
			Help: "Total number of candidate configurations that failed validation",
		},
		[]string{"stage"},
	)

	// DataSourcesAdded counts data source codes registered through the
	// facade.
	DataSourcesAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matchforge_datasources_added_total",
			Help: "Total number of data sources registered",
		},
	)

	// StoreOperationDuration tracks configuration store call latency in
	// seconds. Labels: operation (get_config/add_config/set_default/...).
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matchforge_store_operation_duration_seconds",
			Help:    "Configuration store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// ActiveConfigID reports the configuration ID the engine currently
	// runs against.
	ActiveConfigID = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "matchforge_active_config_id",
			Help: "Configuration ID the default pointer names",
		},
	)
)

// Timer measures one operation's duration. It captures the start time on
// creation and calculates elapsed time on Stop.
type Timer struct {
	start time.Time
}

// NewTimer creates a timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It can be called more
// than once; each call returns the total elapsed time.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
