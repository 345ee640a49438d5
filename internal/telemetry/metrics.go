// Package telemetry provides application-level observability for the Type
// Definition Database.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<TDDB_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds.  It is NOT served by the Gin router and
// is therefore absent from the OpenAPI/Swagger spec.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - saveModule pipeline duration and outcome (committed / rolled back / no-op / dry run)
//   - Lock Manager wait duration and deadlock-guard trips
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /v1/modules/:module)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as module names or version strings.
//
// # Usage
//
// Import the package for side effects so metrics are registered before the HTTP server
// starts listening:
//
//	import _ "github.com/typedefdb/tddb/internal/telemetry"
//
// Or import it directly and use an exported var:
//
//	telemetry.SaveModuleOutcomesTotal.WithLabelValues("committed").Inc()
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /v1/modules/:module),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// saveModule pipeline metrics — recorded by registry.Core.SaveModule around
// the compile → diff → commit sequence.
//
// SaveModuleDuration is a Histogram using the default Prometheus buckets.
// Each observation covers one full saveModule call, including time spent
// waiting on the per-module write lock.
//
// Example PromQL queries:
//   - p99 save latency:    histogram_quantile(0.99, rate(save_module_duration_seconds_bucket[5m]))
//
// SaveModuleOutcomesTotal is a CounterVec with label {outcome} ∈
// {committed, rolled_back, no_change, dry_run}, matching the four terminal
// states of the compile-diff-save pipeline.
var (
	SaveModuleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "save_module_duration_seconds",
			Help:    "Duration of a complete saveModule pipeline call, including lock wait.",
			Buckets: prometheus.DefBuckets,
		},
	)

	SaveModuleOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "save_module_outcomes_total",
			Help: "Total number of saveModule calls, by terminal outcome (committed, rolled_back, no_change, dry_run).",
		},
		[]string{"outcome"},
	)
)

// Lock Manager metrics — recorded by registry.LockManager.
//
// LockWaitDuration is a HistogramVec with label {mode} ∈ {read, write},
// observing how long a caller waited to acquire a per-module lock before
// the deadlock-guard timeout would have fired.
//
// DeadlocksDetectedTotal is a plain Counter incremented each time the
// deadlock-guard times out a lock acquisition (ErrDeadlockSuspected). A
// nonzero rate here means callers are holding read locks across blocking
// operations longer than registry.max_deadlock_wait_ms tolerates.
var (
	LockWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lock_wait_duration_seconds",
			Help:    "Time spent waiting to acquire a per-module lock, by lock mode.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	DeadlocksDetectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deadlocks_detected_total",
			Help: "Total number of lock acquisitions aborted by the deadlock guard.",
		},
	)
)

// ReadPathDuration is a HistogramVec with label {operation}, covering the
// read paths in registry/reads.go (resolveTypeDefId, getModuleInfo,
// getJSONSchemaDocument, findModuleVersionsByMD5, listModules, and friends).
// Each observation spans the whole call, including any wait for the
// per-module read lock; listModules takes no lock.
var ReadPathDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "read_path_duration_seconds",
		Help:    "Duration of registry read-path operations, by operation name.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <TDDB_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// PendingRegistrationRequests is a Gauge sampled periodically by
// registry.Core.MonitorPendingRegistrations, tracking how many new-module
// registration requests are awaiting an admin decision.
var PendingRegistrationRequests = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "pending_registration_requests",
		Help: "Number of new-module registration requests awaiting admin approval or refusal.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
