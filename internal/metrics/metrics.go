// Package metrics provides Prometheus metrics for the loader.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the loader.
type Metrics struct {
	// Ingestion metrics
	FilesProcessed    *prometheus.CounterVec
	RowsWritten       *prometheus.CounterVec
	DuplicatesRemoved *prometheus.CounterVec

	// Run metrics
	Runs        *prometheus.CounterVec
	LastRunUnix prometheus.Gauge

	// Timing metrics
	FolderLoadDuration *prometheus.HistogramVec
	PublishDuration    prometheus.Histogram

	// Publish metrics
	PublishRetries prometheus.Counter
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "wms_loader"
	}

	m := &Metrics{
		FilesProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_processed_total",
				Help:      "Total number of source files processed",
			},
			[]string{"table", "result"},
		),
		RowsWritten: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_written_total",
				Help:      "Total number of rows written to staging tables",
			},
			[]string{"table"},
		),
		DuplicatesRemoved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "duplicates_removed_total",
				Help:      "Total number of duplicate rows removed before write",
			},
			[]string{"table"},
		),
		Runs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of load runs by outcome",
			},
			[]string{"status"},
		),
		LastRunUnix: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix timestamp of the last completed run",
			},
		),
		FolderLoadDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "folder_load_duration_seconds",
				Help:      "Time to read, reconcile and write one folder",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
			},
			[]string{"table"},
		),
		PublishDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "publish_duration_seconds",
				Help:      "Time to copy and swap the published database",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
		),
		PublishRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_retries_total",
				Help:      "Total number of publish attempts retried due to a locked destination",
			},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncFilesProcessed increments the processed-files counter for a table.
func (m *Metrics) IncFilesProcessed(table, result string) {
	m.FilesProcessed.WithLabelValues(table, result).Inc()
}

// AddRowsWritten adds to the written-rows counter for a table.
func (m *Metrics) AddRowsWritten(table string, rows float64) {
	m.RowsWritten.WithLabelValues(table).Add(rows)
}

// AddDuplicatesRemoved adds to the removed-duplicates counter for a table.
func (m *Metrics) AddDuplicatesRemoved(table string, rows float64) {
	m.DuplicatesRemoved.WithLabelValues(table).Add(rows)
}

// IncRuns increments the run counter for an outcome.
func (m *Metrics) IncRuns(status string) {
	m.Runs.WithLabelValues(status).Inc()
}

// ObserveFolderLoadDuration records the load time for one folder.
func (m *Metrics) ObserveFolderLoadDuration(table string, seconds float64) {
	m.FolderLoadDuration.WithLabelValues(table).Observe(seconds)
}

// ObservePublishDuration records the publish swap time.
func (m *Metrics) ObservePublishDuration(seconds float64) {
	m.PublishDuration.Observe(seconds)
}
