// Package metrics provides Prometheus collectors for the snapshot
// exporter: files and rows written, values skipped by the lenient
// materialization path, and clusters dropped for lacking a marker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FilesWritten counts Parquet files successfully written.
	FilesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parqsnap",
		Name:      "files_written_total",
		Help:      "Total number of Parquet cluster files written",
	})

	// RowsWritten counts rows written across all cluster files.
	RowsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parqsnap",
		Name:      "rows_written_total",
		Help:      "Total number of rows written across cluster files",
	})

	// ValuesSkipped counts attribute values omitted from columns due to
	// reflection failures.
	ValuesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parqsnap",
		Name:      "values_skipped_total",
		Help:      "Total number of attribute values skipped during materialization",
	})

	// ClustersDropped counts clusters discarded for lacking a marker
	// attribute.
	ClustersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parqsnap",
		Name:      "clusters_dropped_total",
		Help:      "Total number of clusters dropped for lacking a marker attribute",
	})

	// ClusterErrors counts clusters that failed with an IO or write error.
	ClusterErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parqsnap",
		Name:      "cluster_errors_total",
		Help:      "Total number of cluster export failures by error type",
	}, []string{"error_type"})

	// ExportDuration observes end-to-end export invocation latency.
	ExportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "parqsnap",
		Name:      "export_duration_seconds",
		Help:      "End-to-end export invocation duration",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)

// Timer measures one export invocation for ExportDuration.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop records the elapsed duration and returns it.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.start)
	ExportDuration.Observe(d.Seconds())
	return d
}
