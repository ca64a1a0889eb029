// Package metrics exposes the collector's own health and throughput as
// Prometheus metrics, scraped from the admin server's /metrics endpoint.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds every metric the collector publishes.
type Registry struct {
	RecordsAppended   *prometheus.CounterVec // by category
	RecordsDropped    *prometheus.CounterVec // by reason (mode, policy, state)
	ChunksDecoded     prometheus.Counter
	StrayBytesEmitted prometheus.Counter

	RotationsTotal  *prometheus.CounterVec // by trigger; the collector counts every rotation as "rotation"
	EvictionsTotal  prometheus.Counter
	RotationFailure prometheus.Counter
	AppendRetries   prometheus.Counter // ENOSPC retry loop iterations

	ReassemblyBuffers   prometheus.Gauge
	ReassemblyBytes     prometheus.Gauge
	IndexLiveCount      prometheus.Gauge
	IndexLiveBytes      prometheus.Gauge
	CurrentFileSize     prometheus.Gauge
	ConfigReloadsTotal  *prometheus.CounterVec // by status
	QueryRequestsTotal  *prometheus.CounterVec // by op (query, delete), status
	QueryRequestLatency *prometheus.HistogramVec
}

// Get returns the process-wide registry, creating it on first use.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.RecordsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_records_appended_total",
		Help: "Total audit records appended to the archive, by category",
	}, []string{"category"})

	r.RecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_records_dropped_total",
		Help: "Total records dropped before reaching the archive",
	}, []string{"reason"})

	r.ChunksDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_pipe_chunks_decoded_total",
		Help: "Total validated pipe chunks decoded from the producer pipe",
	})

	r.StrayBytesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_pipe_stray_bytes_total",
		Help: "Total bytes treated as non-protocol stray data and emitted verbatim",
	})

	r.RotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_rotations_total",
		Help: "Total file rotations, by trigger",
	}, []string{"trigger"})

	r.EvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_file_evictions_total",
		Help: "Total audit files evicted by the retention pass",
	})

	r.RotationFailure = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_rotation_failures_total",
		Help: "Total rotation attempts that failed to open the next file",
	})

	r.AppendRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_append_retries_total",
		Help: "Total ENOSPC retry iterations while appending a record",
	})

	r.ReassemblyBuffers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audit_reassembly_buffers",
		Help: "Current number of producers with an outstanding partial record",
	})

	r.ReassemblyBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audit_reassembly_bytes",
		Help: "Current bytes held across all partial per-producer buffers",
	})

	r.IndexLiveCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audit_index_live_files",
		Help: "Current number of live slots in the index ring",
	})

	r.IndexLiveBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audit_index_live_bytes",
		Help: "Current total bytes across live audit files",
	})

	r.CurrentFileSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audit_current_file_bytes",
		Help: "Current size of the open append target",
	})

	r.ConfigReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_config_reloads_total",
		Help: "Total SIGHUP-triggered config reloads, by status",
	}, []string{"status"})

	r.QueryRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_query_requests_total",
		Help: "Total query/delete requests served, by operation and status",
	}, []string{"op", "status"})

	r.QueryRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "audit_query_request_duration_seconds",
		Help:    "Query/delete request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	return r
}

// RecordQuery records a finished query or delete request.
func (r *Registry) RecordQuery(op string, err error, seconds float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.QueryRequestsTotal.WithLabelValues(op, status).Inc()
	r.QueryRequestLatency.WithLabelValues(op).Observe(seconds)
}

// RecordReload records a SIGHUP-triggered config reload outcome.
func (r *Registry) RecordReload(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.ConfigReloadsTotal.WithLabelValues(status).Inc()
}
