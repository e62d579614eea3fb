package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric the dispatcher exposes (§4.J).
type Metrics struct {
	// Task metrics
	TasksTotal        *prometheus.CounterVec
	TasksQueued       prometheus.Gauge
	TasksExecuting    prometheus.Gauge
	TaskDuration      prometheus.Histogram

	// Transfer metrics
	ChunksSentTotal         prometheus.Counter
	ChunksAckedTotal        *prometheus.CounterVec
	TransfersActive         prometheus.Gauge
	TransferDuration        prometheus.Histogram

	// Session metrics
	SessionsConnectedTotal *prometheus.CounterVec
	SessionsActive         prometheus.Gauge
	SessionsZombied        prometheus.Counter
	SessionsDespawned      prometheus.Counter

	// Module cache metrics
	CacheEvictionsTotal  prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CacheBytesUsed       prometheus.Gauge

	// Storage metrics
	DatabaseOperationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers every dispatcher metric.
func NewMetrics() *Metrics {
	return &Metrics{
		TasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_tasks_total",
				Help: "Total tasks reaching a terminal phase",
			},
			[]string{"phase"},
		),
		TasksQueued: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispatch_tasks_queued",
				Help: "Tasks currently Queued",
			},
		),
		TasksExecuting: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispatch_tasks_executing",
				Help: "Tasks currently Executing on a device",
			},
		),
		TaskDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dispatch_task_duration_seconds",
				Help:    "Time from task submission to a terminal phase",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),

		ChunksSentTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dispatch_chunks_sent_total",
				Help: "Total module chunks enqueued by the distributor",
			},
		),
		ChunksAckedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_chunks_acked_total",
				Help: "Chunk acknowledgements received",
			},
			[]string{"result"},
		),
		TransfersActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispatch_transfers_active",
				Help: "Transfers currently Requested or Transferring",
			},
		),
		TransferDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dispatch_transfer_duration_seconds",
				Help:    "Time from a transfer's first chunk to an all-acked bitset",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),

		SessionsConnectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_sessions_connected_total",
				Help: "Worker session accept attempts",
			},
			[]string{"result"},
		),
		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispatch_sessions_active",
				Help: "Sessions currently Connected or Occupied",
			},
		),
		SessionsZombied: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dispatch_sessions_zombied_total",
				Help: "Sessions that crossed the heartbeat timeout",
			},
		),
		SessionsDespawned: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dispatch_sessions_despawned_total",
				Help: "Zombie sessions despawned after exhausting retries",
			},
		),

		CacheEvictionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dispatch_worker_cache_evictions_total",
				Help: "Module cache entries evicted by the frequency-squared/size score",
			},
		),
		CacheHitsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dispatch_worker_cache_hits_total",
				Help: "ServerTask dispatches resolved from the worker's local cache",
			},
		),
		CacheMissesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dispatch_worker_cache_misses_total",
				Help: "ServerTask dispatches requiring a module transfer",
			},
		),
		CacheBytesUsed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispatch_worker_cache_bytes_used",
				Help: "Bytes currently resident in the worker's module cache",
			},
		),

		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_database_operations_total",
				Help: "Module store / task history operation count",
			},
			[]string{"store", "operation", "result"},
		),
	}
}

// RecordTaskTerminal increments the terminal-phase counter and observes
// the task's total duration.
func (m *Metrics) RecordTaskTerminal(phase string, durationSeconds float64) {
	m.TasksTotal.WithLabelValues(phase).Inc()
	m.TaskDuration.Observe(durationSeconds)
}

// RecordChunkSent increments the sent-chunk counter.
func (m *Metrics) RecordChunkSent() {
	m.ChunksSentTotal.Inc()
}

// RecordChunkAck increments the acked-chunk counter, labeled by outcome.
func (m *Metrics) RecordChunkAck(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.ChunksAckedTotal.WithLabelValues(result).Inc()
}

// RecordSessionAccept increments the session-accept counter.
func (m *Metrics) RecordSessionAccept(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.SessionsConnectedTotal.WithLabelValues(result).Inc()
}

// RecordSessionZombied increments the zombie counter.
func (m *Metrics) RecordSessionZombied() {
	m.SessionsZombied.Inc()
}

// RecordSessionDespawned increments the despawn counter.
func (m *Metrics) RecordSessionDespawned() {
	m.SessionsDespawned.Inc()
}

// RecordCacheEviction increments the cache eviction counter.
func (m *Metrics) RecordCacheEviction() {
	m.CacheEvictionsTotal.Inc()
}

// RecordCacheLookup increments the hit or miss counter.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
