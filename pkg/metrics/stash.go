package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StashMetrics provides observability for the stash protocol adapter.
//
// Implementations can collect metrics about protocol requests, connection
// lifecycle, transfer throughput, lock-table pressure, and overwrite
// versioning. This interface is optional - if not provided to the adapter,
// a no-op implementation is used with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics := metrics.NewStashMetrics()
//	adapter := stash.New(config, metrics)
//
//	// Without metrics (no-op)
//	adapter := stash.New(config, nil)
type StashMetrics interface {
	// RecordRequest records a completed protocol request with its verb,
	// duration, and outcome.
	//
	// Parameters:
	//   - verb: Protocol verb ("WRITE", "GET", "RM", "STOP")
	//   - duration: Time taken to process the request
	//   - err: Error if request failed, nil if successful
	RecordRequest(verb string, duration time.Duration, err error)

	// RecordRequestStart increments the in-flight request counter.
	// Should be called when starting to process a request.
	//
	// Parameters:
	//   - verb: Protocol verb
	RecordRequestStart(verb string)

	// RecordRequestEnd decrements the in-flight request counter.
	// Should be called when request processing completes.
	//
	// Parameters:
	//   - verb: Protocol verb
	RecordRequestEnd(verb string)

	// RecordBytesTransferred records payload bytes moved during data phases.
	//
	// Parameters:
	//   - direction: "upload" (client to server) or "download" (server to client)
	//   - bytes: Number of bytes transferred
	RecordBytesTransferred(direction string, bytes int64)

	// RecordVersionCreated increments the overwrite-backup counter.
	// Called each time an existing file is renamed to a .vN backup.
	RecordVersionCreated()

	// SetLockedPaths updates the current number of paths held in the
	// lock table.
	//
	// Parameters:
	//   - count: Current number of locked paths
	SetLockedPaths(count int)

	// SetActiveConnections updates the current connection count.
	//
	// Parameters:
	//   - count: Current number of active connections
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the total accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the total closed connections counter.
	RecordConnectionClosed()
}

// stashMetrics is the Prometheus implementation of StashMetrics.
type stashMetrics struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	requestsInFlight    *prometheus.GaugeVec
	bytesTransferred    *prometheus.CounterVec
	versionsCreated     prometheus.Counter
	lockedPaths         prometheus.Gauge
	activeConnections   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter
}

// NewStashMetrics creates a new Prometheus-backed StashMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry
// not called).
func NewStashMetrics() StashMetrics {
	if !IsEnabled() {
		return &noopStashMetrics{}
	}

	reg := GetRegistry()

	return &stashMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "stashd_requests_total",
				Help: "Total number of protocol requests by verb and status",
			},
			[]string{"verb", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "stashd_request_duration_seconds",
				Help: "Duration of protocol requests in seconds",
				Buckets: []float64{
					0.001, // 1ms
					0.005, // 5ms
					0.01,  // 10ms
					0.025, // 25ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.25,  // 250ms
					0.5,   // 500ms
					1.0,   // 1s
					2.5,   // 2.5s
					5.0,   // 5s
					10.0,  // 10s
				},
			},
			[]string{"verb"},
		),
		requestsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stashd_requests_in_flight",
				Help: "Current number of protocol requests being processed",
			},
			[]string{"verb"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "stashd_bytes_transferred_total",
				Help: "Total payload bytes moved during data phases",
			},
			[]string{"direction"}, // upload or download
		),
		versionsCreated: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "stashd_version_backups_total",
				Help: "Total number of overwrite version backups created",
			},
		),
		lockedPaths: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "stashd_locked_paths",
				Help: "Current number of paths held in the lock table",
			},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "stashd_active_connections",
				Help: "Current number of active client connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "stashd_connections_accepted_total",
				Help: "Total number of client connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "stashd_connections_closed_total",
				Help: "Total number of client connections closed",
			},
		),
	}
}

func (m *stashMetrics) RecordRequest(verb string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.requestsTotal.WithLabelValues(verb, status).Inc()
	m.requestDuration.WithLabelValues(verb).Observe(duration.Seconds())
}

func (m *stashMetrics) RecordRequestStart(verb string) {
	m.requestsInFlight.WithLabelValues(verb).Inc()
}

func (m *stashMetrics) RecordRequestEnd(verb string) {
	m.requestsInFlight.WithLabelValues(verb).Dec()
}

func (m *stashMetrics) RecordBytesTransferred(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *stashMetrics) RecordVersionCreated() {
	m.versionsCreated.Inc()
}

func (m *stashMetrics) SetLockedPaths(count int) {
	m.lockedPaths.Set(float64(count))
}

func (m *stashMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *stashMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *stashMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

// noopStashMetrics is a no-op implementation of StashMetrics with zero overhead.
type noopStashMetrics struct{}

func (noopStashMetrics) RecordRequest(verb string, duration time.Duration, err error) {}
func (noopStashMetrics) RecordRequestStart(verb string)                               {}
func (noopStashMetrics) RecordRequestEnd(verb string)                                 {}
func (noopStashMetrics) RecordBytesTransferred(direction string, bytes int64)         {}
func (noopStashMetrics) RecordVersionCreated()                                        {}
func (noopStashMetrics) SetLockedPaths(count int)                                     {}
func (noopStashMetrics) SetActiveConnections(count int32)                             {}
func (noopStashMetrics) RecordConnectionAccepted()                                    {}
func (noopStashMetrics) RecordConnectionClosed()                                      {}
