package oneshot

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsAcceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oneshot_connections_accepted_total",
			Help: "Total number of accepted connections",
		},
	)

	connectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oneshot_connections_active",
			Help: "Current number of open connections",
		},
	)

	responsesWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oneshot_responses_written_total",
			Help: "Total number of responses written successfully",
		},
	)

	protocolErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oneshot_protocol_errors_total",
			Help: "Total number of connections dropped with unparseable requests",
		},
	)

	writeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oneshot_write_errors_total",
			Help: "Total number of failed response writes",
		},
	)

	connectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oneshot_connection_duration_seconds",
			Help:    "Connection lifetime from accept to close in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// MetricsConfig holds configuration for the Prometheus metrics observer.
type MetricsConfig struct {
	// TrackDuration enables the connection duration histogram. It keeps
	// an accept timestamp per open connection.
	TrackDuration bool
}

// DefaultMetricsConfig returns a MetricsConfig with sensible defaults.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		TrackDuration: true,
	}
}

// Metrics returns an observer that collects Prometheus metrics for
// every connection.
func Metrics() ConnObserver {
	return MetricsWithConfig(DefaultMetricsConfig())
}

// MetricsWithConfig returns a metrics observer with custom configuration.
func MetricsWithConfig(config MetricsConfig) ConnObserver {
	return &metricsObserver{
		trackDuration: config.TrackDuration,
	}
}

type metricsObserver struct {
	trackDuration bool
	started       sync.Map // connection id -> accept time
}

func (m *metricsObserver) ConnAccepted(id int64, _ string) {
	connectionsAcceptedTotal.Inc()
	connectionsActive.Inc()
	if m.trackDuration {
		m.started.Store(id, time.Now())
	}
}

func (m *metricsObserver) ConnHeadersComplete(_ int64) {}

func (m *metricsObserver) ConnResponded(_ int64, err error) {
	if err != nil {
		writeErrorsTotal.Inc()
		return
	}
	responsesWrittenTotal.Inc()
}

func (m *metricsObserver) ConnProtocolError(_ int64, _ error) {
	protocolErrorsTotal.Inc()
}

func (m *metricsObserver) ConnClosed(id int64, _ error) {
	connectionsActive.Dec()
	if !m.trackDuration {
		return
	}
	if started, ok := m.started.LoadAndDelete(id); ok {
		connectionDuration.Observe(time.Since(started.(time.Time)).Seconds())
	}
}
