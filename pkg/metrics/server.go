// Package metrics exposes Prometheus collectors for the stowd server.
//
// ServerMetrics is nil-safe: every method on a nil *ServerMetrics is a no-op,
// so components take a *ServerMetrics and callers pass nil to disable
// collection entirely.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stowd"

// Connection close reasons.
const (
	CloseEnded    = "ended"
	CloseErrored  = "errored"
	CloseIdle     = "idle"
	CloseShutdown = "shutdown"
)

// ServerMetrics tracks connections, requests and throughput of the event loop.
type ServerMetrics struct {
	connectionsAccepted prometheus.Counter
	connectionsClosed   *prometheus.CounterVec
	connectionsRejected prometheus.Counter
	acceptErrors        prometheus.Counter
	connectionsActive   prometheus.Gauge

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	bytesReceived prometheus.Counter
	bytesSent     prometheus.Counter
	filesIndexed  prometheus.Gauge
}

// NewServerMetrics creates the collectors and registers them with reg. If reg
// is nil the collectors are created but not registered.
//
// On re-registration (server restart within one process), existing
// collectors are reused so metrics keep being exported.
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	m := &ServerMetrics{
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Total number of accepted client connections",
		}),
		connectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_closed_total",
			Help:      "Total number of closed client connections by reason",
		}, []string{"reason"}),
		connectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Connections closed on accept because max_connections was reached",
		}),
		acceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accept_errors_total",
			Help:      "Total number of failed accept calls",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of currently open client connections",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of finished requests by command and status",
		}, []string{"command", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request duration from header to last response byte",
			Buckets: []float64{
				0.0005, // 500us - LIST, DELETE
				0.001,
				0.005,
				0.01,
				0.05,
				0.1,
				0.5,
				1,
				5,
				30, // large transfers
			},
		}, []string{"command"}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "PUT payload bytes received from clients",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "GET and LIST payload bytes sent to clients",
		}),
		filesIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "files_indexed",
			Help:      "Number of files in the directory index",
		}),
	}

	if reg != nil {
		m.connectionsAccepted = registerOrReuse(reg, m.connectionsAccepted).(prometheus.Counter)
		m.connectionsClosed = registerOrReuse(reg, m.connectionsClosed).(*prometheus.CounterVec)
		m.connectionsRejected = registerOrReuse(reg, m.connectionsRejected).(prometheus.Counter)
		m.acceptErrors = registerOrReuse(reg, m.acceptErrors).(prometheus.Counter)
		m.connectionsActive = registerOrReuse(reg, m.connectionsActive).(prometheus.Gauge)
		m.requestsTotal = registerOrReuse(reg, m.requestsTotal).(*prometheus.CounterVec)
		m.requestDuration = registerOrReuse(reg, m.requestDuration).(*prometheus.HistogramVec)
		m.bytesReceived = registerOrReuse(reg, m.bytesReceived).(prometheus.Counter)
		m.bytesSent = registerOrReuse(reg, m.bytesSent).(prometheus.Counter)
		m.filesIndexed = registerOrReuse(reg, m.filesIndexed).(prometheus.Gauge)
	}

	return m
}

// registerOrReuse registers c with reg, returning the already registered
// collector if an equal one exists. Panics on any other registration error.
func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

// RecordConnectionAccepted counts an accepted connection.
func (m *ServerMetrics) RecordConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
}

// RecordConnectionClosed counts a closed connection with its reason.
func (m *ServerMetrics) RecordConnectionClosed(reason string) {
	if m == nil {
		return
	}
	m.connectionsClosed.WithLabelValues(reason).Inc()
}

// RecordConnectionRejected counts a connection refused over max_connections.
func (m *ServerMetrics) RecordConnectionRejected() {
	if m == nil {
		return
	}
	m.connectionsRejected.Inc()
}

// RecordAcceptError counts a failed accept.
func (m *ServerMetrics) RecordAcceptError() {
	if m == nil {
		return
	}
	m.acceptErrors.Inc()
}

// SetActiveConnections sets the open connection gauge.
func (m *ServerMetrics) SetActiveConnections(n int) {
	if m == nil {
		return
	}
	m.connectionsActive.Set(float64(n))
}

// RecordRequest counts one finished request.
func (m *ServerMetrics) RecordRequest(command, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(command, status).Inc()
	m.requestDuration.WithLabelValues(command).Observe(d.Seconds())
}

// AddBytesReceived adds PUT payload bytes.
func (m *ServerMetrics) AddBytesReceived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesReceived.Add(float64(n))
}

// AddBytesSent adds GET or LIST payload bytes.
func (m *ServerMetrics) AddBytesSent(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesSent.Add(float64(n))
}

// SetFilesIndexed sets the directory index size gauge.
func (m *ServerMetrics) SetFilesIndexed(n int) {
	if m == nil {
		return
	}
	m.filesIndexed.Set(float64(n))
}
