package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Store operations.
const (
	OpCreate = "create"
	OpCommit = "commit"
	OpAbort  = "abort"
	OpOpen   = "open"
	OpRemove = "remove"
	OpHealth = "health"
)

// StoreMetrics tracks backend operations. Like ServerMetrics, a nil
// *StoreMetrics records nothing.
type StoreMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewStoreMetrics creates the store collectors and registers them with reg.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of store operations by backend, operation and status",
		}, []string{"backend", "operation", "status"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of store operations",
			Buckets: []float64{
				0.0001, // 100us - local renames
				0.001,
				0.01,
				0.05,
				0.1,
				0.5, // object store round trips
				1,
				5,
				30, // large s3 uploads on commit
			},
		}, []string{"backend", "operation"}),
		bytesTransferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "bytes_total",
			Help:      "Bytes written to or read from the store",
		}, []string{"backend", "direction"}),
	}

	if reg != nil {
		m.operationsTotal = registerOrReuse(reg, m.operationsTotal).(*prometheus.CounterVec)
		m.operationDuration = registerOrReuse(reg, m.operationDuration).(*prometheus.HistogramVec)
		m.bytesTransferred = registerOrReuse(reg, m.bytesTransferred).(*prometheus.CounterVec)
	}
	return m
}

// ObserveOperation records one store operation.
func (m *StoreMetrics) ObserveOperation(backend, op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(backend, op, status).Inc()
	m.operationDuration.WithLabelValues(backend, op).Observe(d.Seconds())
}

// AddBytesWritten adds staged upload bytes.
func (m *StoreMetrics) AddBytesWritten(backend string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesTransferred.WithLabelValues(backend, "write").Add(float64(n))
}

// AddBytesRead adds bytes read from committed files.
func (m *StoreMetrics) AddBytesRead(backend string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesTransferred.WithLabelValues(backend, "read").Add(float64(n))
}
