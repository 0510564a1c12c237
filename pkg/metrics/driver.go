package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DriverMetrics collects per-driver operation metrics.
//
// A nil *DriverMetrics is valid and turns every method into a no-op.
// Driver implementations call ObserveOperation from a deferred closure so
// the duration and error outcome are captured in one place.
type DriverMetrics struct {
	// operations counts driver calls by driver, operation and outcome.
	operations *prometheus.CounterVec

	// operationDuration observes wall time by driver and operation.
	operationDuration *prometheus.HistogramVec

	// bytes counts payload bytes moved by driver and direction.
	bytes *prometheus.CounterVec
}

// NewDriverMetrics creates driver metrics, or nil (no-op) when the global
// registry has not been initialized.
func NewDriverMetrics() *DriverMetrics {
	reg := GetRegistry()
	if reg == nil {
		return nil
	}

	factory := promauto.With(reg)

	return &DriverMetrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corvfs",
			Subsystem: "driver",
			Name:      "operations_total",
			Help:      "Driver calls by driver, operation and outcome",
		}, []string{"driver", "operation", "outcome"}),
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "corvfs",
			Subsystem: "driver",
			Name:      "operation_duration_seconds",
			Help:      "Wall time per driver call",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 12),
		}, []string{"driver", "operation"}),
		bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corvfs",
			Subsystem: "driver",
			Name:      "bytes_total",
			Help:      "Payload bytes moved by driver and direction",
		}, []string{"driver", "direction"}),
	}
}

// ObserveOperation records one driver call.
func (m *DriverMetrics) ObserveOperation(driver, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(driver, operation, outcome).Inc()
	m.operationDuration.WithLabelValues(driver, operation).Observe(duration.Seconds())
}

// AddBytes records payload bytes moved in the given direction ("read" or
// "write").
func (m *DriverMetrics) AddBytes(driver, direction string, n int) {
	if m == nil {
		return
	}
	if n > 0 {
		m.bytes.WithLabelValues(driver, direction).Add(float64(n))
	}
}
