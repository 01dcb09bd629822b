package redgloom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments filter operations. A nil *Metrics records nothing.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Generations       *prometheus.GaugeVec
}

// NewMetrics registers the filter metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		OperationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "redgloom_operations_total",
				Help: "Total number of bloom filter operations",
			},
			[]string{"operation", "driver", "status"}, // status: success/error
		),
		OperationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "redgloom_operation_duration_seconds",
				Help:    "Duration of bloom filter operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "driver"},
		),
		Generations: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "redgloom_generations",
				Help: "Number of generations of a scaling bloom filter",
			},
			[]string{"key"},
		),
	}
}

func (m *Metrics) observe(op, driver string, start time.Time, err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	m.OperationsTotal.WithLabelValues(op, driver, status).Inc()
	m.OperationDuration.WithLabelValues(op, driver).Observe(time.Since(start).Seconds())
}

func (m *Metrics) setGenerations(key string, n int) {
	if m == nil {
		return
	}

	m.Generations.WithLabelValues(key).Set(float64(n))
}
