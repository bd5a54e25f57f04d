package engine

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"escrowline/internal/domain"
)

// Metrics holds the engine's prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	retries    *prometheus.CounterVec
	released   *prometheus.CounterVec
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// DefaultMetrics registers the engine collectors with the global registry once.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrowline",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Engine operations by outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "escrowline",
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of engine operations including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrowline",
			Subsystem: "engine",
			Name:      "tx_retries_total",
			Help:      "Transaction attempts repeated after a store conflict.",
		}, []string{"op"}),
		released: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrowline",
			Name:      "escrow_released_cents_total",
			Help:      "Gross escrow released to freelancers, in minor units.",
		}, []string{"currency"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.duration, m.retries, m.released)
	}
	return m
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	}
	return "error"
}

func (m *Metrics) observe(op string, err error, retries int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
	if retries > 0 {
		m.retries.WithLabelValues(op).Add(float64(retries))
	}
}

func (m *Metrics) recordRelease(currency string, gross int64) {
	if m == nil {
		return
	}
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if cur == "" {
		cur = "UNKNOWN"
	}
	m.released.WithLabelValues(cur).Add(float64(gross))
}
