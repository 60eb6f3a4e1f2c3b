package identify

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Veraticus/collectorstream/internal/common"
)

// Attempt outcomes.
const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// Chain run outcomes.
const (
	runAccepted  = "accepted"
	runExhausted = "exhausted"
	runCached    = "cached"
	runCanceled  = "canceled"
)

// Metrics contains Prometheus metrics for the identification chain. A nil
// Metrics records nothing.
type Metrics struct {
	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
}

// NewMetrics creates and registers chain metrics.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardscan_identify_attempts_total",
				Help: "Total number of identification provider attempts",
			},
			[]string{"provider", "outcome"}, // outcome: success or a provider error kind
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "cardscan_identify_attempt_duration_seconds",
				Help: "Time taken by identification provider attempts",
				// 100ms to ~100s, past the default call timeout.
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 11),
			},
			[]string{"provider"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardscan_identify_runs_total",
				Help: "Total number of identification chain runs",
			},
			[]string{"outcome"}, // accepted, exhausted, cached, canceled
		),
	}
	if registry != nil {
		if err := registry.Register(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.attemptsTotal.Describe(ch)
	m.attemptDuration.Describe(ch)
	m.runsTotal.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.attemptsTotal.Collect(ch)
	m.attemptDuration.Collect(ch)
	m.runsTotal.Collect(ch)
}

func (m *Metrics) observeAttempt(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(provider, outcome).Inc()
	m.attemptDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) observeRun(outcome string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
}

// outcomeOf labels a failed attempt by provider error kind.
func outcomeOf(err error) string {
	var pe *common.ProviderError
	if errors.As(err, &pe) {
		return string(pe.Kind)
	}
	return outcomeError
}
