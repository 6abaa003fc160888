// Package health exposes Prometheus instrumentation for the secret
// lifecycle: seal state, readiness polling, unseal outcomes, and rotation
// activity, plus the optional HTTP server the supervisor runs to serve them.
package health

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Unseal metrics
	sealStateGauge      prometheus.Gauge
	readinessPollsTotal prometheus.Counter
	unsealOutcomeTotal  *prometheus.CounterVec

	// Rotation metrics
	rotationStartedTotal   *prometheus.CounterVec
	rotationCompletedTotal *prometheus.CounterVec
	rotationDuration       *prometheus.HistogramVec

	// Registration guard
	metricsOnce       sync.Once
	metricsRegistered bool
)

// Recorder provides methods to record lifecycle metrics. All methods are
// no-ops until InitMetrics has run, so library code can record
// unconditionally and let configuration decide whether anything is exported.
type Recorder struct{}

// NewRecorder creates a Recorder. Metrics must be initialized separately
// via InitMetrics when the metrics endpoint is enabled.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// InitMetrics registers all Prometheus metrics with the default registry.
// Call once at startup when metrics are enabled.
func InitMetrics() {
	metricsOnce.Do(func() {
		sealStateGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vaultops_store_sealed",
				Help: "Whether the supervised secret store is sealed (1=sealed, 0=unsealed)",
			},
		)

		readinessPollsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vaultops_readiness_polls_total",
				Help: "Total number of readiness probe attempts against the store",
			},
		)

		unsealOutcomeTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultops_unseal_outcome_total",
				Help: "Total number of unseal sequences by outcome",
			},
			[]string{"outcome"},
		)

		rotationStartedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultops_rotation_started_total",
				Help: "Total number of credential rotations started",
			},
			[]string{"service"},
		)

		rotationCompletedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultops_rotation_completed_total",
				Help: "Total number of credential rotations completed",
			},
			[]string{"service", "status"},
		)

		rotationDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vaultops_rotation_duration_seconds",
				Help:    "Duration of credential rotation operations in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"service"},
		)

		metricsRegistered = true
	})
}

// RecordSealState records the store's current seal state.
func (r *Recorder) RecordSealState(sealed bool) {
	if !metricsRegistered || sealStateGauge == nil {
		return
	}
	value := 0.0
	if sealed {
		value = 1.0
	}
	sealStateGauge.Set(value)
}

// RecordReadinessPoll records one readiness probe attempt.
func (r *Recorder) RecordReadinessPoll() {
	if !metricsRegistered || readinessPollsTotal == nil {
		return
	}
	readinessPollsTotal.Inc()
}

// Label values for the unseal outcome counter.
const (
	OutcomeUnsealed        = "unsealed"
	OutcomeAlreadyUnsealed = "already_unsealed"
	OutcomeUninitialized   = "uninitialized"
	OutcomeMissingMaterial = "missing_material"
	OutcomeThresholdNotMet = "threshold_not_met"
	OutcomeFailed          = "failed"
)

// RecordUnsealOutcome records the conclusion of one unseal sequence.
func (r *Recorder) RecordUnsealOutcome(outcome string) {
	if !metricsRegistered || unsealOutcomeTotal == nil {
		return
	}
	unsealOutcomeTotal.WithLabelValues(outcome).Inc()
}

// RecordRotationStarted records a rotation start event for a service.
func (r *Recorder) RecordRotationStarted(service string) {
	if !metricsRegistered || rotationStartedTotal == nil {
		return
	}
	rotationStartedTotal.WithLabelValues(service).Inc()
}

// RecordRotationCompleted records a rotation completion event.
func (r *Recorder) RecordRotationCompleted(service, status string, durationSeconds float64) {
	if !metricsRegistered {
		return
	}

	if rotationCompletedTotal != nil {
		rotationCompletedTotal.WithLabelValues(service, status).Inc()
	}

	if rotationDuration != nil {
		rotationDuration.WithLabelValues(service).Observe(durationSeconds)
	}
}

// GetSealStateGauge returns the seal state gauge for testing.
func GetSealStateGauge() prometheus.Gauge {
	return sealStateGauge
}

// GetReadinessPollsTotal returns the readiness poll counter for testing.
func GetReadinessPollsTotal() prometheus.Counter {
	return readinessPollsTotal
}

// GetUnsealOutcomeTotal returns the unseal outcome counter for testing.
func GetUnsealOutcomeTotal() *prometheus.CounterVec {
	return unsealOutcomeTotal
}

// GetRotationStartedTotal returns the rotation started counter for testing.
func GetRotationStartedTotal() *prometheus.CounterVec {
	return rotationStartedTotal
}

// GetRotationCompletedTotal returns the rotation completed counter for testing.
func GetRotationCompletedTotal() *prometheus.CounterVec {
	return rotationCompletedTotal
}

// GetRotationDuration returns the rotation duration histogram for testing.
func GetRotationDuration() *prometheus.HistogramVec {
	return rotationDuration
}

// IsMetricsRegistered returns whether metrics have been initialized.
func IsMetricsRegistered() bool {
	return metricsRegistered
}
