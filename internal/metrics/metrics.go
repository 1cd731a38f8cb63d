package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oshokin/jobctl/internal/domain/job"
)

const namespace = "jobctl"

// Metrics groups the collectors recorded by clients and the sandbox.
type Metrics struct {
	registry *prometheus.Registry

	// UpdateOutcomes counts terminal update and cancel outcomes by code.
	UpdateOutcomes *prometheus.CounterVec
	// UpdateDuration observes the wall time of whole update cycles.
	UpdateDuration prometheus.Histogram
	// FailedShards counts shards reported as failed by the rollout stepper.
	FailedShards prometheus.Counter
	// RemoteCalls counts scheduler calls by method and response code.
	RemoteCalls *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		UpdateOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_outcomes_total",
			Help:      "Terminal outcomes of job updates and cancellations.",
		}, []string{"operation", "code"}),
		UpdateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_duration_seconds",
			Help:      "Wall time of complete update cycles.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		FailedShards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_failed_shards_total",
			Help:      "Shards the rollout stepper could not update.",
		}),
		RemoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_calls_total",
			Help:      "Scheduler calls by method and response code.",
		}, []string{"method", "code"}),
	}

	m.registry.MustRegister(m.UpdateOutcomes, m.UpdateDuration, m.FailedShards, m.RemoteCalls)

	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveOutcome records a terminal outcome of operation.
func (m *Metrics) ObserveOutcome(operation string, outcome job.Outcome) {
	if m == nil {
		return
	}

	m.UpdateOutcomes.WithLabelValues(operation, string(outcome.Code)).Inc()
}

// ObserveUpdate records the duration and failed shard count of an update cycle.
func (m *Metrics) ObserveUpdate(elapsed time.Duration, failed int) {
	if m == nil {
		return
	}

	m.UpdateDuration.Observe(elapsed.Seconds())
	m.FailedShards.Add(float64(failed))
}

// ObserveCall records one scheduler call. A nil response counts as a transport error.
func (m *Metrics) ObserveCall(method string, resp *job.Response) {
	if m == nil {
		return
	}

	code := "TRANSPORT_ERROR"
	if resp != nil {
		code = string(resp.Code)
	}

	m.RemoteCalls.WithLabelValues(method, code).Inc()
}

// WriteTextfile writes every collector to path in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}

	return nil
}
