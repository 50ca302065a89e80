// Package metrics exposes container resolution statistics as Prometheus metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Resolution outcomes recorded by the resolutions counter.
const (
	OutcomeResolved  = "resolved"
	OutcomeAbsent    = "absent"
	OutcomeNotFound  = "not_found"
	OutcomeAmbiguous = "ambiguous"
	OutcomeFailed    = "failed"
)

// Collector holds the Prometheus metrics of a container hierarchy.
// A nil *Collector is valid and records nothing.
type Collector struct {
	Resolutions      *prometheus.CounterVec
	Constructions    *prometheus.CounterVec
	Cycles           prometheus.Counter
	ValidationErrors prometheus.Counter
	ResolveDuration  prometheus.Histogram
}

// NewCollector creates the metrics under namespace and registers them with reg.
// A nil reg leaves them unregistered.
func NewCollector(namespace string, reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of contract resolutions by outcome",
			},
			[]string{"outcome"},
		),
		Constructions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "constructions_total",
				Help:      "Total number of instances constructed by concrete type",
			},
			[]string{"type"},
		),
		Cycles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cyclic_dependencies_total",
				Help:      "Total number of cyclic dependencies detected",
			},
		),
		ValidationErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_errors_total",
				Help:      "Total number of errors reported by validation",
			},
		),
		ResolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolve_duration_seconds",
				Help:      "Top level resolve duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
		),
	}

	if reg != nil {
		for _, collector := range []prometheus.Collector{
			c.Resolutions, c.Constructions, c.Cycles, c.ValidationErrors, c.ResolveDuration,
		} {
			if err := reg.Register(collector); err != nil {
				return nil, fmt.Errorf("failed to register metrics: %w", err)
			}
		}
	}

	return c, nil
}

// ObserveResolution counts one resolution with the given outcome.
func (c *Collector) ObserveResolution(outcome string) {
	if c == nil {
		return
	}
	c.Resolutions.WithLabelValues(outcome).Inc()
}

// ObserveConstruction counts one constructed instance of typeName.
func (c *Collector) ObserveConstruction(typeName string) {
	if c == nil {
		return
	}
	c.Constructions.WithLabelValues(typeName).Inc()
}

// ObserveCycle counts one detected cycle.
func (c *Collector) ObserveCycle() {
	if c == nil {
		return
	}
	c.Cycles.Inc()
}

// ObserveValidationErrors adds n validation errors.
func (c *Collector) ObserveValidationErrors(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.ValidationErrors.Add(float64(n))
}

// ObserveDuration records the duration of a top level resolve.
func (c *Collector) ObserveDuration(d time.Duration) {
	if c == nil {
		return
	}
	c.ResolveDuration.Observe(d.Seconds())
}
