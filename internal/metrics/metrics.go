// Package metrics counts idempotency outcomes and order event lifecycle steps.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Idempotency outcomes.
const (
	OutcomeCreated    = "created"
	OutcomeReplayed   = "replayed"
	OutcomeConflict   = "conflict"
	OutcomeIncomplete = "incomplete"
	OutcomeFailed     = "failed"
)

// Order event lifecycle steps.
const (
	EventPublished     = "published"
	EventPublishFailed = "publish_failed"
	EventApplied       = "applied"
	EventDuplicate     = "duplicate"
)

// Recorder receives counter observations.
type Recorder interface {
	ObserveOutcome(outcome string)
	ObserveEvent(kind string)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) ObserveOutcome(string) {}
func (Nop) ObserveEvent(string)   {}

// Multi fans observations out to several recorders.
type Multi []Recorder

func (m Multi) ObserveOutcome(outcome string) {
	for _, r := range m {
		r.ObserveOutcome(outcome)
	}
}

func (m Multi) ObserveEvent(kind string) {
	for _, r := range m {
		r.ObserveEvent(kind)
	}
}

// Prometheus exposes the counters to a Prometheus registry.
type Prometheus struct {
	outcomes *prometheus.CounterVec
	events   *prometheus.CounterVec
}

// NewPrometheus registers the counters on registerer (the default registerer when nil).
func NewPrometheus(registerer prometheus.Registerer, service string) (*Prometheus, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if service == "" {
		service = "orderflow"
	}
	constLabels := prometheus.Labels{"service": service}

	p := &Prometheus{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "orderflow_idempotency_outcomes_total",
			Help:        "Create-order requests by idempotency outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "orderflow_order_events_total",
			Help:        "Order events by lifecycle step.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
	}
	for _, c := range []prometheus.Collector{p.outcomes, p.events} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) ObserveOutcome(outcome string) {
	p.outcomes.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) ObserveEvent(kind string) {
	p.events.WithLabelValues(kind).Inc()
}
