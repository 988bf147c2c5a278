// Package telemetry owns the process prometheus registry.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded for chat sends.
const (
	OutcomeReplied  = "replied"
	OutcomeWelcome  = "welcome"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

// Metrics groups every collector the service exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry             *prometheus.Registry
	chatSends            *prometheus.CounterVec
	assessmentsCompleted *prometheus.CounterVec
	collaboratorFailures *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		chatSends: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "companion",
			Name:      "chat_sends_total",
			Help:      "Chat turns handled, by category and outcome.",
		}, []string{"category", "outcome"}),
		assessmentsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "companion",
			Name:      "assessments_completed_total",
			Help:      "Questionnaire runs that reached a result.",
		}, []string{"kind"}),
		collaboratorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "companion",
			Name:      "collaborator_failures_total",
			Help:      "Failed calls to external collaborators.",
		}, []string{"collaborator"}),
	}
}

func (m *Metrics) ChatSend(category, outcome string) {
	if m == nil {
		return
	}
	m.chatSends.WithLabelValues(category, outcome).Inc()
}

func (m *Metrics) AssessmentCompleted(kind string) {
	if m == nil {
		return
	}
	m.assessmentsCompleted.WithLabelValues(kind).Inc()
}

func (m *Metrics) CollaboratorFailure(name string) {
	if m == nil {
		return
	}
	m.collaboratorFailures.WithLabelValues(name).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
