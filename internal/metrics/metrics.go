package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts engine outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	NegotiationActions *prometheus.CounterVec
	PaymentTransitions *prometheus.CounterVec
	StoreConflicts     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		NegotiationActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agrihub_negotiation_actions_total",
			Help: "Negotiation actions by action name and whether they changed the record",
		}, []string{"action", "applied"}),
		PaymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agrihub_payment_transitions_total",
			Help: "Payment and settlement transitions by flow, action and result",
		}, []string{"flow", "action", "result"}),
		StoreConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agrihub_store_conflicts_total",
			Help: "Writes recomputed after losing a version race",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.NegotiationActions,
		m.PaymentTransitions,
		m.StoreConflicts,
	)
	return m
}

func (m *Metrics) Negotiation(action string, applied bool) {
	if m == nil {
		return
	}
	m.NegotiationActions.WithLabelValues(action, strconv.FormatBool(applied)).Inc()
}

// Payment records result "ok", "blocked" or "invalid".
func (m *Metrics) Payment(flow, action, result string) {
	if m == nil {
		return
	}
	m.PaymentTransitions.WithLabelValues(flow, action, result).Inc()
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.StoreConflicts.Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
