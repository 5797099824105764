package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeNotFound  = "not_found"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"

	// OutcomePaidAfterCancel is a settled payment for an order that was already canceled.
	OutcomePaidAfterCancel = "paid_after_cancel"

	OutcomeSent = "sent"
)

// OrderMetrics tracks the checkout lifecycle. A nil *OrderMetrics is a valid no-op.
type OrderMetrics struct {
	created       prometheus.Counter
	finalized     prometheus.Counter
	finalizeNoop  prometheus.Counter
	paidCanceled  prometheus.Counter
	webhookEvents *prometheus.CounterVec
	emails        *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Pending orders inserted by checkout.",
		}),
		finalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_finalized_total",
			Help: "Orders transitioned from pending to paid.",
		}),
		finalizeNoop: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_finalize_noop_total",
			Help: "Finalization attempts that found the order already past pending.",
		}),
		paidCanceled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_paid_after_cancel_total",
			Help: "Settled payments that arrived for an already canceled order.",
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stripe_webhook_events_total",
			Help: "Stripe webhook deliveries by event type and outcome.",
		}, []string{"type", "outcome"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "email_dispatch_total",
			Help: "Confirmation email dispatch attempts by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.created, m.finalized, m.finalizeNoop, m.paidCanceled, m.webhookEvents, m.emails)
	return m
}

func (m *OrderMetrics) IncCreated() {
	if m == nil || m.created == nil {
		return
	}
	m.created.Inc()
}

func (m *OrderMetrics) IncFinalized() {
	if m == nil || m.finalized == nil {
		return
	}
	m.finalized.Inc()
}

func (m *OrderMetrics) IncFinalizeNoop() {
	if m == nil || m.finalizeNoop == nil {
		return
	}
	m.finalizeNoop.Inc()
}

func (m *OrderMetrics) IncPaidAfterCancel() {
	if m == nil || m.paidCanceled == nil {
		return
	}
	m.paidCanceled.Inc()
}

func (m *OrderMetrics) ObserveWebhook(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OrderMetrics) ObserveEmail(outcome string) {
	if m == nil || m.emails == nil {
		return
	}
	m.emails.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
