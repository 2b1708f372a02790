package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics counts provider callbacks by event type and outcome.
type WebhookMetrics struct {
	events *prometheus.CounterVec
}

// NewWebhookMetrics registers storefront_webhook_events_total.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_webhook_events_total",
		Help: "Payment webhook deliveries by event type and result.",
	}, []string{"event_type", "result"})
	reg.MustRegister(events)
	return &WebhookMetrics{events: events}
}

// Observe increments the counter for one delivery.
func (w *WebhookMetrics) Observe(eventType, result string) {
	if w == nil || w.events == nil {
		return
	}
	w.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}
