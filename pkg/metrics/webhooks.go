package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics counts inbound provider events by endpoint, type and result.
type WebhookMetrics struct {
	events *prometheus.CounterVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lplate",
		Name:      "webhook_events_total",
		Help:      "Provider webhook events by endpoint, event type and result.",
	}, []string{"endpoint", "type", "result"})
	reg.MustRegister(events)
	return &WebhookMetrics{events: events}
}

// Observe records one event; result is one of handled, duplicate, rejected, failed.
func (w *WebhookMetrics) Observe(endpoint, eventType, result string) {
	if w == nil || w.events == nil {
		return
	}
	w.events.WithLabelValues(normalizeLabel(endpoint), normalizeLabel(eventType), normalizeLabel(result)).Inc()
}
