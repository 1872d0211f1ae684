package metrics

import "github.com/prometheus/client_golang/prometheus"

// PayoutMetrics counts payout batch outcomes per instructor.
type PayoutMetrics struct {
	outcomes    *prometheus.CounterVec
	transferred prometheus.Counter
}

func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	if reg == nil {
		return &PayoutMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lplate",
		Name:      "payout_outcomes_total",
		Help:      "Payout instructions by outcome (created, existing, failed, skipped).",
	}, []string{"outcome"})
	transferred := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lplate",
		Name:      "payout_transferred_pence_total",
		Help:      "Sum of pence handed to the provider as instructor transfers.",
	})
	reg.MustRegister(outcomes, transferred)
	return &PayoutMetrics{outcomes: outcomes, transferred: transferred}
}

func (p *PayoutMetrics) IncOutcome(outcome string) {
	if p == nil || p.outcomes == nil {
		return
	}
	p.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (p *PayoutMetrics) AddTransferred(pence int64) {
	if p == nil || p.transferred == nil || pence <= 0 {
		return
	}
	p.transferred.Add(float64(pence))
}
