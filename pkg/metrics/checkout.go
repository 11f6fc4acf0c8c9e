package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics counts outcomes on the checkout, payment, and payout paths.
type CheckoutMetrics struct {
	slotLocks    *prometheus.CounterVec
	checkouts    *prometheus.CounterVec
	fulfillments *prometheus.CounterVec
	payouts      *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout counters on reg. A nil registerer yields a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	slotLocks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketcart_slot_lock_attempts_total",
		Help: "Slot lock attempts by result.",
	}, []string{"result"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketcart_checkouts_total",
		Help: "Checkout attempts by result.",
	}, []string{"result"})
	fulfillments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketcart_order_fulfillments_total",
		Help: "Payment reconciliation outcomes by source.",
	}, []string{"source", "outcome"})
	payouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketcart_payout_requests_total",
		Help: "Payout requests by result.",
	}, []string{"result"})
	reg.MustRegister(slotLocks, checkouts, fulfillments, payouts)
	return &CheckoutMetrics{
		slotLocks:    slotLocks,
		checkouts:    checkouts,
		fulfillments: fulfillments,
		payouts:      payouts,
	}
}

// SlotLock records a lock attempt.
func (m *CheckoutMetrics) SlotLock(acquired bool) {
	if m == nil || m.slotLocks == nil {
		return
	}
	result := "acquired"
	if !acquired {
		result = "contended"
	}
	m.slotLocks.WithLabelValues(result).Inc()
}

// Checkout records a checkout result such as "created" or "conflict".
func (m *CheckoutMetrics) Checkout(result string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(result)).Inc()
}

// Fulfillment records a reconcile outcome ("fulfilled", "noop", "pending", "unpaid").
func (m *CheckoutMetrics) Fulfillment(source, outcome string) {
	if m == nil || m.fulfillments == nil {
		return
	}
	m.fulfillments.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

// Payout records a payout request result.
func (m *CheckoutMetrics) Payout(result string) {
	if m == nil || m.payouts == nil {
		return
	}
	m.payouts.WithLabelValues(normalizeLabel(result)).Inc()
}
