package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics counts stock, wallet and refund movements.
type LedgerMetrics struct {
	stockMovements     *prometheus.CounterVec
	stockUnits         *prometheus.CounterVec
	insufficientStock  prometheus.Counter
	walletMovements    *prometheus.CounterVec
	walletDuplicates   prometheus.Counter
	refunds            *prometheus.CounterVec
	refundCents        *prometheus.CounterVec
	transitionRejected *prometheus.CounterVec
}

// NewLedgerMetrics registers ledger metrics on reg. A nil registerer yields a
// no-op recorder.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		stockMovements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopcore_stock_movements_total",
			Help: "Stock ledger rows appended, by movement type.",
		}, []string{"type"}),
		stockUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopcore_stock_units_total",
			Help: "Absolute units moved through the stock ledger, by movement type.",
		}, []string{"type"}),
		insufficientStock: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopcore_stock_insufficient_total",
			Help: "Reservations rejected for insufficient stock.",
		}),
		walletMovements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopcore_wallet_movements_total",
			Help: "Wallet ledger rows appended, by kind.",
		}, []string{"kind"}),
		walletDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopcore_wallet_duplicate_credits_total",
			Help: "Credits skipped because the idempotency key was already applied.",
		}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopcore_refunds_total",
			Help: "Refunds issued, by method.",
		}, []string{"method"}),
		refundCents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopcore_refund_cents_total",
			Help: "Refunded amount in minor units, by method.",
		}, []string{"method"}),
		transitionRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopcore_order_transitions_rejected_total",
			Help: "Order transitions rejected by the allow-list, by action.",
		}, []string{"action"}),
	}
	reg.MustRegister(
		m.stockMovements,
		m.stockUnits,
		m.insufficientStock,
		m.walletMovements,
		m.walletDuplicates,
		m.refunds,
		m.refundCents,
		m.transitionRejected,
	)
	return m
}

func (m *LedgerMetrics) StockMovement(kind string, qty int) {
	if m == nil || m.stockMovements == nil {
		return
	}
	if qty < 0 {
		qty = -qty
	}
	m.stockMovements.WithLabelValues(normalizeLabel(kind)).Inc()
	m.stockUnits.WithLabelValues(normalizeLabel(kind)).Add(float64(qty))
}

func (m *LedgerMetrics) InsufficientStock() {
	if m == nil || m.insufficientStock == nil {
		return
	}
	m.insufficientStock.Inc()
}

func (m *LedgerMetrics) WalletMovement(kind string) {
	if m == nil || m.walletMovements == nil {
		return
	}
	m.walletMovements.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *LedgerMetrics) WalletDuplicate() {
	if m == nil || m.walletDuplicates == nil {
		return
	}
	m.walletDuplicates.Inc()
}

func (m *LedgerMetrics) Refund(method string, cents int64) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(method)).Inc()
	m.refundCents.WithLabelValues(normalizeLabel(method)).Add(float64(cents))
}

func (m *LedgerMetrics) TransitionRejected(action string) {
	if m == nil || m.transitionRejected == nil {
		return
	}
	m.transitionRejected.WithLabelValues(normalizeLabel(action)).Inc()
}
