package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics mencatat metrik domain untuk stok, reservasi, dan penjualan.
// Semua method aman dipanggil pada receiver nil.
type LedgerMetrics struct {
	movements   *prometheus.CounterVec
	settlements *prometheus.CounterVec
	clamps      *prometheus.CounterVec
	purchases   *prometheus.CounterVec
}

// NewLedgerMetrics mendaftarkan collector domain pada registerer.
func NewLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_stock_movements_total",
		Help: "Committed kardex entries by movement type.",
	}, []string{"type"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_sale_settlements_total",
		Help: "Sale settlement attempts by outcome.",
	}, []string{"outcome"})
	clamps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_reserved_stock_clamps_total",
		Help: "Times reserved_stock would have gone negative and was clamped at zero.",
	}, []string{"product_id"})
	purchases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_purchases_total",
		Help: "Purchases recorded by kind (received, draft, approved, suggested).",
	}, []string{"kind"})
	registerer.MustRegister(movements, settlements, clamps, purchases)
	return &LedgerMetrics{movements: movements, settlements: settlements, clamps: clamps, purchases: purchases}
}

// ObserveMovements menambah counter kardex untuk tipe tertentu.
func (m *LedgerMetrics) ObserveMovements(movementType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.movements.WithLabelValues(movementType).Add(float64(n))
}

// ObserveSettlement mencatat hasil settlement penjualan.
func (m *LedgerMetrics) ObserveSettlement(outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(outcome).Inc()
}

// ObserveClamp mencatat clamp reserved_stock pada produk.
func (m *LedgerMetrics) ObserveClamp(productID int64) {
	if m == nil {
		return
	}
	m.clamps.WithLabelValues(strconv.FormatInt(productID, 10)).Inc()
}

// ObservePurchase mencatat pembelian yang tersimpan.
func (m *LedgerMetrics) ObservePurchase(kind string) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(kind).Inc()
}
