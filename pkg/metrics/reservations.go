package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReservationMetrics counts stock holds and oversell warnings.
type ReservationMetrics struct {
	holds     *prometheus.CounterVec
	oversells prometheus.Counter
}

func NewReservationMetrics(reg prometheus.Registerer) *ReservationMetrics {
	if reg == nil {
		return &ReservationMetrics{}
	}
	holds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_reservations_total",
		Help: "Cart reservation transitions by outcome.",
	}, []string{"outcome"})
	oversells := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_inventory_oversold_total",
		Help: "Order lines reserved beyond effective stock.",
	})
	reg.MustRegister(holds, oversells)
	return &ReservationMetrics{holds: holds, oversells: oversells}
}

// AddHolds adds n transitions with the given outcome (reserved, released, expired, converted).
func (r *ReservationMetrics) AddHolds(outcome string, n int) {
	if r == nil || r.holds == nil || n <= 0 {
		return
	}
	r.holds.WithLabelValues(normalizeLabel(outcome)).Add(float64(n))
}

func (r *ReservationMetrics) IncOversold() {
	if r == nil || r.oversells == nil {
		return
	}
	r.oversells.Inc()
}
