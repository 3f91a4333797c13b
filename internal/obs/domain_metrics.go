package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OrdersPlacedTotal counts place-order attempts by outcome.
	OrdersPlacedTotal *prometheus.CounterVec
	// ShippingQuoteTotal counts shipping quotes by zone or rejection reason.
	ShippingQuoteTotal *prometheus.CounterVec
	// VoucherValidationTotal counts voucher lookups by outcome.
	VoucherValidationTotal *prometheus.CounterVec
	// StockDecrementTotal counts post-payment stock decrements by outcome.
	StockDecrementTotal *prometheus.CounterVec
	// GatewayBillTotal counts payment bill creation attempts.
	GatewayBillTotal *prometheus.CounterVec
	// PaymentCallbackTotal counts inbound gateway callbacks by outcome.
	PaymentCallbackTotal *prometheus.CounterVec
	// OrderPersistLatency records order insert latency in milliseconds.
	OrderPersistLatency prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		OrdersPlacedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Count of place-order attempts by outcome.",
		}, []string{"result"})
		ShippingQuoteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_quote_total",
			Help:      "Count of shipping quotes by zone or rejection reason.",
		}, []string{"result"})
		VoucherValidationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_validation_total",
			Help:      "Count of voucher validations by outcome.",
		}, []string{"result"})
		StockDecrementTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_decrement_total",
			Help:      "Count of stock decrements issued after payment.",
		}, []string{"result"})
		GatewayBillTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_bill_total",
			Help:      "Count of payment bill creation attempts.",
		}, []string{"provider", "result"})
		PaymentCallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_callback_total",
			Help:      "Count of processed payment callbacks by outcome.",
		}, []string{"result"})
		OrderPersistLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_persist_duration_ms",
			Help:      "Latency for order inserts in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000},
		})

		OrdersPlacedTotal = registerOrReuse(reg, OrdersPlacedTotal)
		ShippingQuoteTotal = registerOrReuse(reg, ShippingQuoteTotal)
		VoucherValidationTotal = registerOrReuse(reg, VoucherValidationTotal)
		StockDecrementTotal = registerOrReuse(reg, StockDecrementTotal)
		GatewayBillTotal = registerOrReuse(reg, GatewayBillTotal)
		PaymentCallbackTotal = registerOrReuse(reg, PaymentCallbackTotal)
		OrderPersistLatency = registerOrReuse(reg, OrderPersistLatency)
	})
}

// Inc increments a labelled counter when the domain metrics are registered.
func Inc(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}
