package obs

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CheckoutInstruments holds OpenTelemetry instruments for checkout flows.
// A nil receiver is valid and records nothing.
type CheckoutInstruments struct {
	transitions metric.Int64Counter
	orderValue  metric.Int64Histogram
}

// NewCheckoutInstruments creates checkout instruments on the given meter. A nil
// meter uses the global provider.
func NewCheckoutInstruments(meter metric.Meter) (*CheckoutInstruments, error) {
	if meter == nil {
		meter = otel.Meter("proride/checkout")
	}
	transitions, err := meter.Int64Counter("checkout.state_transitions",
		metric.WithDescription("Checkout session state transitions."))
	if err != nil {
		return nil, err
	}
	orderValue, err := meter.Int64Histogram("checkout.order_value",
		metric.WithDescription("Final order totals in sen."),
		metric.WithUnit("sen"))
	if err != nil {
		return nil, err
	}
	return &CheckoutInstruments{transitions: transitions, orderValue: orderValue}, nil
}

// Transition records a state change.
func (c *CheckoutInstruments) Transition(ctx context.Context, from, to string) {
	if c == nil {
		return
	}
	c.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// OrderValue records a placed order total.
func (c *CheckoutInstruments) OrderValue(ctx context.Context, total int64) {
	if c == nil {
		return
	}
	c.orderValue.Record(ctx, total)
}
