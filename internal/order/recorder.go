package order

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/proride-store/internal/obs"
)

// Store persists orders.
type Store interface {
	InsertOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context, limit int) ([]Order, error)
	// MarkPaid moves a pending order to paid and reports whether it changed.
	MarkPaid(ctx context.Context, id, billCode string, at time.Time) (bool, error)
	// MarkFailed moves a pending order to failed and reports whether it changed.
	MarkFailed(ctx context.Context, id string) (bool, error)
}

// Outcome is the result of a persistence side effect. Checkout proceeds
// whatever it says; it exists so the failure is logged and observable.
type Outcome struct {
	OrderID  string
	Err      error
	Duration time.Duration
}

// Persisted reports whether the order reached the store.
func (o Outcome) Persisted() bool { return o.Err == nil }

// Recorder writes orders without ever blocking checkout on the result.
type Recorder struct {
	Store  Store
	Logger zerolog.Logger
}

// Record inserts o and returns the outcome. Failures are logged at warn.
func (r Recorder) Record(ctx context.Context, o Order) Outcome {
	start := time.Now()
	var err error
	if r.Store == nil {
		err = errors.New("order store not configured")
	} else {
		err = r.Store.InsertOrder(ctx, o)
	}
	out := Outcome{OrderID: o.ID, Err: err, Duration: time.Since(start)}
	if obs.OrderPersistLatency != nil {
		obs.OrderPersistLatency.Observe(float64(out.Duration.Milliseconds()))
	}
	if err != nil {
		obs.Inc(obs.OrdersPlacedTotal, "persist_failed")
		r.Logger.Warn().Err(err).Str("order_id", o.ID).Msg("order persistence failed; continuing checkout")
		return out
	}
	obs.Inc(obs.OrdersPlacedTotal, "persisted")
	return out
}
