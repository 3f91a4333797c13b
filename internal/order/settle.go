package order

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// StockDecrementer removes one unit of a code.
type StockDecrementer interface {
	Decrement(ctx context.Context, code string) (int, error)
}

// ReceiptNotifier schedules the receipt email for a paid order.
type ReceiptNotifier interface {
	NotifyPaid(ctx context.Context, o Order) error
}

// Settler applies the effects of a successful payment exactly once per order.
type Settler struct {
	Orders   Store
	Stock    StockDecrementer
	Receipts ReceiptNotifier
	Logger   zerolog.Logger
	Now      func() time.Time
}

func (s Settler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Settle marks the order paid, then decrements stock one code per call and
// schedules the receipt. When the order was persisted, only the caller that
// wins the pending to paid transition applies the effects. It reports
// whether effects were applied.
func (s Settler) Settle(ctx context.Context, o Order, persisted bool, billCode string) bool {
	logger := s.Logger.With().Str("order_id", o.ID).Str("bill_code", billCode).Logger()
	if persisted && s.Orders != nil {
		changed, err := s.Orders.MarkPaid(ctx, o.ID, billCode, s.now())
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("mark paid failed; applying stock effects anyway")
		case !changed:
			logger.Info().Msg("order already settled")
			return false
		}
	}
	if s.Stock != nil {
		for _, code := range o.StockCodes() {
			if _, err := s.Stock.Decrement(ctx, code); err != nil {
				logger.Error().Err(err).Str("code", code).Msg("stock decrement failed")
			}
		}
	}
	o.Status = StatusPaid
	o.BillCode = billCode
	if s.Receipts != nil {
		if err := s.Receipts.NotifyPaid(ctx, o); err != nil {
			logger.Warn().Err(err).Msg("receipt scheduling failed")
		}
	}
	return true
}

// Fail marks a persisted order failed.
func (s Settler) Fail(ctx context.Context, id string) {
	if s.Orders == nil || id == "" {
		return
	}
	if _, err := s.Orders.MarkFailed(ctx, id); err != nil {
		s.Logger.Warn().Err(err).Str("order_id", id).Msg("order fail transition failed")
	}
}
