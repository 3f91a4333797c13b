package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/proride-store/internal/common"
	"github.com/noah-isme/proride-store/internal/lock"
)

// ReceiptWorker delivers receipt emails. Delivery of a given order is
// serialised with a distributed lock when Locker is configured.
type ReceiptWorker struct {
	Mail    common.EmailSender
	Locker  *lock.Locker
	LockTTL time.Duration
	Logger  zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (w ReceiptWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if w.Mail == nil {
		return errors.New("receipt worker: mail sender not configured")
	}
	var p ReceiptPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode receipt payload: %w: %w", err, asynq.SkipRetry)
	}
	if p.Email == "" {
		return nil
	}
	send := func(context.Context) error {
		if err := w.Mail.Send(p.Email, ReceiptSubject(p.OrderID), ReceiptBody(p)); err != nil {
			w.Logger.Error().Err(err).Str("order_id", p.OrderID).Msg("receipt email failed")
			return err
		}
		w.Logger.Info().Str("order_id", p.OrderID).Msg("receipt email sent")
		return nil
	}
	if w.Locker == nil {
		return send(ctx)
	}
	ttl := w.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return w.Locker.WithLock(ctx, "lock:receipt:"+p.OrderID, ttl, send)
}

// NewMux registers the receipt handler on an asynq mux.
func NewMux(w ReceiptWorker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeReceiptEmail, w)
	return mux
}
