package payment

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/proride-store/internal/cache"
	"github.com/noah-isme/proride-store/internal/common"
	"github.com/noah-isme/proride-store/internal/obs"
	"github.com/noah-isme/proride-store/internal/order"
)

// Gateway status codes carried by callbacks and return URLs.
const (
	StatusSuccess = "1"
	StatusPending = "2"
	StatusFailed  = "3"
)

// CallbackHash computes md5(secret + status + orderID + refNo + "ok") as lowercase hex.
func CallbackHash(secret, status, orderID, refNo string) string {
	sum := md5.Sum([]byte(secret + status + orderID + refNo + "ok"))
	return hex.EncodeToString(sum[:])
}

// Callback handles server-to-server payment notifications.
type Callback struct {
	Secret    string
	Orders    order.Store
	Settler   order.Settler
	Replay    *redis.Client
	ReplayTTL time.Duration
	Logger    zerolog.Logger
}

// Handle processes POST /api/v1/payments/toyyibpay/callback.
func (h Callback) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Secret == "" || h.Orders == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_NOT_CONFIGURED", "callback unavailable", nil)
		return
	}
	if err := r.ParseForm(); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	refNo := strings.TrimSpace(r.PostForm.Get("refno"))
	status := strings.TrimSpace(r.PostForm.Get("status"))
	orderID := strings.TrimSpace(r.PostForm.Get("order_id"))
	billCode := strings.TrimSpace(r.PostForm.Get("billcode"))
	provided := strings.ToLower(strings.TrimSpace(r.PostForm.Get("hash")))

	expected := CallbackHash(h.Secret, status, orderID, refNo)
	if provided == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
		obs.Inc(obs.PaymentCallbackTotal, "invalid_signature")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	ctx := r.Context()
	// The replay key is released again on every path that leaves the payment
	// unapplied, so a gateway retry after a transient error is still processed.
	release := func() {}
	if h.Replay != nil {
		ttl := h.ReplayTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		key := cache.KeyCallbackReplay(common.Sha256Hex(expected + billCode))
		fresh, err := h.Replay.SetNX(ctx, key, "1", ttl).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "replay store unavailable", nil)
			return
		}
		if !fresh {
			obs.Inc(obs.PaymentCallbackTotal, "replay")
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate callback", nil)
			return
		}
		release = func() {
			if err := h.Replay.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
				h.Logger.Warn().Err(err).Str("order_id", orderID).Msg("callback replay key release failed")
			}
		}
	}

	o, err := h.Orders.GetOrder(ctx, orderID)
	if err != nil {
		release()
		if errors.Is(err, order.ErrNotFound) {
			obs.Inc(obs.PaymentCallbackTotal, "unknown_order")
			common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
			return
		}
		h.Logger.Error().Err(err).Str("order_id", orderID).Msg("callback order fetch failed")
		common.JSONError(w, http.StatusInternalServerError, "ORDER_FETCH_ERROR", "failed to load order", nil)
		return
	}
	logger := h.Logger.With().Str("order_id", orderID).Str("bill_code", billCode).Str("status", status).Logger()
	switch status {
	case StatusSuccess:
		applied := h.Settler.Settle(ctx, o, true, billCode)
		logger.Info().Bool("applied", applied).Msg("payment callback settled")
		obs.Inc(obs.PaymentCallbackTotal, "paid")
	case StatusFailed:
		h.Settler.Fail(ctx, o.ID)
		logger.Info().Msg("payment callback failed")
		obs.Inc(obs.PaymentCallbackTotal, "failed")
	default:
		obs.Inc(obs.PaymentCallbackTotal, "pending")
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
