package common

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	redis "github.com/redis/go-redis/v9"
)

const (
	idemHeader   = "Idempotency-Key"
	replayHeader = "Idempotent-Replayed"
	idemPending  = "pending"
)

// Idem replays the first completed response for a repeated Idempotency-Key.
// A duplicate that arrives while the first request is still running gets
// 409 IDEMPOTENT_REPLAY. 5xx responses are not stored so the client may retry.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// idemKey scopes the client key to method and path.
func idemKey(r *http.Request, key string) string {
	sum := sha256.Sum256([]byte(r.Method + " " + r.URL.Path + "\n" + key))
	return "idem:" + hex.EncodeToString(sum[:])
}

func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(idemHeader)
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		key := idemKey(r, header)
		ttl := i.TTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}

		claimed, err := i.R.SetNX(ctx, key, idemPending, ttl).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", nil)
			return
		}
		if !claimed {
			i.replay(ctx, w, key)
			return
		}

		var body bytes.Buffer
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&body)
		completed := false
		defer func() {
			store := context.WithoutCancel(ctx)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if !completed || status >= http.StatusInternalServerError {
				_ = i.R.Del(store, key).Err()
				return
			}
			raw, err := json.Marshal(storedResponse{Status: status, ContentType: ww.Header().Get("Content-Type"), Body: body.Bytes()})
			if err != nil {
				_ = i.R.Del(store, key).Err()
				return
			}
			_ = i.R.Set(store, key, raw, ttl).Err()
		}()
		next.ServeHTTP(ww, r)
		completed = true
	})
}

func (i Idem) replay(ctx context.Context, w http.ResponseWriter, key string) {
	raw, err := i.R.Get(ctx, key).Bytes()
	var saved storedResponse
	switch {
	case errors.Is(err, redis.Nil), err == nil && string(raw) == idemPending:
		JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "a request with this key is still in progress", nil)
		return
	case err != nil:
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", nil)
		return
	}
	if err := json.Unmarshal(raw, &saved); err != nil {
		JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
		return
	}
	if saved.ContentType != "" {
		w.Header().Set("Content-Type", saved.ContentType)
	}
	w.Header().Set(replayHeader, "true")
	w.WriteHeader(saved.Status)
	_, _ = w.Write(saved.Body)
}
