package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

var draining atomic.Bool

// SetReady toggles readiness. The api clears it at the start of graceful
// shutdown so the instance drops out of the load balancer first.
func SetReady(v bool) { draining.Store(!v) }

// IsReady reports the readiness flag.
func IsReady() bool { return !draining.Load() }

// Checker probes the stores the storefront cannot serve without.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Handler serves /health/live and /health/ready.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
	// Payments names the active bill provider, e.g. "toyyibpay" or "simulated".
	// It is informational and never fails readiness.
	Payments string
}

type readyBody struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks,omitempty"`
	Payments string            `json:"payments,omitempty"`
}

func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes Postgres and Redis concurrently and answers 503 when either
// fails or the instance is draining.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !IsReady() {
		write(w, http.StatusServiceUnavailable, readyBody{Status: "draining"})
		return
	}
	if h.Checker == nil {
		write(w, http.StatusServiceUnavailable, readyBody{Status: "unconfigured"})
		return
	}

	var dbErr, redisErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		dbErr = h.Checker.PingDB(r.Context(), orDefault(h.DBTimeout, 500*time.Millisecond))
	}()
	go func() {
		defer wg.Done()
		redisErr = h.Checker.PingRedis(r.Context(), orDefault(h.RedisTimeout, 300*time.Millisecond))
	}()
	wg.Wait()

	body := readyBody{
		Status:   "ok",
		Checks:   map[string]string{"db": outcome(dbErr), "redis": outcome(redisErr)},
		Payments: h.Payments,
	}
	code := http.StatusOK
	if dbErr != nil || redisErr != nil {
		body.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	write(w, code, body)
}

func outcome(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func write(w http.ResponseWriter, code int, body readyBody) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
