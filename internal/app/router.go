package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/proride-store/internal/admin"
	"github.com/noah-isme/proride-store/internal/catalog"
	"github.com/noah-isme/proride-store/internal/checkout"
	"github.com/noah-isme/proride-store/internal/common"
	"github.com/noah-isme/proride-store/internal/config"
	"github.com/noah-isme/proride-store/internal/health"
	"github.com/noah-isme/proride-store/internal/inventory"
	"github.com/noah-isme/proride-store/internal/obs"
	"github.com/noah-isme/proride-store/internal/order"
	"github.com/noah-isme/proride-store/internal/payment"
	"github.com/noah-isme/proride-store/internal/ratelimit"
	"github.com/noah-isme/proride-store/internal/security"
	"github.com/noah-isme/proride-store/internal/voucher"
)

// RouterConfig carries what the HTTP surface needs beyond the services.
type RouterConfig struct {
	Config    *config.Config
	Services  *Services
	Redis     *redis.Client
	Readiness health.Checker
	Metrics   *obs.HTTPMetrics
	Logger    zerolog.Logger
}

// NewRouter builds the public, payment and admin HTTP surface.
func NewRouter(rc RouterConfig) http.Handler {
	cfg := rc.Config
	svcs := rc.Services

	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: svcs.Catalog, Stock: svcs.Stock, Carts: svcs.Checkout})
	stockHandler := inventory.Handler{Service: svcs.Stock}
	sessionHandler := &checkout.Handler{Svc: svcs.Checkout}
	voucherHandler := &voucher.Handler{Svc: svcs.Vouchers}
	orderAdmin := &order.AdminHandler{Store: svcs.Orders}
	adminHandler := &admin.Handler{
		Auth:    svcs.Auth,
		Tokens:  svcs.Tokens,
		Stock:   svcs.Stock,
		Seeder:  svcs.Seeder,
		Catalog: svcs.Catalog,
		Logger:  rc.Logger.With().Str("svc", "admin").Logger(),
	}
	callback := payment.Callback{
		Secret:    cfg.ToyyibPaySecretKey,
		Orders:    svcs.Orders,
		Settler:   svcs.Settler,
		Replay:    rc.Redis,
		ReplayTTL: cfg.CallbackReplayTTL,
		Logger:    rc.Logger.With().Str("svc", "payment-callback").Logger(),
	}
	idem := common.Idem{R: rc.Redis, TTL: cfg.IdempotencyTTL}
	loginLimit := ratelimit.Handler{
		Limiter: svcs.LoginLimiter,
		Key:     ratelimit.ByClientIP("admin-login"),
		OnError: func(err error) { rc.Logger.Warn().Err(err).Msg("login rate limiter unavailable") },
	}
	healthHandler := health.Handler{
		Checker:      rc.Readiness,
		DBTimeout:    500 * time.Millisecond,
		RedisTimeout: 300 * time.Millisecond,
		Payments:     svcs.Checkout.PaymentProvider(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Obs.TracingEnabled {
		r.Use(obs.Tracing("proride-api"))
	}
	if rc.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: rc.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: rc.Logger}.Middleware)
	r.Use(security.Headers{EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Idempotent-Replayed", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if rc.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)

		v.Get("/models", catalogHandler.Models)
		v.Get("/models/{model}/variants", catalogHandler.Variants)
		v.Get("/products", catalogHandler.Products)
		v.Get("/images", catalogHandler.Image)
		v.Get("/stock", stockHandler.Levels)

		v.Post("/sessions", sessionHandler.Create)
		v.Route("/sessions/{id}", func(s chi.Router) {
			s.Get("/", sessionHandler.Get)
			s.Post("/items", sessionHandler.AddItem)
			s.Delete("/items/{lineId}", sessionHandler.RemoveItem)
			s.Post("/checkout", sessionHandler.BeginCheckout)
			s.Put("/customer", sessionHandler.UpdateCustomer)
			s.Post("/shipping/quote", sessionHandler.QuoteShipping)
			s.Post("/shipping/select", sessionHandler.SelectCourier)
			s.Post("/voucher", sessionHandler.ApplyVoucher)
			s.Delete("/voucher", sessionHandler.RemoveVoucher)
			s.Get("/gift-sizes", sessionHandler.GiftSizes)
			s.Put("/gift-size", sessionHandler.SelectGiftSize)
			s.With(idem.Middleware).Post("/orders", sessionHandler.PlaceOrder)
			s.Post("/payment/simulate", sessionHandler.Simulate)
			s.Get("/payment/return", sessionHandler.Return)
		})

		v.Post("/payments/toyyibpay/callback", callback.Handle)

		v.Route("/admin", func(a chi.Router) {
			a.With(loginLimit.Middleware).Post("/login", adminHandler.Login)
			a.Group(func(p chi.Router) {
				p.Use(admin.RequireAdmin(svcs.Tokens))
				p.Get("/stock", adminHandler.ListStock)
				p.Put("/stock/{code}", adminHandler.SetStock)
				p.Put("/gifts/{size}", adminHandler.SetGiftStock)
				p.Get("/vouchers", voucherHandler.List)
				p.Post("/vouchers", voucherHandler.Create)
				p.Delete("/vouchers/{id}", voucherHandler.Delete)
				p.Post("/seed", adminHandler.Seed)
				p.Get("/orders", orderAdmin.List)
			})
		})
	})

	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
