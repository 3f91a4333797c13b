package app

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/noah-isme/proride-store/internal/admin"
	"github.com/noah-isme/proride-store/internal/cache"
	"github.com/noah-isme/proride-store/internal/catalog"
	"github.com/noah-isme/proride-store/internal/checkout"
	"github.com/noah-isme/proride-store/internal/config"
	"github.com/noah-isme/proride-store/internal/inventory"
	"github.com/noah-isme/proride-store/internal/lock"
	"github.com/noah-isme/proride-store/internal/notify"
	"github.com/noah-isme/proride-store/internal/obs"
	"github.com/noah-isme/proride-store/internal/order"
	"github.com/noah-isme/proride-store/internal/payment"
	"github.com/noah-isme/proride-store/internal/ratelimit"
	"github.com/noah-isme/proride-store/internal/repo"
	"github.com/noah-isme/proride-store/internal/shipping"
	"github.com/noah-isme/proride-store/internal/voucher"
)

// Stores are the persistence ports behind the services.
type Stores struct {
	Catalog  catalog.Querier
	Stock    inventory.Store
	Vouchers voucher.Querier
	Orders   order.Store
	Seeder   admin.Seeder
}

// PostgresStores backs every port with the pgx store.
func PostgresStores(pool *pgxpool.Pool) Stores {
	s := repo.New(pool)
	return Stores{Catalog: s, Stock: s, Vouchers: s, Orders: s, Seeder: s}
}

// Services is the wired application graph.
type Services struct {
	Catalog      *catalog.Service
	Stock        *inventory.Service
	Vouchers     *voucher.Service
	Orders       order.Store
	Seeder       admin.Seeder
	Settler      order.Settler
	Checkout     *checkout.Service
	Tokens       *admin.Tokens
	Auth         admin.Authenticator
	LoginLimiter *ratelimit.Limiter
}

// NewServices wires the domain services over stores. tasks may be nil, in
// which case receipts are never queued.
func NewServices(cfg *config.Config, stores Stores, rdb *redis.Client, tasks notify.TaskEnqueuer, logger zerolog.Logger) (*Services, error) {
	if rdb == nil {
		return nil, errors.New("app: redis client is required")
	}
	dataset, err := catalog.LoadDataset()
	if err != nil {
		return nil, err
	}
	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Queries:  stores.Catalog,
		Cache:    cache.NewJSON(rdb, cfg.CatalogCacheTTL),
		Fallback: &dataset,
		Logger:   logger.With().Str("svc", "catalog").Logger(),
	})
	if err != nil {
		return nil, err
	}
	stockSvc := inventory.NewService(stores.Stock, cache.NewJSON(rdb, cfg.StockCacheTTL), logger.With().Str("svc", "inventory").Logger())
	voucherSvc := &voucher.Service{Q: stores.Vouchers}

	receipts := notify.Enqueuer{
		Client:  tasks,
		Enabled: cfg.ReceiptEmailEnabled && tasks != nil,
		Logger:  logger.With().Str("svc", "receipts").Logger(),
	}
	settler := order.Settler{
		Orders:   stores.Orders,
		Stock:    stockSvc,
		Receipts: receipts,
		Logger:   logger.With().Str("svc", "settlement").Logger(),
	}

	var gateway payment.Gateway
	if cfg.GatewayConfigured() {
		gateway = payment.NewToyyibPay(payment.ToyyibPayConfig{
			BaseURL:      cfg.ToyyibPayBaseURL,
			SecretKey:    cfg.ToyyibPaySecretKey,
			CategoryCode: cfg.ToyyibPayCategoryCode,
			Timeout:      cfg.GatewayTimeout,
			Logger:       logger.With().Str("svc", "toyyibpay").Logger(),
		})
	} else {
		logger.Warn().Msg("payment gateway not configured; bills will be simulated")
	}

	instruments, err := obs.NewCheckoutInstruments(otel.Meter("proride/checkout"))
	if err != nil {
		logger.Error().Err(err).Msg("initialise checkout meter")
		instruments = nil
	}

	checkoutSvc, err := checkout.NewService(checkout.Config{
		Sessions:    checkout.NewSessionStore(rdb, cfg.SessionTTL),
		Locker:      lock.Locker{R: rdb, RetryBackoff: 25 * time.Millisecond, MaxWait: 2 * time.Second},
		LockTTL:     cfg.LockTTL,
		Catalog:     catalogSvc,
		Stock:       stockSvc,
		Vouchers:    voucherSvc,
		Shipping:    shipping.Engine{Latency: cfg.ShippingQuoteLatency},
		Recorder:    order.Recorder{Store: stores.Orders, Logger: logger.With().Str("svc", "orders").Logger()},
		Settler:     settler,
		Gateway:     gateway,
		Simulator:   payment.Simulator{},
		ReturnURL:   cfg.ReturnURL,
		CallbackURL: cfg.CallbackURL(),
		Metrics:     instruments,
		Logger:      logger.With().Str("svc", "checkout").Logger(),
	})
	if err != nil {
		return nil, err
	}

	tokens, err := admin.NewTokens(cfg.AdminTokenSecret, cfg.AdminTokenTTL)
	if err != nil {
		return nil, err
	}
	limiterStore, err := ratelimit.NewRedisStore(rdb, "ratelimit:admin-login")
	if err != nil {
		return nil, err
	}
	loginLimiter, err := ratelimit.New(limiterStore, cfg.AdminLoginRate)
	if err != nil {
		return nil, err
	}

	return &Services{
		Catalog:      catalogSvc,
		Stock:        stockSvc,
		Vouchers:     voucherSvc,
		Orders:       stores.Orders,
		Seeder:       stores.Seeder,
		Settler:      settler,
		Checkout:     checkoutSvc,
		Tokens:       tokens,
		Auth:         admin.Argon2Authenticator{Hash: cfg.AdminPasswordHash, Logger: logger.With().Str("svc", "admin-auth").Logger()},
		LoginLimiter: loginLimiter,
	}, nil
}
