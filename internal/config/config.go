package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	PublicBaseURL      string
	CurrencyCode       string

	AdminTokenSecret  string
	AdminPasswordHash string
	AdminTokenTTL     time.Duration
	AdminLoginRate    string

	ToyyibPaySecretKey    string
	ToyyibPayCategoryCode string
	ToyyibPayBaseURL      string
	GatewayTimeout        time.Duration
	CallbackReplayTTL     time.Duration

	ShippingQuoteLatency time.Duration
	SessionTTL           time.Duration
	CatalogCacheTTL      time.Duration
	StockCacheTTL        time.Duration
	IdempotencyTTL       time.Duration
	LockTTL              time.Duration
	MaxBodyBytes         int64

	ReceiptEmailEnabled bool
	SMTPHost            string
	SMTPPort            int
	SMTPUser            string
	SMTPPass            string
	MailFrom            string
	WorkerConcurrency   int

	Obs ObsConfig
}

// ObsConfig groups logging, metrics and tracing switches.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		PublicBaseURL:      strings.TrimRight(valueOrDefault(k.String("PUBLIC_BASE_URL"), "http://localhost:8080"), "/"),
		CurrencyCode:       strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "MYR")),

		AdminTokenSecret:  k.String("ADMIN_TOKEN_SECRET"),
		AdminPasswordHash: strings.TrimSpace(k.String("ADMIN_PASSWORD_HASH")),
		AdminTokenTTL:     parseDuration(k.String("ADMIN_TOKEN_TTL"), "8h"),
		AdminLoginRate:    valueOrDefault(k.String("ADMIN_LOGIN_RATE"), "5-M"),

		ToyyibPaySecretKey:    strings.TrimSpace(k.String("TOYYIBPAY_SECRET_KEY")),
		ToyyibPayCategoryCode: strings.TrimSpace(k.String("TOYYIBPAY_CATEGORY_CODE")),
		ToyyibPayBaseURL:      strings.TrimSpace(k.String("TOYYIBPAY_BASE_URL")),
		GatewayTimeout:        parseDuration(k.String("GATEWAY_TIMEOUT"), "10s"),
		CallbackReplayTTL:     parseDuration(k.String("CALLBACK_REPLAY_TTL"), "24h"),

		ShippingQuoteLatency: parseDuration(k.String("SHIPPING_QUOTE_LATENCY"), "800ms"),
		SessionTTL:           parseDuration(k.String("SESSION_TTL"), "72h"),
		CatalogCacheTTL:      parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		StockCacheTTL:        parseDuration(k.String("STOCK_CACHE_TTL"), "30s"),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		LockTTL:              parseDuration(k.String("LOCK_TTL"), "15s"),
		MaxBodyBytes:         int64(parseInt(k.String("MAX_BODY_BYTES"), 64<<10)),

		ReceiptEmailEnabled: parseBool(k.String("RECEIPT_EMAIL_ENABLED"), false),
		SMTPHost:            strings.TrimSpace(k.String("SMTP_HOST")),
		SMTPPort:            parseInt(k.String("SMTP_PORT"), 587),
		SMTPUser:            k.String("SMTP_USER"),
		SMTPPass:            k.String("SMTP_PASS"),
		MailFrom:            valueOrDefault(k.String("MAIL_FROM"), "Proride Store <no-reply@proride.my>"),
		WorkerConcurrency:   parseInt(k.String("WORKER_CONCURRENCY"), 5),

		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "proride"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.AdminTokenSecret == "" {
		return nil, errors.New("ADMIN_TOKEN_SECRET is required")
	}
	if cfg.ReceiptEmailEnabled && cfg.SMTPHost == "" {
		return nil, errors.New("SMTP_HOST is required when RECEIPT_EMAIL_ENABLED is set")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// GatewayConfigured reports whether live bill creation is possible.
func (c *Config) GatewayConfigured() bool {
	return c.ToyyibPaySecretKey != "" && c.ToyyibPayCategoryCode != ""
}

// ReturnURL is where the gateway redirects the shopper for a session.
func (c *Config) ReturnURL(sessionID string) string {
	return c.PublicBaseURL + "/api/v1/sessions/" + sessionID + "/payment/return"
}

// CallbackURL is the server-to-server payment notification endpoint.
func (c *Config) CallbackURL() string {
	return c.PublicBaseURL + "/api/v1/payments/toyyibpay/callback"
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
