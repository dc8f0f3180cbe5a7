package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/pos-terminal/internal/ledger"
)

// Config holds gateway configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	TerminalName       string
	CurrencyCode       string
	BackendBaseURL     string
	BackendTimeout     time.Duration
	BackendReadRetries int
	BackendJWTSecret   string
	RedisURL           string
	DatabaseURL        string
	CORSAllowedOrigins []string
	SessionTTL         time.Duration
	CatalogCacheTTL    time.Duration
	IdempotencyTTL     time.Duration
	FinalizeLockTTL    time.Duration

	POSPaymentMethods       []string
	SelfOrderPaymentMethods []string
	SelfOrderCashEnabled    bool
	SelfOrderServiceToken   string

	LoginRateLimit      int
	LoginRateWindow     time.Duration
	SelfOrderRateLimit  int
	SelfOrderRateWindow time.Duration

	Breaker  BreakerConfig
	Obs      ObsConfig
	Security SecurityConfig
	Health   HealthConfig
}

// BreakerConfig tunes the circuit breaker in front of the backend.
type BreakerConfig struct {
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
}

// ObsConfig covers logging, metrics, tracing and profiling.
type ObsConfig struct {
	AppVersion       string
	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	LatencyBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	OTLPInsecure     bool
	SamplingRatio    float64
	PprofEnabled     bool
	PprofUser        string
	// PprofPassword is either plain text or an argon2id hash.
	PprofPassword string
}

type SecurityConfig struct {
	HeadersEnabled        bool
	HSTSEnabled           bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	TrustForwardedProto   bool
	MaxBodyBytes          int
}

// HealthConfig bounds readiness probes and graceful shutdown.
type HealthConfig struct {
	BackendTimeout  time.Duration
	RedisTimeout    time.Duration
	DBTimeout       time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment, after merging an optional
// .env file. Every invalid setting is reported, not just the first.
func Load() (*Config, error) {
	_ = godotenv.Load()
	k, err := environment()
	if err != nil {
		return nil, err
	}
	return parse(k)
}

// LoadForTests loads like Load with overrides layered over the process
// environment. An empty value unsets the key. The process environment is
// left untouched.
func LoadForTests(overrides map[string]string) (*Config, error) {
	k, err := environment()
	if err != nil {
		return nil, err
	}
	for key, value := range overrides {
		if value == "" {
			k.Delete(key)
			continue
		}
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
	}
	return parse(k)
}

func environment() (*koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return k, nil
}

func parse(k *koanf.Koanf) (*Config, error) {
	r := reader{k: k}
	cfg := &Config{
		AppEnv:             r.str("APP_ENV", "development"),
		Port:               r.str("PORT", "8080"),
		TerminalName:       r.str("TERMINAL_NAME", "pos-gateway"),
		CurrencyCode:       strings.ToUpper(r.str("CURRENCY_CODE", "CLP")),
		BackendBaseURL:     strings.TrimRight(r.str("BACKEND_BASE_URL", ""), "/"),
		BackendTimeout:     r.duration("BACKEND_TIMEOUT", 10*time.Second),
		BackendReadRetries: r.integer("BACKEND_READ_RETRIES", 3),
		BackendJWTSecret:   k.String("BACKEND_JWT_SECRET"),
		RedisURL:           r.str("REDIS_URL", ""),
		DatabaseURL:        r.str("DATABASE_URL", ""),
		CORSAllowedOrigins: r.list("CORS_ALLOWED_ORIGINS", ""),
		SessionTTL:         r.duration("SESSION_TTL", 12*time.Hour),
		CatalogCacheTTL:    r.duration("CATALOG_CACHE_TTL", 15*time.Second),
		IdempotencyTTL:     r.duration("IDEMPOTENCY_TTL", 24*time.Hour),
		FinalizeLockTTL:    r.duration("FINALIZE_LOCK_TTL", 30*time.Second),

		POSPaymentMethods:       r.methods("POS_PAYMENT_METHODS", "debit,credit,transfer,cash"),
		SelfOrderPaymentMethods: r.methods("SELF_ORDER_PAYMENT_METHODS", "debit,credit,transfer"),
		SelfOrderCashEnabled:    r.flag("SELF_ORDER_CASH_ENABLED", false),
		SelfOrderServiceToken:   r.str("SELF_ORDER_SERVICE_TOKEN", ""),

		LoginRateLimit:      r.integer("LOGIN_RATE_LIMIT", 10),
		LoginRateWindow:     r.duration("LOGIN_RATE_WINDOW", time.Minute),
		SelfOrderRateLimit:  r.integer("SELF_ORDER_RATE_LIMIT", 120),
		SelfOrderRateWindow: r.duration("SELF_ORDER_RATE_WINDOW", time.Minute),

		Breaker: BreakerConfig{
			MinRequests:  r.integer("BACKEND_BREAKER_MIN_REQUESTS", 10),
			FailureRatio: r.ratio("BACKEND_BREAKER_FAILURE_RATIO", 0.5),
			OpenFor:      r.duration("BACKEND_BREAKER_OPEN_FOR", 5*time.Second),
		},
		Obs: ObsConfig{
			AppVersion:       r.str("APP_VERSION", ""),
			LogFormat:        r.str("OBS_LOG_FORMAT", "json"),
			LogLevel:         r.str("OBS_LOG_LEVEL", "info"),
			MetricsEnabled:   r.flag("OBS_ENABLE_PROMETHEUS", true),
			MetricsNamespace: r.str("OBS_METRICS_NAMESPACE", "pos"),
			LatencyBuckets:   r.str("OBS_METRICS_BUCKETS_MS", ""),
			TracingEnabled:   r.flag("OBS_ENABLE_TRACING", true),
			TracingExporter:  r.str("OBS_TRACING_EXPORTER", "otlp"),
			OTLPEndpoint:     r.str("OBS_OTLP_ENDPOINT", ""),
			OTLPInsecure:     r.flag("OBS_OTLP_INSECURE", false),
			SamplingRatio:    r.ratio("OBS_TRACING_SAMPLING_RATIO", 1),
			PprofEnabled:     r.flag("OBS_ENABLE_PPROF", false),
			PprofUser:        r.str("SECURE_PPROF_BASIC_AUTH_USER", ""),
			PprofPassword:    r.str("SECURE_PPROF_BASIC_AUTH_PASS", ""),
		},
		Security: SecurityConfig{
			HeadersEnabled:        r.flag("SECURITY_HEADERS_ENABLED", true),
			HSTSEnabled:           r.flag("SECURITY_HSTS_ENABLED", false),
			HSTSMaxAge:            r.integer("SECURITY_HSTS_MAX_AGE", 31536000),
			HSTSIncludeSubdomains: r.flag("SECURITY_HSTS_INCLUDE_SUBDOMAINS", false),
			TrustForwardedProto:   r.flag("SECURITY_TRUST_FORWARDED_PROTO", false),
			MaxBodyBytes:          r.integer("SECURITY_MAX_BODY_BYTES", 64<<10),
		},
		Health: HealthConfig{
			BackendTimeout:  r.duration("HEALTH_READY_BACKEND_TIMEOUT", time.Second),
			RedisTimeout:    r.duration("HEALTH_READY_REDIS_TIMEOUT", 300*time.Millisecond),
			DBTimeout:       r.duration("HEALTH_READY_DB_TIMEOUT", 500*time.Millisecond),
			ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
	}
	if pprofUnprotected(cfg) {
		r.fail(errors.New("OBS_ENABLE_PPROF outside development requires SECURE_PPROF_BASIC_AUTH_USER"))
	}

	if cfg.BackendBaseURL == "" {
		r.fail(errors.New("BACKEND_BASE_URL is required"))
	} else if u, err := url.Parse(cfg.BackendBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		r.fail(fmt.Errorf("BACKEND_BASE_URL is not an absolute url: %q", cfg.BackendBaseURL))
	}
	if cfg.RedisURL == "" {
		r.fail(errors.New("REDIS_URL is required"))
	}
	if cfg.BackendTimeout <= 0 {
		r.fail(errors.New("BACKEND_TIMEOUT must be positive"))
	}
	if len(cfg.POSPaymentMethods) == 0 {
		r.fail(errors.New("POS_PAYMENT_METHODS must list at least one method"))
	}
	if len(r.errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(r.errs...))
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

// JournalEnabled reports whether finalize attempts are journaled to Postgres.
func (c *Config) JournalEnabled() bool {
	return c.DatabaseURL != ""
}

func pprofUnprotected(cfg *Config) bool {
	return cfg.Obs.PprofEnabled && cfg.Obs.PprofUser == "" && cfg.AppEnv != "development"
}

// reader reads typed settings and collects every parse failure.
type reader struct {
	k    *koanf.Koanf
	errs []error
}

func (r *reader) fail(err error) { r.errs = append(r.errs, err) }

func (r *reader) str(key, fallback string) string {
	if v := strings.TrimSpace(r.k.String(key)); v != "" {
		return v
	}
	return fallback
}

func (r *reader) duration(key string, fallback time.Duration) time.Duration {
	raw := r.str(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		r.fail(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func (r *reader) integer(key string, fallback int) int {
	raw := r.str(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		r.fail(fmt.Errorf("%s must be a non-negative integer, got %q", key, raw))
		return fallback
	}
	return n
}

func (r *reader) flag(key string, fallback bool) bool {
	raw := r.str(key, "")
	switch strings.ToLower(raw) {
	case "":
		return fallback
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		r.fail(fmt.Errorf("%s must be a boolean, got %q", key, raw))
		return fallback
	}
	return b
}

// ratio reads a float in (0, 1].
func (r *reader) ratio(key string, fallback float64) float64 {
	raw := r.str(key, "")
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 || f > 1 {
		r.fail(fmt.Errorf("%s must be a number in (0, 1], got %q", key, raw))
		return fallback
	}
	return f
}

func (r *reader) list(key, fallback string) []string {
	var out []string
	for _, part := range strings.Split(r.str(key, fallback), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// methods reads a payment method list, rejecting unknown methods.
func (r *reader) methods(key, fallback string) []string {
	var out []string
	for _, raw := range r.list(key, fallback) {
		m, err := ledger.ParseMethod(raw)
		if err != nil {
			r.fail(fmt.Errorf("%s: %w", key, err))
			continue
		}
		out = append(out, string(m))
	}
	return out
}
