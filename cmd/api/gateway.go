package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pos-terminal/internal/audit"
	"github.com/noah-isme/pos-terminal/internal/auth"
	"github.com/noah-isme/pos-terminal/internal/backend"
	"github.com/noah-isme/pos-terminal/internal/catalog"
	"github.com/noah-isme/pos-terminal/internal/common"
	"github.com/noah-isme/pos-terminal/internal/config"
	"github.com/noah-isme/pos-terminal/internal/health"
	"github.com/noah-isme/pos-terminal/internal/lock"
	"github.com/noah-isme/pos-terminal/internal/obs"
	"github.com/noah-isme/pos-terminal/internal/ratelimit"
	"github.com/noah-isme/pos-terminal/internal/resilience"
	"github.com/noah-isme/pos-terminal/internal/security"
	"github.com/noah-isme/pos-terminal/internal/settlement"
	"github.com/noah-isme/pos-terminal/internal/terminal"
)

// gateway holds the handlers and middleware the router mounts.
type gateway struct {
	readiness health.Handler
	auth      *auth.Handler
	session   auth.Middleware
	products  *catalog.Handler
	journal   audit.Handler
	pos       terminal.Handler
	selfOrder terminal.Handler
	idem      common.Idem
	login     ratelimit.Handler
	kiosk     ratelimit.Handler
}

func assemble(cfg *config.Config, logger zerolog.Logger, rdb *redis.Client, pool *pgxpool.Pool) (*gateway, error) {
	breaker := resilience.NewBreaker(cfg.Breaker.MinRequests, cfg.Breaker.FailureRatio, cfg.Breaker.OpenFor).
		WithTarget("backend").
		WithLogger(logger.With().Str("component", "breaker").Logger())
	api, err := backend.New(backend.Config{
		BaseURL:     cfg.BackendBaseURL,
		Timeout:     cfg.BackendTimeout,
		ReadRetries: cfg.BackendReadRetries,
		Breaker:     breaker,
	})
	if err != nil {
		return nil, err
	}

	products, err := catalog.NewService(catalog.ServiceConfig{
		Source: api,
		Cache:  catalog.NewCache(rdb, cfg.CatalogCacheTTL),
		Logger: &logger,
	})
	if err != nil {
		return nil, err
	}
	sessions, err := auth.NewService(auth.Config{
		Backend: api,
		Store:   auth.NewStore(rdb),
		TTL:     cfg.SessionTTL,
		Secret:  cfg.BackendJWTSecret,
		Logger:  &logger,
	})
	if err != nil {
		return nil, err
	}

	var store audit.Store = audit.NopStore{}
	if pool != nil {
		store = audit.PGStore{Pool: pool}
	}
	journal := audit.Service{Store: store, Enabled: pool != nil, Logger: logger}

	pos, err := channelPolicy(settlement.POSPolicy(), cfg.POSPaymentMethods, true)
	if err != nil {
		return nil, err
	}
	selfOrder, err := channelPolicy(settlement.SelfOrderPolicy(), cfg.SelfOrderPaymentMethods, cfg.SelfOrderCashEnabled)
	if err != nil {
		return nil, err
	}
	terminals, err := terminal.NewService(terminal.Config{
		Registry:  terminal.NewRegistry(pos, selfOrder),
		Catalog:   products,
		Clients:   api,
		Submitter: api,
		Locker:    lock.Locker{R: rdb, Prefix: "pos:lock:"},
		LockTTL:   cfg.FinalizeLockTTL,
		Journal:   journal,
		Logger:    &logger,
	})
	if err != nil {
		return nil, err
	}

	loginStore, err := ratelimit.NewFixedWindow(rdb, "")
	if err != nil {
		return nil, fmt.Errorf("login limiter: %w", err)
	}
	limiterDown := func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable, allowing request") }

	return &gateway{
		readiness: health.Handler{
			Checker:        readinessChecker{backend: api, db: pool, redis: rdb},
			BackendTimeout: cfg.Health.BackendTimeout,
			DBTimeout:      cfg.Health.DBTimeout,
			RedisTimeout:   cfg.Health.RedisTimeout,
		},
		auth:      &auth.Handler{Service: sessions},
		session:   auth.Middleware{Service: sessions},
		products:  catalog.NewHandler(catalog.HandlerConfig{Service: products}),
		journal:   audit.Handler{Service: journal},
		pos:       terminal.Handler{Service: terminals, Channel: settlement.ChannelPOS},
		selfOrder: terminal.Handler{Service: terminals, Channel: settlement.ChannelSelfOrder},
		idem:      common.Idem{R: rdb, TTL: cfg.IdempotencyTTL},
		login: ratelimit.Handler{
			Name:    "login",
			Limiter: loginStore,
			Config:  ratelimit.Config{Key: ratelimit.ByClientIP("login"), Window: cfg.LoginRateWindow, Max: cfg.LoginRateLimit},
			OnError: limiterDown,
		},
		kiosk: ratelimit.Handler{
			Name:    "self_order",
			Limiter: ratelimit.Limiter{Client: rdb},
			Config:  ratelimit.Config{Key: ratelimit.ByTerminal("self_order"), Window: cfg.SelfOrderRateWindow, Max: cfg.SelfOrderRateLimit},
			OnError: limiterDown,
		},
	}, nil
}

func (g *gateway) router(cfg *config.Config, logger zerolog.Logger, tracing bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	if tracing {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.Obs.MetricsEnabled {
		buckets, err := obs.ParseBuckets(cfg.Obs.LatencyBuckets)
		if err != nil {
			logger.Warn().Err(err).Msg("OBS_METRICS_BUCKETS_MS ignored")
		}
		r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, buckets, nil)}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:                cfg.Security.HeadersEnabled,
		EnableHSTS:            cfg.Security.HSTSEnabled,
		HSTSMaxAge:            cfg.Security.HSTSMaxAge,
		HSTSIncludeSubdomains: cfg.Security.HSTSIncludeSubdomains,
		TrustForwardedProto:   cfg.Security.TrustForwardedProto,
	}.Middleware)
	r.Use(security.BodyLimit{Max: int64(cfg.Security.MaxBodyBytes), RequireJSON: true}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", auth.SessionHeader},
		ExposedHeaders:   []string{"X-Total-Count", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           int((5 * time.Minute).Seconds()),
	}))

	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.PprofEnabled {
		r.Mount("/debug/pprof", basicAuth(pprofMux(), cfg.Obs.PprofUser, cfg.Obs.PprofPassword))
	}
	r.Get("/health/live", g.readiness.Live)
	r.Get("/health/ready", g.readiness.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.With(g.login.Middleware).Post("/auth/login", g.auth.Login)
		v.Group(func(staff chi.Router) {
			staff.Use(g.session.RequireSession)
			staff.Post("/auth/logout", g.auth.Logout)
			staff.Get("/auth/me", g.auth.Me)
			staff.Get("/products", g.products.Products)
			staff.Route("/pos/{terminalID}", func(p chi.Router) {
				g.pos.Routes(p, g.idem.Middleware)
				p.With(auth.RequireRole(auth.RoleAdministrator)).Get("/journal", g.journal.List)
			})
		})
		v.Route("/self-order/{terminalID}", func(s chi.Router) {
			s.Use(g.kiosk.Middleware, serviceToken(cfg.SelfOrderServiceToken))
			g.selfOrder.Routes(s, g.idem.Middleware)
			s.Get("/products", g.products.Products)
		})
	})
	return r
}

func corsOrigins(configured []string) []string {
	if len(configured) == 0 {
		return []string{"*"}
	}
	return configured
}
