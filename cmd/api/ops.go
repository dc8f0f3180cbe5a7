package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/pos-terminal/internal/backend"
	"github.com/noah-isme/pos-terminal/internal/common"
	"github.com/noah-isme/pos-terminal/internal/health"
	"github.com/noah-isme/pos-terminal/internal/ledger"
	"github.com/noah-isme/pos-terminal/internal/settlement"
)

// channelPolicy narrows base to the configured tender names.
func channelPolicy(base settlement.Policy, names []string, cashEnabled bool) (settlement.Policy, error) {
	methods := make([]ledger.Method, 0, len(names))
	for _, name := range names {
		m, err := ledger.ParseMethod(name)
		if err != nil {
			return base, fmt.Errorf("%s policy: %w", base.Channel, err)
		}
		methods = append(methods, m)
	}
	base.AllowedMethods = methods
	base.CashEnabled = cashEnabled
	return base, nil
}

// serviceToken forwards the kiosk's backend token on self-order calls,
// which carry no staff session.
func serviceToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(common.WithAccessToken(r.Context(), token)))
		})
	}
}

type readinessChecker struct {
	backend *backend.Client
	db      *pgxpool.Pool
	redis   redis.Cmdable
}

func (c readinessChecker) PingBackend(ctx context.Context, timeout time.Duration) error {
	if c.backend == nil {
		return errors.New("backend not configured")
	}
	return withTimeout(ctx, timeout, c.backend.Ping)
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return health.ErrNotConfigured
	}
	return withTimeout(ctx, timeout, c.db.Ping)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	return withTimeout(ctx, timeout, func(ctx context.Context) error {
		return c.redis.Ping(ctx).Err()
	})
}

func withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

func pprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

// basicAuth guards h with a single user. An empty user leaves h open, which
// config only allows in development.
func basicAuth(h http.Handler, user, password string) http.Handler {
	if user == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if ok && subtle.ConstantTimeCompare([]byte(u), []byte(user)) == 1 && passwordMatches(p, password) {
			h.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="pos-gateway"`)
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "credentials required", nil)
	})
}

// passwordMatches accepts the configured password in plain text or as an
// argon2id hash.
func passwordMatches(given, configured string) bool {
	if strings.HasPrefix(configured, "$argon2id$") {
		match, err := argon2id.ComparePasswordAndHash(given, configured)
		return err == nil && match
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(configured)) == 1
}
