package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/pos-terminal/internal/common"
	"github.com/noah-isme/pos-terminal/internal/obs"
)

// Config describes how to key requests and how many a key may make per window.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Allower admits or rejects one event for key within window.
type Allower interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error)
}

// Handler throttles a route group. Name labels the rate limit metrics.
type Handler struct {
	Name    string
	Limiter Allower
	Config  Config
	OnError func(error)
}

// ByClientIP keys requests by scope and caller address.
func ByClientIP(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		return scope + ":" + common.ClientIP(r)
	}
}

// ByTerminal keys requests by scope and the terminalID route parameter,
// falling back to the caller address.
func ByTerminal(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		if id := strings.TrimSpace(chi.URLParam(r, "terminalID")); id != "" {
			return scope + ":terminal:" + id
		}
		return scope + ":" + common.ClientIP(r)
	}
}

// Middleware answers 429 with Retry-After once a key is over its limit.
// Limiter failures are reported to OnError and let the request through.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Config.Key == nil || h.Limiter == nil || h.Config.Max <= 0 {
		return next
	}
	name := h.Name
	if name == "" {
		name = "default"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, resetAt, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			obs.ObserveRateLimit(name, "error")
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(h.Config.Max))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		if allowed {
			obs.ObserveRateLimit(name, "allowed")
			next.ServeHTTP(w, r)
			return
		}

		obs.ObserveRateLimit(name, "limited")
		retryAfter := retryAfterSeconds(resetAt, time.Now())
		headers.Set("Retry-After", strconv.Itoa(retryAfter))
		common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, try again shortly", map[string]any{"retry_after": retryAfter})
	})
}

// retryAfterSeconds rounds up so clients never retry before the reset.
func retryAfterSeconds(reset, now time.Time) int {
	wait := reset.Sub(now).Seconds()
	if wait <= 0 {
		return 0
	}
	return int(math.Ceil(wait))
}
