package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotConfigured is returned by probes for optional dependencies that are
// switched off. It is reported but does not fail readiness.
var ErrNotConfigured = errors.New("not configured")

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingBackend(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
	PingDB(ctx context.Context, timeout time.Duration) error
}

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the readiness flag; it is cleared when the server starts draining.
func SetReady(v bool) { ready.Store(v) }

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker        Checker
	BackendTimeout time.Duration
	DBTimeout      time.Duration
	RedisTimeout   time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes the backend, Redis and the journal database in parallel.
// A disabled journal does not fail readiness.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		writeStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	if h.Checker == nil {
		writeStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "no checker configured"})
		return
	}

	probes := []struct {
		name    string
		timeout time.Duration
		ping    func(context.Context, time.Duration) error
	}{
		{"backend", orDefault(h.BackendTimeout, time.Second), h.Checker.PingBackend},
		{"redis", orDefault(h.RedisTimeout, 300*time.Millisecond), h.Checker.PingRedis},
		{"db", orDefault(h.DBTimeout, 500*time.Millisecond), h.Checker.PingDB},
	}
	results := make([]string, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = probe(p.ping(r.Context(), p.timeout))
		}()
	}
	wg.Wait()

	code := http.StatusOK
	status := map[string]string{"status": "ready"}
	for i, p := range probes {
		status[p.name] = results[i]
		if results[i] != "ok" && results[i] != "disabled" {
			code = http.StatusServiceUnavailable
			status["status"] = "degraded"
		}
	}
	writeStatus(w, code, status)
}

func writeStatus(w http.ResponseWriter, code int, status map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func probe(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotConfigured):
		return "disabled"
	default:
		return err.Error()
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
