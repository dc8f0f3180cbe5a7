package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-terminal/internal/health"
)

type fakeDeps struct {
	backend, redis, db error
}

func (f fakeDeps) PingBackend(context.Context, time.Duration) error { return f.backend }
func (f fakeDeps) PingRedis(context.Context, time.Duration) error   { return f.redis }
func (f fakeDeps) PingDB(context.Context, time.Duration) error      { return f.db }

func ready(t *testing.T, h health.Handler) (int, map[string]string) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr.Code, body
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReady(t *testing.T) {
	cases := []struct {
		name   string
		deps   fakeDeps
		code   int
		expect map[string]string
	}{
		{
			name:   "all dependencies up",
			code:   http.StatusOK,
			expect: map[string]string{"status": "ready", "backend": "ok", "redis": "ok", "db": "ok"},
		},
		{
			name:   "journal switched off",
			deps:   fakeDeps{db: health.ErrNotConfigured},
			code:   http.StatusOK,
			expect: map[string]string{"status": "ready", "backend": "ok", "redis": "ok", "db": "disabled"},
		},
		{
			name:   "backend down",
			deps:   fakeDeps{backend: errors.New("dial tcp: connection refused")},
			code:   http.StatusServiceUnavailable,
			expect: map[string]string{"status": "degraded", "backend": "dial tcp: connection refused", "redis": "ok", "db": "ok"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := ready(t, health.Handler{Checker: tc.deps, RedisTimeout: 10 * time.Millisecond})
			require.Equal(t, tc.code, code)
			require.Equal(t, tc.expect, body)
		})
	}
}

func TestReadyWithoutChecker(t *testing.T) {
	code, body := ready(t, health.Handler{})
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "no checker configured", body["status"])
}

func TestReadyWhileDraining(t *testing.T) {
	t.Cleanup(func() { health.SetReady(true) })
	h := health.Handler{Checker: fakeDeps{}}

	health.SetReady(false)
	code, body := ready(t, h)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, map[string]string{"status": "draining"}, body)

	health.SetReady(true)
	code, _ = ready(t, h)
	require.Equal(t, http.StatusOK, code)
}
