package common_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-terminal/internal/common"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIdemRejectsReplay(t *testing.T) {
	idem := common.Idem{R: newRedis(t), TTL: time.Minute}
	calls := 0
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/pos/t1/sale/finalize", nil)
		req.Header.Set("Idempotency-Key", "abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, want, rec.Code, "request %d", i)
	}
	require.Equal(t, 1, calls)
}

func TestIdemReleasesKeyOnFailure(t *testing.T) {
	idem := common.Idem{R: newRedis(t), TTL: time.Minute}
	status := http.StatusBadGateway
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	req := httptest.NewRequest(http.MethodPost, "/finalize", nil)
	req.Header.Set("Idempotency-Key", "retry-me")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	status = http.StatusCreated
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.Clone(req.Context()))
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestIdemPassThroughWithoutHeader(t *testing.T) {
	idem := common.Idem{}
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}
