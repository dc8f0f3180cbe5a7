package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-terminal/internal/common"
)

type itemRequest struct {
	ProductID string `json:"product_id"`
}

func decodingHandler(t *testing.T, got *string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req itemRequest
		if err := common.DecodeJSON(r, &req); err != nil {
			appErr, _ := common.AsAppError(err)
			common.WriteAppError(w, appErr)
			return
		}
		*got = req.ProductID
		w.WriteHeader(http.StatusNoContent)
	})
}

func jsonPost(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pos/T1/sale/items", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestBodyLimitAllowsWithinLimit(t *testing.T) {
	var got string
	handler := BodyLimit{Max: 64, RequireJSON: true}.Middleware(decodingHandler(t, &got))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, jsonPost(`{"product_id":"loaf"}`))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "loaf", got)
}

func TestBodyLimitRejectsDeclaredLength(t *testing.T) {
	var got string
	handler := BodyLimit{Max: 5}.Middleware(decodingHandler(t, &got))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, jsonPost(`{"product_id":"loaf"}`))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Contains(t, rr.Body.String(), `"max_bytes":5`)
	require.Empty(t, got)
}

func TestBodyLimitCutsUndeclaredLength(t *testing.T) {
	var got string
	handler := BodyLimit{Max: 8}.Middleware(decodingHandler(t, &got))

	req := jsonPost(`{"product_id":"croissant"}`)
	req.ContentLength = -1
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Contains(t, rr.Body.String(), "PAYLOAD_TOO_LARGE")
}

func TestBodyLimitRequiresJSON(t *testing.T) {
	var got string
	handler := BodyLimit{Max: 64, RequireJSON: true}.Middleware(decodingHandler(t, &got))

	req := jsonPost(`product_id=loaf`)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rr.Code)

	req = jsonPost(`{"product_id":"loaf"}`)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
}
