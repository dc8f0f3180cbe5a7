package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-terminal/internal/obs"
)

func TestRequestLoggerCarriesFieldsAddedDownstream(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(obs.RequestLogger{Logger: zerolog.New(&buf)}.Middleware)
	r.Get("/api/v1/pos/{terminalID}/sale", func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("employee_id", "emp-7")
		})
		w.WriteHeader(http.StatusConflict)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/pos/t-9/sale", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "warn", line["level"])
	require.Equal(t, "http_request", line["message"])
	require.Equal(t, "/api/v1/pos/{terminalID}/sale", line["route"])
	require.Equal(t, "t-9", line["terminal_id"])
	require.Equal(t, "emp-7", line["employee_id"])
	require.EqualValues(t, http.StatusConflict, line["status"])
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger := obs.NewLogger("json", "chatty")
	require.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	logger = obs.NewLogger("console", "debug")
	require.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}
