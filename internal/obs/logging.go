package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// NewLogger builds the process logger. format is "json" (default) or
// "console"; an unknown level falls back to info.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text", "pretty":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// RequestLogger emits one "http_request" line per request. Handlers further
// down may add fields with zerolog.Ctx(ctx).UpdateContext; they appear on
// that line.
type RequestLogger struct {
	Logger zerolog.Logger
}

func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLog := l.Logger.With().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		r = r.WithContext(reqLog.WithContext(r.Context()))

		rec := NewStatusRecorder(w)
		started := time.Now()
		next.ServeHTTP(rec, r)

		status := rec.Status()
		var evt *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			evt = reqLog.Error()
		case status >= http.StatusBadRequest:
			evt = reqLog.Warn()
		default:
			evt = reqLog.Info()
		}
		evt.Str("route", routeOf(r, r.URL.Path)).
			Int("status", status).
			Float64("duration_ms", DurationMillis(time.Since(started))).
			Int64("bytes", rec.BytesWritten()).
			Str("remote_addr", r.RemoteAddr)
		if id := terminalOf(r); id != "" {
			evt.Str("terminal_id", id)
		}
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		if ua := r.UserAgent(); ua != "" {
			evt.Str("user_agent", ua)
		}
		evt.Msg("http_request")
	})
}
