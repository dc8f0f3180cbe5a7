package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/pos-terminal/internal/common"
)

// SessionHeader carries the gateway session id when no bearer header is sent.
const SessionHeader = "X-Session-ID"

// Middleware wires terminal sessions into HTTP handlers.
type Middleware struct {
	Service *Service
}

// RequireSession rejects requests without a live session and otherwise
// attaches the session, employee id and backend token to the context.
func (m Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Service == nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "session service not configured", nil)
			return
		}
		id := extractSessionID(r)
		if id == "" {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
			return
		}
		sess, err := m.Service.Resolve(r.Context(), id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "session expired or unknown", nil)
				return
			}
			common.JSONError(w, http.StatusServiceUnavailable, "SESSION_STORE_UNAVAILABLE", "session store unavailable", nil)
			return
		}
		zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("employee_id", sess.Employee.ID)
		})
		ctx := WithSession(r.Context(), sess)
		ctx = common.WithUserID(ctx, sess.Employee.ID)
		ctx = common.WithAccessToken(ctx, sess.Token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects sessions whose employee lacks role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := FromContext(r.Context())
			if !ok {
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
				return
			}
			if sess.Employee.Role != role {
				common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractSessionID(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(r.Header.Get(SessionHeader))
}
