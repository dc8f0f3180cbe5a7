package security

import (
	"net/http"
	"strconv"
	"strings"
)

// Headers hardens gateway responses. Terminals only consume JSON, so the
// policy forbids every content source and framing.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	// TrustForwardedProto treats X-Forwarded-Proto: https as a TLS request
	// when the gateway sits behind a terminating proxy.
	TrustForwardedProto bool
}

func (h Headers) hsts() string {
	maxAge := h.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = 31536000
	}
	value := "max-age=" + strconv.Itoa(maxAge)
	if h.HSTSIncludeSubdomains {
		value += "; includeSubDomains"
	}
	return value
}

func (h Headers) secure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return h.TrustForwardedProto && strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}

// Middleware sets the headers before the handler writes. Sale, session and
// receipt payloads are marked no-store.
func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	static := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Cache-Control":           "no-store",
	}
	hsts := h.hsts()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		for k, v := range static {
			headers.Set(k, v)
		}
		if h.EnableHSTS && h.secure(r) {
			headers.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}
