package common

import (
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the normalised caller address of r. The router runs
// chi's RealIP first, so RemoteAddr already reflects a trusted proxy's
// forwarding headers; those headers are read here only when RemoteAddr is
// not an address at all.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if addr, ok := parseAddr(r.RemoteAddr); ok {
		return addr
	}
	for _, candidate := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if addr, ok := parseAddr(candidate); ok {
			return addr
		}
	}
	if addr, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
		return addr
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func parseAddr(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return ap.Addr().Unmap().String(), true
	}
	if a, err := netip.ParseAddr(raw); err == nil {
		return a.Unmap().String(), true
	}
	return "", false
}
