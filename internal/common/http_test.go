package common_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-terminal/internal/common"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	require.Equal(t, "10.1.2.3", common.ClientIP(req))

	req.RemoteAddr = "[::ffff:192.0.2.7]:443"
	require.Equal(t, "192.0.2.7", common.ClientIP(req))

	req.RemoteAddr = "198.51.100.4"
	require.Equal(t, "198.51.100.4", common.ClientIP(req))

	req.RemoteAddr = "pipe"
	req.Header.Set("X-Forwarded-For", "junk, 203.0.113.9")
	require.Equal(t, "203.0.113.9", common.ClientIP(req))

	req.Header.Del("X-Forwarded-For")
	require.Equal(t, "pipe", common.ClientIP(req))
	require.Empty(t, common.ClientIP(nil))
}
