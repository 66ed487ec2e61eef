package ws

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnInfoFromRequestPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws", nil)
	req.RemoteAddr = "10.0.0.5:52311"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.5")
	req.Header.Set("X-Device-Id", "pixel-8")
	req.Header.Set("X-Request-Id", "req-123")

	info := connInfoFromRequest(req, "abc123")
	require.Equal(t, "203.0.113.9", info.IP)
	require.Equal(t, "pixel-8", info.DeviceID)
	require.Equal(t, "req-123", info.RequestID)
	require.Equal(t, "abc123", info.TraceID)
}

func TestConnInfoFromRequestFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws", nil)
	req.RemoteAddr = "192.0.2.4:60001"

	info := connInfoFromRequest(req, "")
	require.Equal(t, "192.0.2.4", info.IP)
	require.Empty(t, info.DeviceID)
	require.Empty(t, info.TraceID)
}
