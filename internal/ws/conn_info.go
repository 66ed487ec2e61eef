package ws

import (
	"net"
	"net/http"
	"strings"
)

// ConnInfo carries request-scoped identity attached to a connection for audit
// and error reporting.
type ConnInfo struct {
	DeviceID  string
	IP        string
	RequestID string
	TraceID   string
}

// connInfoFromRequest captures device, address, and correlation identity from
// the upgrade request. The device and request IDs come from headers the client
// controls; the IP prefers the first X-Forwarded-For hop so connections behind
// the ingress proxy still resolve to the caller.
func connInfoFromRequest(r *http.Request, traceID string) ConnInfo {
	return ConnInfo{
		DeviceID:  r.Header.Get("X-Device-Id"),
		IP:        clientIP(r),
		RequestID: r.Header.Get("X-Request-Id"),
		TraceID:   traceID,
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
