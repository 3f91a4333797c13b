package common

import (
	"net"
	"net/http"
)

// ClientIP returns the request's remote host without the port. Proxy headers
// are not consulted here; chi's RealIP middleware has already folded them
// into RemoteAddr by the time handlers run.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
