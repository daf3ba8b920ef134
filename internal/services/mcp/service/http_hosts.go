package service

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
)

var (
	errInvalidHost   = errors.New("invalid host")
	errInvalidOrigin = errors.New("invalid origin")
)

// hostGuard rejects requests whose Host or Origin is neither loopback nor
// explicitly allowed, which blocks DNS rebinding against a local server.
type hostGuard struct {
	allowed map[string]struct{}
}

func newHostGuard(hosts []string) hostGuard {
	allowed := make(map[string]struct{}, len(hosts))
	for _, entry := range hosts {
		if trimmed := strings.ToLower(strings.TrimSpace(entry)); trimmed != "" {
			allowed[trimmed] = struct{}{}
		}
	}
	return hostGuard{allowed: allowed}
}

func (g hostGuard) check(r *http.Request) error {
	if r == nil || !g.allows(r.Host) {
		return errInvalidHost
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return nil
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" || !g.allows(parsed.Host) {
		return errInvalidOrigin
	}
	return nil
}

func (g hostGuard) allows(hostport string) bool {
	host, ok := hostname(hostport)
	if !ok {
		return false
	}
	host = strings.ToLower(host)
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	_, ok = g.allowed[host]
	return ok
}

// hostname strips an optional port and IPv6 brackets.
func hostname(hostport string) (string, bool) {
	hostport = strings.TrimSpace(hostport)
	switch {
	case hostport == "":
		return "", false
	case strings.HasPrefix(hostport, "["):
		if host, _, err := net.SplitHostPort(hostport); err == nil {
			return host, true
		}
		if strings.HasSuffix(hostport, "]") {
			return strings.TrimSuffix(strings.TrimPrefix(hostport, "["), "]"), true
		}
		return "", false
	case strings.Count(hostport, ":") > 1:
		return hostport, true
	case strings.Contains(hostport, ":"):
		host, _, err := net.SplitHostPort(hostport)
		if err != nil {
			return "", false
		}
		return host, true
	default:
		return hostport, true
	}
}
