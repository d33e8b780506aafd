package session

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const defaultServerPort = "8999"

// normalizeServerAddr accepts host, host:port, IPv6, and http(s) URLs and
// returns the canonical (host, port) pair for transport dialing.
func normalizeServerAddr(raw string) (host string, port int, err error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", 0, fmt.Errorf("server address is required")
	}

	if strings.Contains(s, "://") {
		u, perr := url.Parse(s)
		if perr != nil {
			return "", 0, fmt.Errorf("invalid server address: %w", perr)
		}
		if u.Host == "" {
			return "", 0, fmt.Errorf("invalid server address: missing host")
		}
		s = u.Host
	}

	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", 0, fmt.Errorf("invalid server address: missing host")
	}

	h := s
	p := defaultServerPort

	if hh, pp, serr := net.SplitHostPort(s); serr == nil {
		h = hh
		p = pp
	} else if ip := net.ParseIP(s); ip != nil && strings.Contains(s, ":") {
		h = s
	} else if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		h = strings.TrimPrefix(strings.TrimSuffix(s, "]"), "[")
	} else if strings.Contains(s, ":") {
		return "", 0, fmt.Errorf("invalid server address: %q", raw)
	}

	if h == "" {
		return "", 0, fmt.Errorf("invalid server address: missing host")
	}

	n, perr := strconv.Atoi(p)
	if perr != nil || n < 1 || n > 65535 {
		return "", 0, fmt.Errorf("invalid server port: %q", p)
	}

	return h, n, nil
}
