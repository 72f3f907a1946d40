package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// IsTransient reports whether an error outside the provider classification
// path is worth retrying. The provider adapters classify their own API
// errors; what reaches this check is transport-level failure from the HTTPS
// clients (dial, TLS, idle-connection reuse) or rate-limiter waits.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// The net/http client wraps some of these without a typed error.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"no such host",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
