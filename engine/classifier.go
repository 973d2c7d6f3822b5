package engine

import (
	"context"
	"errors"
	"net"
	"os"
)

// isRetryableTransportError reports whether a transport-level failure should
// be retried. Everything that never produced an HTTP response is fair game,
// including TLS handshake failures and malformed responses, except caller
// cancellation, which must surface immediately.
func isRetryableTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// isTimeoutClass reports whether an error is a deadline-style failure, so
// exhausted retries can be reported as a timeout rather than the raw error.
func isTimeoutClass(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
