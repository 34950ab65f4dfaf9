// Package netutil classifies transport failures for the retry loops of the
// Telegram sender and the data-access HTTP client.
package netutil

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
)

// ShouldRetry reports whether err is a transient transport failure: a
// timeout, a refused or reset connection, a failed dial or a connection cut
// mid-response. Cancellation is never retried.
func ShouldRetry(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// RetryableStatus reports whether an HTTP status signals a transient
// server-side condition.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
		return true
	}
	return false
}
