package httpclient

import (
	"io"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/timebot/core/netutil"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 30 * time.Second
	defaultResponseTimeout   = 5 * time.Second
	defaultClientTimeout     = 30 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryBackoff      = 2 * time.Second
)

// Options tune the client. Zero values select the defaults above; a negative
// RetryAttempts disables retries.
type Options struct {
	Timeout time.Duration
	// HeaderTimeout bounds the wait for response headers. Long-poll calls
	// must set it above the poll timeout.
	HeaderTimeout time.Duration
	RetryAttempts int
	Backoff       time.Duration
	// RetryStatus retries responses with a transient status code as well as
	// transport errors. Only enable it for idempotent endpoints.
	RetryStatus bool
	// Base replaces the tuned transport, mainly for tests.
	Base http.RoundTripper
}

// New returns an HTTP client with pooled connections and retries on
// transient network failures.
func New(opts Options) *http.Client {
	headerTimeout := opts.HeaderTimeout
	if headerTimeout <= 0 {
		headerTimeout = defaultResponseTimeout
	}
	base := opts.Base
	if base == nil {
		base = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       defaultIdleConnTimeout,
			TLSHandshakeTimeout:   defaultTLSHandshake,
			ResponseHeaderTimeout: headerTimeout,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	attempts := opts.RetryAttempts
	switch {
	case attempts == 0:
		attempts = defaultRetryAttempts
	case attempts < 0:
		attempts = 0
	}
	backoff := opts.Backoff
	if backoff == 0 {
		backoff = defaultRetryBackoff
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &retryTransport{
			base:        base,
			maxRetries:  attempts,
			backoff:     backoff,
			retryStatus: opts.RetryStatus,
		},
	}
}

type retryTransport struct {
	base        http.RoundTripper
	maxRetries  int
	backoff     time.Duration
	retryStatus bool
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	attempts := t.maxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		currReq := req
		if attempt > 1 {
			currReq = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				currReq.Body = body
			} else if req.Body != nil && req.Body != http.NoBody {
				return nil, lastErr
			}
		}

		resp, err := base.RoundTrip(currReq)
		if err == nil {
			if !t.retryStatus || !netutil.RetryableStatus(resp.StatusCode) || attempt == attempts {
				return resp, nil
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			lastErr = &StatusError{Code: resp.StatusCode}
		} else {
			lastErr = err
			if !netutil.ShouldRetry(err) || attempt == attempts {
				break
			}
		}

		delay := t.backoff * time.Duration(attempt)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}

	return nil, lastErr
}

// StatusError records a transient status that was retried. It is only
// returned when the request body could not be replayed.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "transient response status " + http.StatusText(e.Code)
}
