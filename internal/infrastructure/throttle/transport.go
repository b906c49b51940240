// Package throttle bounds the outbound request rate shared by all workers.
package throttle

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Transport waits on a token bucket before every request.
type Transport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

// NewTransport wraps base; requestsPerSecond <= 0 disables throttling.
func NewTransport(base http.RoundTripper, requestsPerSecond float64, burst int) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Transport{base: base, limiter: rate.NewLimiter(limit, burst)}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// NewClient returns an HTTP client whose requests share one bucket.
func NewClient(timeout time.Duration, requestsPerSecond float64, burst int) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(nil, requestsPerSecond, burst),
	}
}
