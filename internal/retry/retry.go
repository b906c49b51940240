// Package retry runs remote calls under a bounded exponential backoff and
// classifies their failures into domain error kinds.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"GameHarvester/internal/domain"
)

const (
	defaultBaseDelay = 2 * time.Second
	defaultFactor    = 2.0
	defaultMaxDelay  = 60 * time.Second
)

// Policy configures a retry loop. MaxRetries counts retries, so fn runs at
// most MaxRetries+1 times.
type Policy struct {
	MaxRetries  int
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
	CallTimeout time.Duration

	// Classify maps an error to a kind; defaults to Classify.
	Classify func(error) domain.ErrorKind
	// Sleep overrides the backoff wait (tests).
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry observes every scheduled retry.
	OnRetry func(attempt int, kind domain.ErrorKind, delay time.Duration, err error)
}

// Error is returned once a call gives up.
type Error struct {
	Kind       domain.ErrorKind
	StatusCode int
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Do invokes fn until it succeeds, fails with a non-retryable kind, or the
// retry budget is spent.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	classify := p.Classify
	if classify == nil {
		classify = Classify
	}

	maxAttempts := p.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		value, err := call(ctx, p.CallTimeout, fn)
		if err == nil {
			return value, nil
		}

		kind := classify(err)
		status := statusOf(err)
		if attempt >= maxAttempts || !Retryable(kind, status) || ctx.Err() != nil {
			return zero, &Error{Kind: kind, StatusCode: status, Attempts: attempt, Err: err}
		}

		delay := p.backoff(attempt - 1)
		if hint := retryAfterOf(err); hint > delay {
			delay = p.capDelay(hint)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, kind, delay, err)
		}
		if sErr := p.sleep(ctx, delay); sErr != nil {
			return zero, &Error{Kind: kind, StatusCode: status, Attempts: attempt, Err: err}
		}
	}
}

func call[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}

// Retryable reports whether a kind is worth another attempt.
func Retryable(kind domain.ErrorKind, status int) bool {
	switch kind {
	case domain.KindRateLimit, domain.KindTransient, domain.KindStorageUnavailable:
		return true
	case domain.KindHTTP:
		return status >= http.StatusInternalServerError
	default:
		return false
	}
}

// Classify maps an arbitrary error to a domain kind.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return ""
	}

	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) {
		if fetchErr.StatusCode == http.StatusTooManyRequests {
			return domain.KindRateLimit
		}
		return fetchErr.Kind
	}

	var retryErr *Error
	if errors.As(err, &retryErr) {
		return retryErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return domain.KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.KindTransient
	}

	if strings.Contains(err.Error(), "connection reset") {
		return domain.KindTransient
	}

	return domain.KindUnknown
}

// Attempts reports how many invocations a failed Do made, or 1 for foreign errors.
func Attempts(err error) int {
	var retryErr *Error
	if errors.As(err, &retryErr) {
		return retryErr.Attempts
	}
	return 1
}

// StatusCode extracts the HTTP status of a failure, if any.
func StatusCode(err error) int {
	return statusOf(err)
}

func statusOf(err error) int {
	var retryErr *Error
	if errors.As(err, &retryErr) && retryErr.StatusCode != 0 {
		return retryErr.StatusCode
	}
	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.StatusCode
	}
	return 0
}

func retryAfterOf(err error) time.Duration {
	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.RetryAfter
	}
	return 0
}

func (p Policy) backoff(retry int) time.Duration {
	base := p.BaseDelay
	if base < 0 {
		return 0
	}
	factor := p.Factor
	if factor < 1 {
		factor = defaultFactor
	}

	delay := float64(base)
	for i := 0; i < retry; i++ {
		delay *= factor
		if time.Duration(delay) >= p.maxDelay() {
			return p.maxDelay()
		}
	}
	return p.capDelay(time.Duration(delay))
}

func (p Policy) maxDelay() time.Duration {
	if p.MaxDelay > 0 {
		return p.MaxDelay
	}
	return defaultMaxDelay
}

func (p Policy) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if limit := p.maxDelay(); delay > limit {
		return limit
	}
	return delay
}

func (p Policy) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if p.Sleep != nil {
		return p.Sleep(ctx, delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DefaultPolicy returns the backoff used when nothing is configured.
func DefaultPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries: maxRetries,
		BaseDelay:  defaultBaseDelay,
		Factor:     defaultFactor,
		MaxDelay:   defaultMaxDelay,
	}
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func ParseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay
		}
	}
	return 0
}
