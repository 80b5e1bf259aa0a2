package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AuthError is an upstream credential rejection (HTTP 401 or 403). The key
// that produced it is permanently retired.
type AuthError struct {
	// Provider is the name of the provider that rejected the key.
	Provider string

	// StatusCode is 401 or 403.
	StatusCode int

	// Message is the error body from the provider.
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("provider %q rejected credentials (status %d): %s",
		e.Provider, e.StatusCode, e.Message)
}

// RateLimitError is an upstream rate limit (HTTP 429). The key is
// quarantined and the chain moves on to the next profile immediately:
// sibling keys of a rate-limited deployment are usually about to hit the
// same wall.
type RateLimitError struct {
	// Provider is the name of the provider that limited the request.
	Provider string

	// RetryAfter is the wait the provider suggested, if any.
	RetryAfter time.Duration

	// Message is the error body from the provider.
	Message string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %q rate limited (retry after %s): %s",
			e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("provider %q rate limited: %s", e.Provider, e.Message)
}

// UpstreamError is a provider-side failure (HTTP 5xx). The key is
// quarantined and the next key is tried.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("provider %q upstream error (status %d): %s",
		e.Provider, e.StatusCode, e.Message)
}

// BadRequestError is an upstream validation rejection (HTTP 400). The key
// is healthy and is released; the request itself is at fault. Drivers may
// recover: the raw body sometimes carries the model output that failed
// provider-side validation.
type BadRequestError struct {
	Provider string
	Message  string

	// Body is the raw error payload for driver-level recovery.
	Body string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("provider %q rejected request: %s", e.Provider, e.Message)
}

// TimeoutError is a request that exceeded the provider deadline.
type TimeoutError struct {
	Provider string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider %q request timeout after %s", e.Provider, e.Timeout)
}

// NetworkError is a transport-level failure before any HTTP status arrived.
type NetworkError struct {
	Provider string
	Cause    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("provider %q network error: %v", e.Provider, e.Cause)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// ParseError is a malformed provider response. During streaming a parse
// error on a single event is logged and the event skipped; a parse error on
// a unary body fails the attempt.
type ParseError struct {
	Provider string
	Raw      string
	Cause    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("provider %q response parse error: %v", e.Provider, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// StreamError is a failure after a stream was established.
type StreamError struct {
	Provider string
	Cause    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("provider %q stream error: %v", e.Provider, e.Cause)
}

func (e *StreamError) Unwrap() error { return e.Cause }

// Disposition is what an attempt's error means for the key that made it.
type Disposition int

const (
	// DispositionRelease returns the key to the pool. Success, client
	// errors, and anything that does not implicate the key itself.
	DispositionRelease Disposition = iota

	// DispositionQuarantine suspends the key for the quarantine TTL.
	DispositionQuarantine

	// DispositionRetire permanently removes the key.
	DispositionRetire
)

// KeyDisposition classifies an attempt error into the key lifecycle action.
// A nil error releases.
func KeyDisposition(err error) Disposition {
	if err == nil {
		return DispositionRelease
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return DispositionRetire
	}
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return DispositionQuarantine
	}
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return DispositionQuarantine
	}
	return DispositionRelease
}

// ErrorKind names an attempt error for metrics and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case isType[*AuthError](err):
		return "auth"
	case isType[*RateLimitError](err):
		return "rate_limit"
	case isType[*UpstreamError](err):
		return "upstream"
	case isType[*BadRequestError](err):
		return "bad_request"
	case isType[*TimeoutError](err), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case isType[*NetworkError](err):
		return "network"
	case isType[*ParseError](err):
		return "parse"
	case isType[*StreamError](err):
		return "stream"
	default:
		return "other"
	}
}

func isType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
