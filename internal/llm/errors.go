package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// Kind classifies a completion failure for upstream error mapping.
type Kind string

const (
	KindRateLimited         Kind = "rate_limited"
	KindBadRequest          Kind = "bad_request"
	KindUnauthenticated     Kind = "unauthenticated"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindUpstreamError       Kind = "upstream_error"
)

// Error wraps a completion failure with its classification and, when the
// upstream reported one, the HTTP status.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("llm: %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("llm: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the classification of err, defaulting to upstream_error.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUpstreamError
}

// transientMessageMarkers flag errors that never carried an HTTP status but
// read as connectivity failures.
var transientMessageMarkers = []string{"timeout", "network", "econnreset"}

// isRetryable reports whether a failed attempt is worth repeating: HTTP 429,
// any 5xx, or a transport-level error whose message matches a known
// transient marker. Client errors (400, 401, 403) and context cancellation
// are terminal.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return true
		case apiErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMessageMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	// A per-attempt deadline reads as "deadline exceeded", not "timeout".
	return errors.Is(err, context.DeadlineExceeded)
}

// classify maps the final error of a completion call to its Kind.
func classify(err error) *Error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return &Error{Kind: KindRateLimited, Status: apiErr.StatusCode, Err: err}
		case apiErr.StatusCode == 400:
			return &Error{Kind: KindBadRequest, Status: apiErr.StatusCode, Err: err}
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return &Error{Kind: KindUnauthenticated, Status: apiErr.StatusCode, Err: err}
		case apiErr.StatusCode >= 500:
			return &Error{Kind: KindUpstreamUnavailable, Status: apiErr.StatusCode, Err: err}
		default:
			return &Error{Kind: KindUpstreamError, Status: apiErr.StatusCode, Err: err}
		}
	}
	if isRetryable(err) {
		return &Error{Kind: KindUpstreamUnavailable, Err: err}
	}
	return &Error{Kind: KindUpstreamError, Err: err}
}
