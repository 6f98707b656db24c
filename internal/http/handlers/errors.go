// Package handlers defines HTTP-layer error codes used across all endpoints.
//
// These symbolic constants give clients and dashboards a stable,
// machine-readable taxonomy alongside human-readable messages. Codes are
// lowercase snake_case; the upstream_* family maps LLM failures and the
// *_unavailable pair maps infrastructure outages.
package handlers

const (
	ErrCodeValidationFailed    = "validation_failed"
	ErrCodeUnauthenticated     = "unauthenticated"
	ErrCodeUnsupportedMedia    = "unsupported_media"
	ErrCodeRateLimited         = "rate_limited"
	ErrCodeNotFound            = "not_found"
	ErrCodeAccessDenied        = "access_denied"
	ErrCodeUpstreamUnavailable = "upstream_unavailable"
	ErrCodeUpstreamError       = "upstream_error"
	ErrCodeStoreUnavailable    = "store_unavailable"
	ErrCodeCacheUnavailable    = "cache_unavailable"
	ErrCodeInternal            = "internal_error"
	ErrCodeMethodNotAllowed    = "method_not_allowed"
)
