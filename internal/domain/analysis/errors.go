package analysis

import "errors"

// ErrQuotaExceeded indicates the caller's usage allowance is exhausted
// (HTTP 403 from the service). Fatal: never retried, always surfaced.
var ErrQuotaExceeded = errors.New("analysis quota exceeded")

// ErrRateLimited indicates the service asked the caller to back off
// (HTTP 429). Transient: retried up to a bound, then surfaced.
var ErrRateLimited = errors.New("analysis rate limited")

// ErrProtocol indicates a non-JSON or schema-mismatched response.
// Surfaced immediately, never retried.
var ErrProtocol = errors.New("malformed analysis response")
