package remote

import (
	"fmt"
	"time"

	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
)

// QuotaError is the terminal HTTP 403 condition. Matches
// analysis.ErrQuotaExceeded under errors.Is.
type QuotaError struct {
	Detail string
}

func (e *QuotaError) Error() string {
	if e.Detail == "" {
		return "quota exceeded"
	}
	return "quota exceeded: " + e.Detail
}

func (e *QuotaError) Is(target error) bool { return target == analysis.ErrQuotaExceeded }

// RateLimitError is the transient HTTP 429 condition, carrying the delay the
// service asked for (60s when the response named none).
type RateLimitError struct {
	RetryAfter time.Duration
	Detail     string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool { return target == analysis.ErrRateLimited }

// ServiceError is any other non-2xx response. Not retried.
type ServiceError struct {
	StatusCode int
	Detail     string
}

func (e *ServiceError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("analysis service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("analysis service returned status %d: %s", e.StatusCode, e.Detail)
}
