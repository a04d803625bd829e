package erp

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Failure taxonomy for calls to the external ERP. Callers branch on these to
// pick a retry policy:
//
//	ErrAuth       credentials invalid or refresh failed; fatal to the whole
//	              adapter until an operator intervenes, never retried
//	RateLimitError the remote asked us to back off; retried after the hint,
//	              never counted as a record-level failure
//	ErrTransient  5xx or timeout; retryable within the caller's attempt budget
//	ErrPermanent  non-429 4xx; requires a data or mapping fix, not retried
//	ErrValidation malformed remote payload; skip the single record, continue
var (
	ErrAuth       = errors.New("erp: authentication failed")
	ErrTransient  = errors.New("erp: transient upstream failure")
	ErrPermanent  = errors.New("erp: permanent upstream rejection")
	ErrValidation = errors.New("erp: malformed record payload")
)

// RateLimitError indicates an HTTP 429 from the remote, carrying the
// Retry-After hint when the remote supplied one.
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("erp: rate limited, retry after %s", e.RetryAfter)
	}
	return "erp: rate limited"
}

// IsRateLimited reports whether err is a rate-limit rejection and returns the
// backoff hint (zero when the remote gave none).
func IsRateLimited(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// IsAuth reports whether err is an authentication failure
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// Retryable reports whether a later attempt of the same call may succeed
// without operator intervention.
func Retryable(err error) bool {
	if _, ok := IsRateLimited(err); ok {
		return true
	}
	return errors.Is(err, ErrTransient)
}

// ClassifyStatus maps an HTTP status code from the remote to the taxonomy.
// Returns nil for 2xx.
func ClassifyStatus(status int, retryAfter time.Duration) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryAfter}
	case status >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrTransient, status)
	default:
		return fmt.Errorf("%w: HTTP %d", ErrPermanent, status)
	}
}
