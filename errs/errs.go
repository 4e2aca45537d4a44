// Package errs defines the error taxonomy of the relationship engine.
//
// Policy errors are sentinels wrapped with detail:
//
//	fmt.Errorf("%w: %s already blocked", errs.ErrBlocked, id)
//
// and callers test them with errors.Is. Infrastructure failures are reported
// as *TemporaryUnavailableError, rate limiting as *RateLimitedError.
package errs

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidIdentifier    = errors.New("invalid identifier")
	ErrSelfReference        = errors.New("self reference")
	ErrAlreadyFriends       = errors.New("already friends")
	ErrDuplicateRequest     = errors.New("duplicate request")
	ErrBlocked              = errors.New("blocked")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrAlreadyResolved      = errors.New("already resolved")
	ErrExpired              = errors.New("expired")
	ErrRateLimited          = errors.New("rate limited")
	ErrTemporaryUnavailable = errors.New("temporarily unavailable")

	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrLimitExceeded   = errors.New("limit exceeded")
	ErrFeatureDisabled = errors.New("feature disabled")
)

// RateLimitedError is returned when the actor exhausted the action's window.
type RateLimitedError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: %s, retry after %s", e.Action, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// TemporaryUnavailableError wraps an infrastructure failure (store timeout,
// unreachable backend). The operation is safe to retry.
type TemporaryUnavailableError struct {
	Op  string
	Err error
}

func (e *TemporaryUnavailableError) Error() string {
	return fmt.Sprintf("%s: temporarily unavailable: %v", e.Op, e.Err)
}

func (e *TemporaryUnavailableError) Unwrap() error { return e.Err }

func (e *TemporaryUnavailableError) Is(target error) bool { return target == ErrTemporaryUnavailable }

// Unavailable wraps err as a TemporaryUnavailableError for op. Errors that
// already belong to the taxonomy are returned unchanged.
func Unavailable(op string, err error) error {
	if err == nil || IsPolicy(err) || errors.Is(err, ErrTemporaryUnavailable) {
		return err
	}
	return &TemporaryUnavailableError{Op: op, Err: err}
}

// RetryAfter extracts the retry hint of a rate limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

var policyErrors = []error{
	ErrInvalidIdentifier,
	ErrSelfReference,
	ErrAlreadyFriends,
	ErrDuplicateRequest,
	ErrBlocked,
	ErrNotAuthorized,
	ErrAlreadyResolved,
	ErrExpired,
	ErrRateLimited,
	ErrNotFound,
	ErrInvalidArgument,
	ErrLimitExceeded,
	ErrFeatureDisabled,
}

// IsPolicy reports whether err is a caller-facing policy rejection rather
// than an infrastructure failure.
func IsPolicy(err error) bool {
	for _, p := range policyErrors {
		if errors.Is(err, p) {
			return true
		}
	}
	return false
}
