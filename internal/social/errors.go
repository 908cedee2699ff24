// ABOUTME: Error taxonomy for friend graph operations
// ABOUTME: Every store failure is translated into one of these before reaching callers

package social

import (
	"errors"
	"fmt"
	"time"
)

// Errors returned by Service. Callers branch with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidOperand  = errors.New("cannot target yourself")
	ErrConflict        = errors.New("already exists")
	ErrForbidden       = errors.New("not allowed")
	ErrInvalidState    = errors.New("invalid state")
	ErrRateLimited     = errors.New("rate limited")
	ErrInvalidArgument = errors.New("invalid argument")
)

// RateLimitError reports a denied send and when the window next has room.
// It matches ErrRateLimited.
type RateLimitError struct {
	Limit      int
	Span       time.Duration
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: at most %d friend requests per %s, retry in %s",
		e.Limit, e.Span, e.RetryAfter.Round(time.Second))
}

// Is makes errors.Is(err, ErrRateLimited) true.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// outcome is the metrics label for err.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidOperand):
		return "invalid_operand"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}
