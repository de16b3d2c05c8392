package errutil

import (
	"errors"
	"fmt"
	"time"
)

// Failure categories for the per-recipient pipeline. Rate-limit denials and
// store write failures need to be told apart by the orchestrator: the former is
// a normal recipient failure, the latter means the recipient's work cannot be
// persisted at all.

// RateLimited builds the typed error raised when the limiter denies an action.
// The message carries a human-readable wait estimate for operators.
func RateLimited(action string, resetAt time.Time) error {
	wait := time.Until(resetAt).Round(time.Second)
	if wait < 0 {
		wait = 0
	}
	return New(StatusTooManyRequests,
		fmt.Sprintf("rate limit exceeded for %s, retry in %s", action, wait),
		WithDetails(Detail{Field: "action", Message: action}),
	)
}

func IsRateLimited(err error) bool {
	return hasStatus(err, StatusTooManyRequests)
}

// StoreUnavailable wraps a failed write to the persistent store.
func StoreUnavailable(op string, err error) error {
	return New(StatusServiceUnavailable, fmt.Sprintf("store %s failed", op), WithErr(err))
}

func IsStoreUnavailable(err error) bool {
	return hasStatus(err, StatusServiceUnavailable)
}

// RenderTimedOut marks a synthesis poll loop that exhausted its max wait,
// distinct from an upstream render failure.
func RenderTimedOut(maxWait time.Duration) error {
	return New(StatusTimeout, fmt.Sprintf("video synthesis did not finish within %s", maxWait))
}

func IsRenderTimedOut(err error) bool {
	return hasStatus(err, StatusTimeout)
}

func hasStatus(err error, status CoreStatus) bool {
	var base BaseError
	if errors.As(err, &base) {
		return base.Code == status
	}
	return false
}
