package boards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobbot/internal/postings"
)

// ErrNotImplemented marks a board operation that exists in the interface but not on that board.
var ErrNotImplemented = errors.New("not implemented")

// AuthenticationError means the login or session on a board is not usable.
type AuthenticationError struct {
	Board  postings.Board
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s authentication failed: %s: %v", e.Board, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s authentication failed: %s", e.Board, e.Reason)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

func (e *AuthenticationError) Permanent() bool { return true }

// FormError means an element the apply flow needs was not on the page.
type FormError struct {
	Board   postings.Board
	Step    int
	Missing string
}

func (e *FormError) Error() string {
	if e.Step > 0 {
		return fmt.Sprintf("%s form step %d: %s", e.Board, e.Step, e.Missing)
	}
	return fmt.Sprintf("%s form: %s", e.Board, e.Missing)
}

func (e *FormError) Permanent() bool { return true }

// RateLimitError means the board itself throttled us. It is answered with a cooldown, not a retry.
type RateLimitError struct {
	Board      postings.Board
	Status     int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("%s throttled", e.Board)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (http %d)", e.Status)
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(", retry after %s", e.RetryAfter)
	}
	return msg
}

func (e *RateLimitError) Permanent() bool { return true }

// Error kinds recorded on results and failures.
const (
	KindAuth           = "auth"
	KindForm           = "form"
	KindRateLimit      = "rate_limit"
	KindNotImplemented = "not_implemented"
	KindCanceled       = "canceled"
	KindTimeout        = "timeout"
	KindOther          = "other"
)

// Kind classifies err for logs, metrics and stored results. A nil error has no kind.
func Kind(err error) string {
	var (
		authErr *AuthenticationError
		formErr *FormError
		rateErr *RateLimitError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &formErr):
		return KindForm
	case errors.As(err, &rateErr):
		return KindRateLimit
	case errors.Is(err, ErrNotImplemented):
		return KindNotImplemented
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindOther
	}
}
