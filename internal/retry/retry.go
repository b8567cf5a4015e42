// Package retry runs an action with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

const defaultBase = time.Second

// Policy describes how often and how patiently an action is retried.
// A Policy holds no state between calls and is safe to share.
type Policy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
	Jitter   time.Duration

	// Retryable overrides the default classification. Permanent errors and
	// context errors are never retried regardless.
	Retryable func(error) bool
	Sleep     func(ctx context.Context, d time.Duration) error
	OnRetry   func(attempt int, err error, delay time.Duration)
}

// Delay returns the wait after failed attempt n (1-based), before jitter.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = defaultBase
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Do invokes fn until it succeeds, the attempts are spent, or the error is not retryable.
// The last error is returned wrapped with the attempt count.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return fmt.Errorf("attempt %d/%d: %w", attempt-1, attempts, err)
			}
			return ctxErr
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !p.shouldRetry(err) {
			return unwrapPermanent(err)
		}
		if attempt == attempts {
			break
		}
		delay := p.Delay(attempt)
		if p.Jitter > 0 {
			delay += time.Duration(rand.Int64N(int64(p.Jitter)))
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("attempt %d/%d: %w", attempt, attempts, err)
		}
	}
	return fmt.Errorf("attempt %d/%d: %w", attempts, attempts, err)
}

func (p Policy) shouldRetry(err error) bool {
	// A per-attempt deadline is retried; the caller's own ctx is checked before every attempt.
	if errors.Is(err, context.Canceled) {
		return false
	}
	if isPermanent(err) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return true
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
func (e *permanentError) Permanent() bool {
	return true
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}

func unwrapPermanent(err error) error {
	var p *permanentError
	if errors.As(err, &p) && p == err {
		return p.err
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
