// Package ratelimit governs how fast the bot may touch job boards. A single Limiter is shared by every
// board automator so the per-minute and per-hour ceilings hold across boards.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"jobbot/internal/shared/metrics"
	"jobbot/internal/shared/telemetry"
)

// Options configures a Limiter. Zero ceilings disable the corresponding window.
type Options struct {
	PerMinute   int
	PerHour     int
	MinInterval time.Duration
	Budget      Budget
	Now         func() time.Time
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Limiter blocks callers until a permit is available under both rolling windows.
type Limiter struct {
	mu            sync.Mutex
	perMinute     int
	perHour       int
	budget        Budget
	pace          *rate.Limiter
	cooldownUntil time.Time
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
}

// RateBudget is a point-in-time view of the limiter's windows.
type RateBudget struct {
	CountThisMinute int       `json:"count_this_minute"`
	CountThisHour   int       `json:"count_this_hour"`
	PerMinute       int       `json:"per_minute"`
	PerHour         int       `json:"per_hour"`
	CooldownUntil   time.Time `json:"cooldown_until,omitempty"`
}

// New builds a Limiter. A nil Budget gets an in-memory one.
func New(opts Options) *Limiter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = SleepContext
	}
	if opts.Budget == nil {
		opts.Budget = NewMemoryBudget()
	}
	l := &Limiter{
		perMinute: opts.PerMinute,
		perHour:   opts.PerHour,
		budget:    opts.Budget,
		now:       opts.Now,
		sleep:     opts.Sleep,
	}
	if opts.MinInterval > 0 {
		l.pace = rate.NewLimiter(rate.Every(opts.MinInterval), 1)
	}
	return l
}

// Acquire blocks until both windows have room, then records the permit.
// It only fails when ctx ends or the budget store errors.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := l.now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait, err := l.reserve(ctx)
		if err != nil {
			return err
		}
		if wait <= 0 {
			metrics.ObserveRateLimitWait(l.now().Sub(start))
			return nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *Limiter) reserve(ctx context.Context) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Before(l.cooldownUntil) {
		return l.cooldownUntil.Sub(now), nil
	}

	grants, err := l.budget.Permits(ctx, now)
	if err != nil {
		return 0, err
	}
	if wait := windowWait(grants, now, l.perMinute, l.perHour); wait > 0 {
		return wait, nil
	}
	if l.pace != nil {
		r := l.pace.ReserveN(now, 1)
		if d := r.DelayFrom(now); d > 0 {
			r.CancelAt(now)
			return d, nil
		}
	}
	return 0, l.budget.Record(ctx, now)
}

// Cooldown makes every Acquire wait at least d from now. A longer pending cooldown is kept.
func (l *Limiter) Cooldown(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	until := l.now().Add(d)
	if until.After(l.cooldownUntil) {
		l.cooldownUntil = until
	}
	l.mu.Unlock()

	metrics.IncCooldown()
	telemetry.Warn("ratelimit.cooldown", map[string]any{
		"duration_s": d.Seconds(),
		"until":      until.UTC().Format(time.RFC3339),
	})
}

// Snapshot reports current window usage.
func (l *Limiter) Snapshot(ctx context.Context) (RateBudget, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	grants, err := l.budget.Permits(ctx, now)
	if err != nil {
		return RateBudget{}, err
	}
	snap := RateBudget{
		CountThisMinute: countSince(grants, now.Add(-time.Minute)),
		CountThisHour:   countSince(grants, now.Add(-time.Hour)),
		PerMinute:       l.perMinute,
		PerHour:         l.perHour,
	}
	if now.Before(l.cooldownUntil) {
		snap.CooldownUntil = l.cooldownUntil
	}
	return snap, nil
}

// windowWait returns how long until one more permit fits in both windows. grants must be oldest first.
func windowWait(grants []time.Time, now time.Time, perMinute, perHour int) time.Duration {
	var wait time.Duration
	if w := slotWait(grants, now, time.Minute, perMinute); w > wait {
		wait = w
	}
	if w := slotWait(grants, now, time.Hour, perHour); w > wait {
		wait = w
	}
	return wait
}

func slotWait(grants []time.Time, now time.Time, window time.Duration, ceiling int) time.Duration {
	if ceiling <= 0 {
		return 0
	}
	inWindow := grants[firstAfter(grants, now.Add(-window)):]
	if len(inWindow) < ceiling {
		return 0
	}
	// The window frees a slot once enough of the oldest grants age out.
	release := inWindow[len(inWindow)-ceiling].Add(window)
	return release.Sub(now)
}

func countSince(grants []time.Time, cutoff time.Time) int {
	return len(grants) - firstAfter(grants, cutoff)
}

func firstAfter(grants []time.Time, cutoff time.Time) int {
	for i, g := range grants {
		if g.After(cutoff) {
			return i
		}
	}
	return len(grants)
}

// SleepContext waits for d or until ctx ends.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
