package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.sleeps {
		total += d
	}
	return total
}

func newTestLimiter(clock *fakeClock, perMinute, perHour int) *Limiter {
	return New(Options{
		PerMinute: perMinute,
		PerHour:   perHour,
		Now:       clock.Now,
		Sleep:     clock.Sleep,
	})
}

func TestAcquireThirdCallBlocksUntilMinuteRolls(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	l := newTestLimiter(clock, 2, 100)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		clock.Advance(300 * time.Millisecond)
	}
	if clock.Slept() != 0 {
		t.Fatalf("first two calls should not block, slept %s", clock.Slept())
	}

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("third Acquire: %v", err)
	}
	if clock.Slept() == 0 {
		t.Fatalf("third call should block")
	}
	if got := clock.Now(); got.Before(start.Add(time.Minute)) {
		t.Fatalf("third permit granted at %s, before minute rolled over from %s", got, start)
	}
}

func TestAcquireHourBudgetIsBinding(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	l := newTestLimiter(clock, 10, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		clock.Advance(2 * time.Minute)
	}

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("fourth Acquire: %v", err)
	}
	if got := clock.Now(); got.Before(start.Add(time.Hour)) {
		t.Fatalf("fourth permit at %s ignored the hour ceiling", got)
	}
}

func TestAcquireNeverExceedsRollingWindows(t *testing.T) {
	clock := newFakeClock()
	const perMinute, perHour = 5, 20
	l := newTestLimiter(clock, perMinute, perHour)
	ctx := context.Background()

	var granted []time.Time
	gaps := []time.Duration{0, time.Second, 3 * time.Second, 0, 40 * time.Second, 7 * time.Second}
	for i := 0; i < 45; i++ {
		clock.Advance(gaps[i%len(gaps)])
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		granted = append(granted, clock.Now())
	}

	for i, at := range granted {
		var inMinute, inHour int
		for _, g := range granted[:i+1] {
			if g.After(at.Add(-time.Minute)) {
				inMinute++
			}
			if g.After(at.Add(-time.Hour)) {
				inHour++
			}
		}
		if inMinute > perMinute {
			t.Fatalf("grant %d: %d permits in rolling minute, ceiling %d", i, inMinute, perMinute)
		}
		if inHour > perHour {
			t.Fatalf("grant %d: %d permits in rolling hour, ceiling %d", i, inHour, perHour)
		}
	}
}

func TestCooldownDelaysNextAcquire(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	l := newTestLimiter(clock, 30, 100)

	l.Cooldown(5 * time.Minute)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got := clock.Now(); got.Before(start.Add(5 * time.Minute)) {
		t.Fatalf("cooldown not honoured, granted at %s", got)
	}

	snap, err := l.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !snap.CooldownUntil.IsZero() {
		t.Fatalf("cooldown should have expired, got %s", snap.CooldownUntil)
	}
	if snap.CountThisMinute != 1 || snap.CountThisHour != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

// cooldownsCounted reads jobbot_cooldowns_total from the default registry.
func cooldownsCounted(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "jobbot_cooldowns_total" && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestCooldownCountedOncePerCall(t *testing.T) {
	l := New(Options{PerMinute: 10, Now: newFakeClock().Now})
	before := cooldownsCounted(t)
	l.Cooldown(time.Minute)
	l.Cooldown(2 * time.Minute)
	l.Cooldown(0)
	if got := cooldownsCounted(t) - before; got != 2 {
		t.Fatalf("cooldowns counted = %v, want 2", got)
	}
}

func TestShorterCooldownDoesNotShortenPending(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	l := newTestLimiter(clock, 30, 100)

	l.Cooldown(10 * time.Minute)
	l.Cooldown(time.Minute)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got := clock.Now(); got.Before(start.Add(10 * time.Minute)) {
		t.Fatalf("pending cooldown shortened, granted at %s", got)
	}
}

func TestMinIntervalSpacesPermits(t *testing.T) {
	clock := newFakeClock()
	l := New(Options{
		PerMinute:   30,
		PerHour:     100,
		MinInterval: 2 * time.Second,
		Now:         clock.Now,
		Sleep:       clock.Sleep,
	})
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	first := clock.Now()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if gap := clock.Now().Sub(first); gap < 2*time.Second {
		t.Fatalf("expected at least 2s between permits, got %s", gap)
	}
}

func TestAcquireStopsOnCancelledContext(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, 1, 10)
	ctx, cancel := context.WithCancel(context.Background())

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	cancel()
	if err := l.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type failingBudget struct{}

func (failingBudget) Permits(context.Context, time.Time) ([]time.Time, error) {
	return nil, errors.New("budget offline")
}

func (failingBudget) Record(context.Context, time.Time) error { return nil }

func TestAcquireSurfacesBudgetErrors(t *testing.T) {
	clock := newFakeClock()
	l := New(Options{PerMinute: 1, PerHour: 1, Budget: failingBudget{}, Now: clock.Now, Sleep: clock.Sleep})
	if err := l.Acquire(context.Background()); err == nil {
		t.Fatal("expected budget error")
	}
}

func TestMemoryBudgetPrunesOldGrants(t *testing.T) {
	b := NewMemoryBudget()
	ctx := context.Background()
	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{0, 30 * time.Minute, 61 * time.Minute} {
		if err := b.Record(ctx, base.Add(offset)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	got, err := b.Permits(ctx, base.Add(70*time.Minute))
	if err != nil {
		t.Fatalf("Permits: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 grants inside the hour, got %d", len(got))
	}
}
