package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Budget stores the grant times the limiter windows are computed from.
type Budget interface {
	// Permits returns grants within the hour ending at now, oldest first.
	Permits(ctx context.Context, now time.Time) ([]time.Time, error)
	Record(ctx context.Context, at time.Time) error
}

// MemoryBudget keeps grants in process memory.
type MemoryBudget struct {
	mu     sync.Mutex
	grants []time.Time
}

func NewMemoryBudget() *MemoryBudget {
	return &MemoryBudget{}
}

func (b *MemoryBudget) Permits(ctx context.Context, now time.Time) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(now)
	return append([]time.Time(nil), b.grants...), nil
}

func (b *MemoryBudget) Record(ctx context.Context, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.grants = append(b.grants, at)
	return nil
}

func (b *MemoryBudget) prune(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := firstAfter(b.grants, cutoff)
	if i > 0 {
		b.grants = append(b.grants[:0], b.grants[i:]...)
	}
}
