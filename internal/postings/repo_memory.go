package postings

import (
	"context"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu       sync.RWMutex
	order    []Key
	postings map[Key]JobPosting
	results  []ApplicationResult
	now      func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		postings: make(map[Key]JobPosting),
		now:      time.Now,
	}
}

func (r *MemoryRepo) Save(ctx context.Context, items []JobPosting) (SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return SaveResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var res SaveResult
	for _, item := range items {
		p, err := prepare(item, r.now())
		if err != nil {
			return res, err
		}
		k := p.Key()
		if stored, ok := r.postings[k]; ok {
			r.postings[k] = merge(stored, p)
			res.Updated++
			continue
		}
		r.postings[k] = p
		r.order = append(r.order, k)
		res.Inserted++
	}
	return res, nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, key Key, change StatusChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.postings[key]
	if !ok {
		return ErrNotFound
	}
	if err := applyChange(&p, change); err != nil {
		return err
	}
	r.postings[key] = p
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, key Key) (JobPosting, error) {
	if err := ctx.Err(); err != nil {
		return JobPosting{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.postings[key]
	if !ok {
		return JobPosting{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) Load(ctx context.Context) ([]JobPosting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]JobPosting, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.postings[k])
	}
	return out, nil
}

func (r *MemoryRepo) LogApplication(ctx context.Context, result ApplicationResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func (r *MemoryRepo) Applications(ctx context.Context, since time.Time) ([]ApplicationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ApplicationResult
	for _, res := range r.results {
		if !res.Timestamp.Before(since) {
			out = append(out, res)
		}
	}
	return out, nil
}
