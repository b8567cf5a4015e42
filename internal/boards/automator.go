package boards

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"

	"jobbot/internal/documents"
	"jobbot/internal/postings"
	"jobbot/internal/ratelimit"
	"jobbot/internal/retry"
)

const (
	defaultSearchLimit = 20
	defaultTimeout     = 30 * time.Second
	maxFormSteps       = 5
)

// Criteria is one keyword and location query.
type Criteria struct {
	Keyword    string
	Location   string
	DatePosted string // today, week or month
	Limit      int
}

func (c Criteria) limit() int {
	if c.Limit <= 0 {
		return defaultSearchLimit
	}
	return c.Limit
}

// Automator searches one board and applies to its postings.
type Automator interface {
	Board() postings.Board
	// Search yields postings lazily. Ranging again restarts from the first page.
	// A failed page is yielded as a final error.
	Search(ctx context.Context, c Criteria) iter.Seq2[postings.JobPosting, error]
	// Apply submits one application. It is not idempotent.
	Apply(ctx context.Context, p postings.JobPosting, docs documents.Bundle) (postings.ApplicationResult, error)
}

// Acquirer grants permission for one outbound request.
type Acquirer interface {
	Acquire(ctx context.Context) error
}

// Deps are shared by every automator in a process.
type Deps struct {
	Limiter Acquirer
	Retry   retry.Policy
	// Timeout bounds each page fetch and browser action.
	Timeout time.Duration
	// Pause waits for pages to settle between browser steps.
	Pause     func(ctx context.Context, d time.Duration) error
	Now       func() time.Time
	NewID     func() string
	UserAgent string
}

func (d Deps) timeout() time.Duration {
	if d.Timeout <= 0 {
		return defaultTimeout
	}
	return d.Timeout
}

func (d Deps) pause(ctx context.Context, wait time.Duration) error {
	if d.Pause == nil {
		return ratelimit.SleepContext(ctx, wait)
	}
	return d.Pause(ctx, wait)
}

func (d Deps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func (d Deps) acquire(ctx context.Context) error {
	if d.Limiter == nil {
		return ctx.Err()
	}
	return d.Limiter.Acquire(ctx)
}

func (d Deps) newResult(p postings.JobPosting, outcome postings.Outcome, msg string) postings.ApplicationResult {
	newID := d.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return postings.ApplicationResult{
		ID:         newID(),
		PostingKey: p.Key(),
		JobID:      p.EnsureJobID(),
		Board:      p.Board,
		Title:      p.Title,
		Company:    p.Company,
		URL:        p.URL,
		Success:    outcome == postings.OutcomeApplied,
		Outcome:    outcome,
		Message:    msg,
		Timestamp:  d.now().UTC(),
	}
}

// failed builds the result for an apply that ended in err.
func (d Deps) failed(p postings.JobPosting, err error) (postings.ApplicationResult, error) {
	res := d.newResult(p, postings.OutcomeFailed, err.Error())
	res.ErrorKind = Kind(err)
	return res, err
}
