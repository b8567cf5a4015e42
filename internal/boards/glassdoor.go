package boards

import (
	"context"
	"fmt"
	"iter"

	"jobbot/internal/documents"
	"jobbot/internal/postings"
)

// Glassdoor is listed so it can be configured, but neither search nor apply is supported.
type Glassdoor struct {
	deps Deps
}

func NewGlassdoor(deps Deps) *Glassdoor {
	return &Glassdoor{deps: deps}
}

func (g *Glassdoor) Board() postings.Board { return postings.BoardGlassdoor }

func (g *Glassdoor) Search(ctx context.Context, c Criteria) iter.Seq2[postings.JobPosting, error] {
	return func(yield func(postings.JobPosting, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(postings.JobPosting{}, err)
			return
		}
		yield(postings.JobPosting{}, fmt.Errorf("glassdoor search %q: %w", c.Keyword, ErrNotImplemented))
	}
}

func (g *Glassdoor) Apply(_ context.Context, p postings.JobPosting, _ documents.Bundle) (postings.ApplicationResult, error) {
	res := g.deps.newResult(p, postings.OutcomeNotImplemented, "Glassdoor applications are not supported")
	res.ErrorKind = KindNotImplemented
	return res, ErrNotImplemented
}
