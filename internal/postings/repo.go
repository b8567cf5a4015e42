package postings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound       = errors.New("posting not found")
	ErrInvalidPosting = errors.New("invalid posting")
	ErrInvalidStatus  = errors.New("invalid status")
)

// Repo stores postings and the application log.
type Repo interface {
	// Save upserts by identity key. Existing status, applied date and notes survive.
	Save(ctx context.Context, items []JobPosting) (SaveResult, error)
	// UpdateStatus changes exactly one posting or returns ErrNotFound.
	UpdateStatus(ctx context.Context, key Key, change StatusChange) error
	Get(ctx context.Context, key Key) (JobPosting, error)
	// Load returns every posting in first-scraped order.
	Load(ctx context.Context) ([]JobPosting, error)
	LogApplication(ctx context.Context, result ApplicationResult) error
	// Applications returns log entries at or after since, oldest first.
	Applications(ctx context.Context, since time.Time) ([]ApplicationResult, error)
}

// prepare fills derived fields and rejects postings that cannot be keyed.
func prepare(p JobPosting, now time.Time) (JobPosting, error) {
	if strings.TrimSpace(string(p.Board)) == "" {
		return JobPosting{}, fmt.Errorf("%w: missing board", ErrInvalidPosting)
	}
	if strings.TrimSpace(p.Title) == "" && strings.TrimSpace(p.URL) == "" {
		return JobPosting{}, fmt.Errorf("%w: missing title and url", ErrInvalidPosting)
	}
	p.JobID = p.EnsureJobID()
	if p.Status == "" {
		p.Status = StatusNotApplied
	}
	if p.ScrapedDate.IsZero() {
		p.ScrapedDate = now.UTC()
	}
	return p, nil
}

// merge applies freshly scraped fields onto a stored posting, keeping its application state.
func merge(stored, fresh JobPosting) JobPosting {
	fresh.Status = stored.Status
	fresh.AppliedDate = stored.AppliedDate
	fresh.Notes = stored.Notes
	if fresh.JobID == "" {
		fresh.JobID = stored.JobID
	}
	return fresh
}

// applyChange mutates p according to change. AppliedDate is stamped on the first applied transition.
func applyChange(p *JobPosting, change StatusChange) error {
	if !change.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, change.Status)
	}
	p.Status = change.Status
	if change.Notes != "" {
		p.Notes = change.Notes
	}
	if change.Status == StatusApplied {
		at := change.At
		if at.IsZero() {
			at = time.Now()
		}
		at = at.UTC()
		p.AppliedDate = &at
	}
	return nil
}
