package boards

import (
	"context"
	"time"

	"jobbot/internal/documents"
	"jobbot/internal/postings"
	"jobbot/internal/shared/telemetry"
)

const (
	phoneFields    = `input[type="tel"], input[placeholder*="phone" i], input[aria-label*="phone" i], input[name*="phone" i]`
	websiteFields  = `input[placeholder*="website" i], input[placeholder*="portfolio" i], input[name*="website" i]`
	linkedInFields = `input[placeholder*="linkedin" i], input[name*="linkedin" i], input[aria-label*="linkedin" i]`
	textAreas      = "textarea"
	selectFields   = "select"
	fileInputs     = `input[type="file"]`

	stepSettle   = 2 * time.Second
	submitSettle = 3 * time.Second
)

// form describes one board's multi-step apply dialog.
type form struct {
	board      postings.Board
	coverLimit int
	// fillLinkedIn adds the profile URL to fields asking for it.
	fillLinkedIn bool
	submit       Locator
	// advance is tried in order when submit is not on the page yet.
	advance []Locator
	success Locator
}

// run walks the dialog for at most maxFormSteps steps, filling each step before moving on.
func (f form) run(ctx context.Context, d Deps, b Browser, p postings.JobPosting, docs documents.Bundle) (postings.ApplicationResult, error) {
	for step := 1; step <= maxFormSteps; step++ {
		if err := d.pause(ctx, stepSettle); err != nil {
			return d.failed(p, err)
		}
		if err := f.fill(ctx, b, docs); err != nil {
			return d.failed(p, err)
		}

		submitted, err := b.Click(ctx, f.submit)
		if err != nil {
			return d.failed(p, err)
		}
		if submitted {
			if err := d.pause(ctx, submitSettle); err != nil {
				return d.failed(p, err)
			}
			ok, err := b.Exists(ctx, f.success)
			if err != nil {
				return d.failed(p, err)
			}
			if !ok {
				return d.failed(p, &FormError{Board: f.board, Step: step, Missing: "confirmation after submit"})
			}
			telemetry.Info("apply.submitted", map[string]any{
				"board": string(f.board),
				"job":   p.EnsureJobID(),
				"steps": step,
			})
			return d.newResult(p, postings.OutcomeApplied, "Application submitted successfully"), nil
		}

		advanced := false
		for _, loc := range f.advance {
			clicked, err := b.Click(ctx, loc)
			if err != nil {
				return d.failed(p, err)
			}
			if clicked {
				advanced = true
				break
			}
		}
		if !advanced {
			return d.failed(p, &FormError{Board: f.board, Step: step, Missing: "next or submit button"})
		}
	}
	return d.failed(p, &FormError{Board: f.board, Step: maxFormSteps, Missing: "submit button within step limit"})
}

// fill completes whatever fields the current step shows. Fields already holding a value are left alone.
func (f form) fill(ctx context.Context, b Browser, docs documents.Bundle) error {
	values := []struct{ selector, value string }{
		{phoneFields, docs.Profile.Phone},
		{websiteFields, docs.Profile.Website},
		{textAreas, docs.CoverExcerpt(f.coverLimit)},
	}
	if f.fillLinkedIn {
		values = append(values, struct{ selector, value string }{linkedInFields, docs.Profile.LinkedInURL})
	}
	for _, v := range values {
		if v.value == "" {
			continue
		}
		if _, err := b.Fill(ctx, v.selector, v.value); err != nil {
			return err
		}
	}
	if _, err := b.ChooseFirstOption(ctx, selectFields); err != nil {
		return err
	}
	if docs.ResumePath != "" {
		if _, err := b.Upload(ctx, fileInputs, docs.ResumePath); err != nil {
			return err
		}
	}
	return nil
}
