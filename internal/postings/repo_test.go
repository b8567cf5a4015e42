package postings

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func samplePosting(board Board, url, title string) JobPosting {
	return JobPosting{
		Board:    board,
		Title:    title,
		Company:  "Acme",
		Location: "Remote",
		URL:      url,
	}
}

// repoFactories lets the behavioural tests run against every file-free and file-backed repo.
func repoFactories(t *testing.T) map[string]func() Repo {
	return map[string]func() Repo{
		"memory": func() Repo { return NewMemoryRepo() },
		"json": func() Repo {
			return NewJSONRepo(filepath.Join(t.TempDir(), "data", "job_postings.json"))
		},
	}
}

func TestSaveIsIdempotentUpsert(t *testing.T) {
	for name, newRepo := range repoFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo()
			p := samplePosting(BoardLinkedIn, "https://www.linkedin.com/jobs/view/1?trk=abc", "Backend Engineer")

			res, err := repo.Save(ctx, []JobPosting{p})
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			if res.Inserted != 1 || res.Updated != 0 {
				t.Fatalf("first save: %+v", res)
			}

			p.Title = "Senior Backend Engineer"
			p.URL = "https://www.linkedin.com/jobs/view/1/"
			res, err = repo.Save(ctx, []JobPosting{p})
			if err != nil {
				t.Fatalf("Save again: %v", err)
			}
			if res.Inserted != 0 || res.Updated != 1 {
				t.Fatalf("second save: %+v", res)
			}

			all, err := repo.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(all) != 1 {
				t.Fatalf("expected one record, got %d", len(all))
			}
			if all[0].Title != "Senior Backend Engineer" {
				t.Fatalf("latest fields not kept: %q", all[0].Title)
			}
			if all[0].Status != StatusNotApplied {
				t.Fatalf("expected default status, got %q", all[0].Status)
			}
		})
	}
}

func TestSavePreservesApplicationState(t *testing.T) {
	for name, newRepo := range repoFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo()
			p := samplePosting(BoardIndeed, "https://www.indeed.com/viewjob?jk=1", "Go Developer")
			if _, err := repo.Save(ctx, []JobPosting{p}); err != nil {
				t.Fatalf("Save: %v", err)
			}
			appliedAt := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
			if err := repo.UpdateStatus(ctx, p.Key(), StatusChange{Status: StatusApplied, Notes: "sent", At: appliedAt}); err != nil {
				t.Fatalf("UpdateStatus: %v", err)
			}

			p.Description = "rescraped"
			if _, err := repo.Save(ctx, []JobPosting{p}); err != nil {
				t.Fatalf("re-save: %v", err)
			}
			got, err := repo.Get(ctx, p.Key())
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Status != StatusApplied || got.Notes != "sent" {
				t.Fatalf("application state lost: %+v", got)
			}
			if got.AppliedDate == nil || !got.AppliedDate.Equal(appliedAt) {
				t.Fatalf("applied date lost: %v", got.AppliedDate)
			}
			if got.Description != "rescraped" {
				t.Fatalf("scraped fields not updated: %q", got.Description)
			}
		})
	}
}

func TestSaveKeepsIndeedClickLinksApart(t *testing.T) {
	for name, newRepo := range repoFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo()
			a := samplePosting(BoardIndeed, "https://www.indeed.com/rc/clk?jk=abc", "Go Developer")
			b := samplePosting(BoardIndeed, "https://www.indeed.com/rc/clk?jk=def", "Rust Engineer")
			b.Company = "Globex"

			if _, err := repo.Save(ctx, []JobPosting{a}); err != nil {
				t.Fatalf("Save a: %v", err)
			}
			if err := repo.UpdateStatus(ctx, a.Key(), StatusChange{Status: StatusApplied}); err != nil {
				t.Fatalf("UpdateStatus: %v", err)
			}
			res, err := repo.Save(ctx, []JobPosting{b})
			if err != nil {
				t.Fatalf("Save b: %v", err)
			}
			if res.Inserted != 1 || res.Updated != 0 {
				t.Fatalf("second job merged into first: %+v", res)
			}

			storedA, err := repo.Get(ctx, a.Key())
			if err != nil {
				t.Fatalf("Get a: %v", err)
			}
			storedB, err := repo.Get(ctx, b.Key())
			if err != nil {
				t.Fatalf("Get b: %v", err)
			}
			if storedA.Title != "Go Developer" || storedA.Status != StatusApplied {
				t.Fatalf("first job changed: %+v", storedA)
			}
			if storedB.Title != "Rust Engineer" || storedB.Status == StatusApplied {
				t.Fatalf("second job inherited state: %+v", storedB)
			}
		})
	}
}

func TestUpdateStatusMissingReturnsNotFound(t *testing.T) {
	for name, newRepo := range repoFactories(t) {
		t.Run(name, func(t *testing.T) {
			err := newRepo().UpdateStatus(context.Background(), Key("linkedin|https://nope"), StatusChange{Status: StatusFailed})
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	repo := NewMemoryRepo()
	p := samplePosting(BoardLinkedIn, "https://www.linkedin.com/jobs/view/9", "SRE")
	if _, err := repo.Save(context.Background(), []JobPosting{p}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	err := repo.UpdateStatus(context.Background(), p.Key(), StatusChange{Status: "duplicate"})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestLoadKeepsScrapeOrder(t *testing.T) {
	for name, newRepo := range repoFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo()
			batch := []JobPosting{
				samplePosting(BoardLinkedIn, "https://www.linkedin.com/jobs/view/3", "C"),
				samplePosting(BoardLinkedIn, "https://www.linkedin.com/jobs/view/1", "A"),
			}
			if _, err := repo.Save(ctx, batch); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if _, err := repo.Save(ctx, []JobPosting{samplePosting(BoardIndeed, "https://www.indeed.com/viewjob?jk=2", "B")}); err != nil {
				t.Fatalf("Save: %v", err)
			}
			all, err := repo.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			var titles string
			for _, p := range all {
				titles += p.Title
			}
			if titles != "CAB" {
				t.Fatalf("expected scrape order CAB, got %s", titles)
			}
		})
	}
}

func TestApplicationsFiltersBySince(t *testing.T) {
	for name, newRepo := range repoFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo()
			day := time.Date(2026, time.May, 10, 0, 0, 0, 0, time.UTC)
			for i, ts := range []time.Time{day.Add(-time.Hour), day.Add(time.Hour), day.Add(2 * time.Hour)} {
				err := repo.LogApplication(ctx, ApplicationResult{
					ID:        string(rune('a' + i)),
					Board:     BoardLinkedIn,
					Success:   true,
					Outcome:   OutcomeApplied,
					Timestamp: ts,
				})
				if err != nil {
					t.Fatalf("LogApplication: %v", err)
				}
			}
			got, err := repo.Applications(ctx, day)
			if err != nil {
				t.Fatalf("Applications: %v", err)
			}
			if len(got) != 2 || got[0].ID != "b" {
				t.Fatalf("unexpected log slice: %+v", got)
			}
		})
	}
}

func TestSaveRejectsUnkeyablePosting(t *testing.T) {
	_, err := NewMemoryRepo().Save(context.Background(), []JobPosting{{Title: "no board"}})
	if !errors.Is(err, ErrInvalidPosting) {
		t.Fatalf("expected ErrInvalidPosting, got %v", err)
	}
}

func TestJSONRepoPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job_postings.json")
	ctx := context.Background()
	p := samplePosting(BoardGlassdoor, "https://www.glassdoor.com/job-listing/x", "Analyst")
	if _, err := NewJSONRepo(path).Save(ctx, []JobPosting{p}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := NewJSONRepo(path).Get(ctx, p.Key())
	if err != nil {
		t.Fatalf("Get from fresh instance: %v", err)
	}
	if got.JobID != JobID(p.Title, p.Company, p.URL) {
		t.Fatalf("job id not derived: %q", got.JobID)
	}
}
