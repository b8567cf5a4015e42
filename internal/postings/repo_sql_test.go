package postings

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSQLRepoSaveCountsInsertsAndUpdates(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := NewSQLRepo(db, "postgres")
	scraped := time.Date(2026, time.February, 1, 8, 0, 0, 0, time.UTC)
	fresh := samplePosting(BoardLinkedIn, "https://www.linkedin.com/jobs/view/1", "Platform Engineer")
	fresh.ScrapedDate = scraped
	fresh.SkillsRequired = []string{"go", "sql"}
	known := samplePosting(BoardIndeed, "https://www.indeed.com/viewjob?jk=2", "Go Developer")
	known.ScrapedDate = scraped

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM job_postings").
		WithArgs(string(fresh.Key())).
		WillReturnRows(sqlmock.NewRows([]string{"one"}))
	mock.ExpectExec("INSERT INTO job_postings").
		WithArgs(
			string(fresh.Key()),
			JobID(fresh.Title, fresh.Company, fresh.URL),
			"linkedin",
			"Platform Engineer",
			"Acme",
			"Remote",
			nil, // posting_date
			fresh.URL,
			nil, nil, nil, nil,
			`["go","sql"]`,
			nil, nil,
			"not_applied",
			scraped,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT 1 FROM job_postings").
		WithArgs(string(known.Key())).
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectExec("INSERT INTO job_postings").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := repo.Save(context.Background(), []JobPosting{fresh, known})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res.Inserted != 1 || res.Updated != 1 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestSQLRepoSaveRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	p := samplePosting(BoardLinkedIn, "https://www.linkedin.com/jobs/view/5", "SRE")
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM job_postings").WillReturnRows(sqlmock.NewRows([]string{"one"}))
	mock.ExpectExec("INSERT INTO job_postings").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if _, err := NewSQLRepo(db, "postgres").Save(context.Background(), []JobPosting{p}); err == nil {
		t.Fatal("expected save error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestSQLRepoUpdateStatusNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("UPDATE job_postings SET").
		WithArgs("linkedin|https://x", "failed", "layout changed", nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewSQLRepo(db, "postgres").UpdateStatus(context.Background(), Key("linkedin|https://x"), StatusChange{Status: StatusFailed, Notes: "layout changed"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLRepoUpdateStatusStampsAppliedDate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	at := time.Date(2026, time.April, 2, 15, 4, 5, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("application_status = ?2")).
		WithArgs("indeed|https://www.indeed.com/viewjob", "applied", nil, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSQLRepo(db, "sqlite")
	if err := repo.UpdateStatus(context.Background(), Key("indeed|https://www.indeed.com/viewjob"), StatusChange{Status: StatusApplied, At: at}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestSQLRepoLoadDecodesRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	scraped := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	applied := scraped.Add(48 * time.Hour)
	cols := []string{"posting_key", "job_id", "job_board", "title", "company", "location", "posting_date", "url",
		"description", "salary_range", "job_type", "experience_level", "skills_required", "company_size", "industry",
		"application_status", "applied_date", "application_notes", "scraped_date"}
	mock.ExpectQuery("SELECT posting_key").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("linkedin|https://www.linkedin.com/jobs/view/1", "abc123def456", "linkedin", "Engineer", "Acme", "Remote",
				"2 days ago", "https://www.linkedin.com/jobs/view/1", nil, "$150k", nil, nil, `["go"]`, nil, nil,
				"applied", applied, "ok", scraped))

	got, err := NewSQLRepo(db, "postgres").Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 posting, got %d", len(got))
	}
	p := got[0]
	if p.Board != BoardLinkedIn || p.Status != StatusApplied || p.SalaryRange != "$150k" {
		t.Fatalf("unexpected posting: %+v", p)
	}
	if len(p.SkillsRequired) != 1 || p.SkillsRequired[0] != "go" {
		t.Fatalf("skills not decoded: %v", p.SkillsRequired)
	}
	if p.AppliedDate == nil || !p.AppliedDate.Equal(applied) {
		t.Fatalf("applied date not decoded: %v", p.AppliedDate)
	}
}

func TestSQLRepoLogApplication(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ts := time.Date(2026, time.June, 1, 10, 0, 0, 0, time.UTC)
	result := ApplicationResult{
		ID:         "res-1",
		PostingKey: Key("indeed|https://www.indeed.com/viewjob"),
		JobID:      "0123456789ab",
		Board:      BoardIndeed,
		Title:      "Go Developer",
		Company:    "Acme",
		Success:    false,
		Outcome:    OutcomeFailed,
		Message:    "submit button missing",
		ErrorKind:  "form",
		Timestamp:  ts,
	}
	mock.ExpectExec("INSERT INTO applications").
		WithArgs("res-1", "indeed|https://www.indeed.com/viewjob", "0123456789ab", "indeed", "Go Developer", "Acme", nil,
			false, "failed", "submit button missing", "form", ts).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := NewSQLRepo(db, "postgres").LogApplication(context.Background(), result); err != nil {
		t.Fatalf("LogApplication: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
