package postings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// SQLRepo stores postings in Postgres or SQLite. Queries are written with $n placeholders and
// rebound to ?n for SQLite.
type SQLRepo struct {
	DB      *sql.DB
	Dialect string
	now     func() time.Time
}

func NewSQLRepo(db *sql.DB, dialect string) *SQLRepo {
	return &SQLRepo{DB: db, Dialect: dialect, now: time.Now}
}

const postingColumns = `posting_key, job_id, job_board, title, company, location, posting_date, url, description,
  salary_range, job_type, experience_level, skills_required, company_size, industry,
  application_status, applied_date, application_notes, scraped_date`

func (r *SQLRepo) Save(ctx context.Context, items []JobPosting) (SaveResult, error) {
	const exists = `SELECT 1 FROM job_postings WHERE posting_key = $1`
	const upsert = `
INSERT INTO job_postings (posting_key, job_id, job_board, title, company, location, posting_date, url, description,
  salary_range, job_type, experience_level, skills_required, company_size, industry,
  application_status, scraped_date, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, CURRENT_TIMESTAMP)
ON CONFLICT (posting_key) DO UPDATE SET
  job_id = EXCLUDED.job_id,
  title = EXCLUDED.title,
  company = EXCLUDED.company,
  location = EXCLUDED.location,
  posting_date = EXCLUDED.posting_date,
  url = EXCLUDED.url,
  description = EXCLUDED.description,
  salary_range = EXCLUDED.salary_range,
  job_type = EXCLUDED.job_type,
  experience_level = EXCLUDED.experience_level,
  skills_required = EXCLUDED.skills_required,
  company_size = EXCLUDED.company_size,
  industry = EXCLUDED.industry,
  scraped_date = EXCLUDED.scraped_date,
  updated_at = CURRENT_TIMESTAMP`

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return SaveResult{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var res SaveResult
	for _, item := range items {
		p, err := prepare(item, r.clock())
		if err != nil {
			return SaveResult{}, err
		}
		key := p.Key()

		var one int
		switch err := tx.QueryRowContext(ctx, r.rebind(exists), string(key)).Scan(&one); {
		case errors.Is(err, sql.ErrNoRows):
			res.Inserted++
		case err != nil:
			return SaveResult{}, fmt.Errorf("lookup %s: %w", key, err)
		default:
			res.Updated++
		}

		skills, err := encodeSkills(p.SkillsRequired)
		if err != nil {
			return SaveResult{}, err
		}
		_, err = tx.ExecContext(ctx, r.rebind(upsert),
			string(key),
			p.JobID,
			string(p.Board),
			p.Title,
			p.Company,
			p.Location,
			nullableString(p.PostingDate),
			nullableString(p.URL),
			nullableString(p.Description),
			nullableString(p.SalaryRange),
			nullableString(p.JobType),
			nullableString(p.ExperienceLevel),
			skills,
			nullableString(p.CompanySize),
			nullableString(p.Industry),
			string(p.Status),
			p.ScrapedDate.UTC(),
		)
		if err != nil {
			return SaveResult{}, fmt.Errorf("upsert %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return SaveResult{}, err
	}
	committed = true
	return res, nil
}

func (r *SQLRepo) UpdateStatus(ctx context.Context, key Key, change StatusChange) error {
	const query = `
UPDATE job_postings SET
  application_status = $2,
  application_notes = COALESCE($3, application_notes),
  applied_date = COALESCE($4, applied_date),
  updated_at = CURRENT_TIMESTAMP
WHERE posting_key = $1`
	if !change.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, change.Status)
	}
	var applied any
	if change.Status == StatusApplied {
		at := change.At
		if at.IsZero() {
			at = r.clock()
		}
		applied = at.UTC()
	}
	res, err := r.DB.ExecContext(ctx, r.rebind(query), string(key), string(change.Status), nullableString(change.Notes), applied)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLRepo) Get(ctx context.Context, key Key) (JobPosting, error) {
	query := `SELECT ` + postingColumns + ` FROM job_postings WHERE posting_key = $1 LIMIT 1`
	p, err := scanPosting(r.DB.QueryRowContext(ctx, r.rebind(query), string(key)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return JobPosting{}, ErrNotFound
		}
		return JobPosting{}, err
	}
	return p, nil
}

func (r *SQLRepo) Load(ctx context.Context) ([]JobPosting, error) {
	query := `SELECT ` + postingColumns + ` FROM job_postings ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobPosting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLRepo) LogApplication(ctx context.Context, result ApplicationResult) error {
	const query = `
INSERT INTO applications (id, posting_key, job_id, job_board, title, company, url, success, outcome, message, error_kind, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.DB.ExecContext(ctx, r.rebind(query),
		result.ID,
		string(result.PostingKey),
		result.JobID,
		string(result.Board),
		nullableString(result.Title),
		nullableString(result.Company),
		nullableString(result.URL),
		result.Success,
		string(result.Outcome),
		nullableString(result.Message),
		nullableString(result.ErrorKind),
		result.Timestamp.UTC(),
	)
	return err
}

func (r *SQLRepo) Applications(ctx context.Context, since time.Time) ([]ApplicationResult, error) {
	const query = `
SELECT id, posting_key, job_id, job_board, title, company, url, success, outcome, message, error_kind, created_at
FROM applications
WHERE created_at >= $1
ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, r.rebind(query), since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ApplicationResult
	for rows.Next() {
		var (
			res                                     ApplicationResult
			key, board, outcome                     string
			title, company, url, message, errorKind sql.NullString
		)
		if err := rows.Scan(&res.ID, &key, &res.JobID, &board, &title, &company, &url,
			&res.Success, &outcome, &message, &errorKind, &res.Timestamp); err != nil {
			return nil, err
		}
		res.PostingKey = Key(key)
		res.Board = Board(board)
		res.Outcome = Outcome(outcome)
		res.Title = title.String
		res.Company = company.String
		res.URL = url.String
		res.Message = message.String
		res.ErrorKind = errorKind.String
		out = append(out, res)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosting(row rowScanner) (JobPosting, error) {
	var (
		p                                              JobPosting
		key, board, status                             string
		postingDate, url, description, salary, jobType sql.NullString
		experience, skills, size, industry, notes      sql.NullString
		applied                                        sql.NullTime
	)
	err := row.Scan(
		&key,
		&p.JobID,
		&board,
		&p.Title,
		&p.Company,
		&p.Location,
		&postingDate,
		&url,
		&description,
		&salary,
		&jobType,
		&experience,
		&skills,
		&size,
		&industry,
		&status,
		&applied,
		&notes,
		&p.ScrapedDate,
	)
	if err != nil {
		return JobPosting{}, err
	}
	p.Board = Board(board)
	p.Status = Status(status)
	p.PostingDate = postingDate.String
	p.URL = url.String
	p.Description = description.String
	p.SalaryRange = salary.String
	p.JobType = jobType.String
	p.ExperienceLevel = experience.String
	p.CompanySize = size.String
	p.Industry = industry.String
	p.Notes = notes.String
	if applied.Valid {
		at := applied.Time.UTC()
		p.AppliedDate = &at
	}
	if skills.Valid && skills.String != "" {
		if err := json.Unmarshal([]byte(skills.String), &p.SkillsRequired); err != nil {
			return JobPosting{}, fmt.Errorf("decode skills for %s: %w", key, err)
		}
	}
	return p, nil
}

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

func (r *SQLRepo) rebind(query string) string {
	if r.Dialect != "sqlite" {
		return query
	}
	return placeholderPattern.ReplaceAllString(query, "?$1")
}

func (r *SQLRepo) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}

func encodeSkills(skills []string) (any, error) {
	if len(skills) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(skills)
	if err != nil {
		return nil, fmt.Errorf("encode skills: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
