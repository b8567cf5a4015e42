package postings

import "time"

// Board identifies a job-listing website.
type Board string

const (
	BoardLinkedIn  Board = "linkedin"
	BoardIndeed    Board = "indeed"
	BoardGlassdoor Board = "glassdoor"
)

// Boards lists every supported board in processing order.
var Boards = []Board{BoardLinkedIn, BoardIndeed, BoardGlassdoor}

// ParseBoard maps a config or flag value to a Board.
func ParseBoard(raw string) (Board, bool) {
	for _, b := range Boards {
		if string(b) == raw {
			return b, true
		}
	}
	return "", false
}

// Domain is the host suffix a board serves its own apply flow on.
func (b Board) Domain() string {
	return string(b) + ".com"
}

// Status tracks where a posting is in the apply flow.
type Status string

const (
	StatusNotApplied Status = "not_applied"
	StatusPending    Status = "pending"
	StatusApplied    Status = "applied"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotApplied, StatusPending, StatusApplied, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// JobPosting is one scraped listing.
type JobPosting struct {
	JobID           string     `json:"job_id"`
	Board           Board      `json:"job_board"`
	Title           string     `json:"title"`
	Company         string     `json:"company"`
	Location        string     `json:"location"`
	PostingDate     string     `json:"posting_date"`
	URL             string     `json:"url"`
	Description     string     `json:"description,omitempty"`
	SalaryRange     string     `json:"salary_range,omitempty"`
	JobType         string     `json:"job_type,omitempty"`
	ExperienceLevel string     `json:"experience_level,omitempty"`
	SkillsRequired  []string   `json:"skills_required,omitempty"`
	CompanySize     string     `json:"company_size,omitempty"`
	Industry        string     `json:"industry,omitempty"`
	Status          Status     `json:"application_status"`
	AppliedDate     *time.Time `json:"applied_date,omitempty"`
	Notes           string     `json:"application_notes,omitempty"`
	ScrapedDate     time.Time  `json:"scraped_date"`
}

// Outcome classifies one apply attempt.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeFailed         Outcome = "failed"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeNotImplemented Outcome = "not_implemented"
	OutcomeAlreadyApplied Outcome = "already_applied"
	OutcomeDryRun         Outcome = "dry_run"
)

// ApplicationResult records one apply attempt. It is never modified after creation.
type ApplicationResult struct {
	ID         string    `json:"id"`
	PostingKey Key       `json:"posting_key"`
	JobID      string    `json:"job_id"`
	Board      Board     `json:"job_board"`
	Title      string    `json:"job_title"`
	Company    string    `json:"company"`
	URL        string    `json:"job_url"`
	Success    bool      `json:"success"`
	Outcome    Outcome   `json:"outcome"`
	Message    string    `json:"message"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// StatusChange is applied by UpdateStatus.
type StatusChange struct {
	Status Status
	Notes  string
	At     time.Time
}

// SaveResult counts what an upsert did.
type SaveResult struct {
	Inserted int
	Updated  int
}
