// Package orchestrator runs search and apply cycles across the configured boards.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"jobbot/internal/boards"
	"jobbot/internal/documents"
	"jobbot/internal/postings"
	"jobbot/internal/ratelimit"
	"jobbot/internal/shared/metrics"
	"jobbot/internal/shared/telemetry"
)

const (
	defaultCooldown = 5 * time.Minute

	msgAutoApplyOff = "Auto-apply disabled - manual application required"
	msgExternal     = "External application site - skipped"
	msgDryRun       = "Dry run - application not submitted"
)

// Stages a board can fail in.
const (
	StageSearch = "search"
	StageSave   = "save"
	StageApply  = "apply"
)

// Cooler pauses outbound traffic after a board throttled us.
type Cooler interface {
	Cooldown(d time.Duration)
}

// DocumentSource loads the applicant's documents. It is only called when a real
// application is about to be submitted.
type DocumentSource func(ctx context.Context) (documents.Bundle, error)

type Options struct {
	Keywords    []string
	Locations   []string
	DatePosted  string
	SearchLimit int

	DailyLimit    int
	AutoApply     bool
	ApplyExternal bool
	// Delay separates consecutive submitted applications.
	Delay time.Duration
	// Cooldown is used when a throttled board gives no Retry-After.
	Cooldown time.Duration
}

type Deps struct {
	Repo       postings.Repo
	Automators []boards.Automator
	Documents  DocumentSource
	Limiter    Cooler
	Now        func() time.Time
	Sleep      func(ctx context.Context, d time.Duration) error
}

// CycleOptions narrow one run.
type CycleOptions struct {
	Boards []postings.Board
	// MaxApplications caps attempts this cycle. Zero means the remaining daily allowance.
	MaxApplications int
	DryRun          bool
}

// Failure is one board-level problem recorded during a cycle.
type Failure struct {
	Board postings.Board `json:"board"`
	Stage string         `json:"stage"`
	Kind  string         `json:"kind"`
	Error string         `json:"error"`
}

type CycleReport struct {
	Started   time.Time                    `json:"started"`
	Finished  time.Time                    `json:"finished"`
	Found     int                          `json:"found"`
	Inserted  int                          `json:"inserted"`
	Updated   int                          `json:"updated"`
	Attempted int                          `json:"attempted"`
	Applied   int                          `json:"applied"`
	Skipped   int                          `json:"skipped"`
	Failed    int                          `json:"failed"`
	Results   []postings.ApplicationResult `json:"results,omitempty"`
	Failures  []Failure                    `json:"failures,omitempty"`
}

// Degraded reports a cycle where some board failed and nothing was applied.
// Boards that are not implemented do not count as failures.
func (r CycleReport) Degraded() bool {
	if r.Applied > 0 {
		return false
	}
	for _, f := range r.Failures {
		if f.Kind != boards.KindNotImplemented {
			return true
		}
	}
	return false
}

type Orchestrator struct {
	repo       postings.Repo
	automators map[postings.Board]boards.Automator
	order      []postings.Board
	docs       DocumentSource
	limiter    Cooler
	opts       Options
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

func New(deps Deps, opts Options) *Orchestrator {
	o := &Orchestrator{
		repo:       deps.Repo,
		automators: make(map[postings.Board]boards.Automator, len(deps.Automators)),
		docs:       deps.Documents,
		limiter:    deps.Limiter,
		opts:       opts,
		now:        deps.Now,
		sleep:      deps.Sleep,
	}
	for _, a := range deps.Automators {
		if _, dup := o.automators[a.Board()]; !dup {
			o.order = append(o.order, a.Board())
		}
		o.automators[a.Board()] = a
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.sleep == nil {
		o.sleep = ratelimit.SleepContext
	}
	if o.opts.Cooldown <= 0 {
		o.opts.Cooldown = defaultCooldown
	}
	return o
}

// RunCycle searches every selected board, then applies to pending postings.
func (o *Orchestrator) RunCycle(ctx context.Context, opts CycleOptions) (CycleReport, error) {
	report := CycleReport{Started: o.now().UTC()}
	defer func() { metrics.ObserveCycleDuration(o.now().Sub(report.Started)) }()

	authFailed, err := o.search(ctx, opts, &report)
	if err != nil {
		report.Finished = o.now().UTC()
		return report, err
	}
	err = o.applyPending(ctx, opts, authFailed, &report)
	report.Finished = o.now().UTC()
	o.logReport("cycle.completed", report)
	return report, err
}

// Search runs only the search stage.
func (o *Orchestrator) Search(ctx context.Context, opts CycleOptions) (CycleReport, error) {
	report := CycleReport{Started: o.now().UTC()}
	_, err := o.search(ctx, opts, &report)
	report.Finished = o.now().UTC()
	o.logReport("search.completed", report)
	return report, err
}

// ApplyPending runs only the apply stage against what is already stored.
func (o *Orchestrator) ApplyPending(ctx context.Context, opts CycleOptions) (CycleReport, error) {
	report := CycleReport{Started: o.now().UTC()}
	err := o.applyPending(ctx, opts, nil, &report)
	report.Finished = o.now().UTC()
	o.logReport("apply.completed", report)
	return report, err
}

func (o *Orchestrator) boards(opts CycleOptions) []postings.Board {
	if len(opts.Boards) == 0 {
		return o.order
	}
	return opts.Boards
}

// search returns the boards that failed authentication. Only context errors abort it.
func (o *Orchestrator) search(ctx context.Context, opts CycleOptions, report *CycleReport) (map[postings.Board]bool, error) {
	authFailed := map[postings.Board]bool{}
	for _, board := range o.boards(opts) {
		if err := ctx.Err(); err != nil {
			return authFailed, err
		}
		a, ok := o.automators[board]
		if !ok {
			o.recordFailure(report, board, StageSearch, fmt.Errorf("no automator configured for %s", board))
			continue
		}

		found, searchErr := o.searchBoard(ctx, a)
		if searchErr != nil {
			if ctx.Err() != nil {
				return authFailed, ctx.Err()
			}
			o.handleBoardError(board, searchErr)
			var authErr *boards.AuthenticationError
			if errors.As(searchErr, &authErr) {
				authFailed[board] = true
			}
			o.recordFailure(report, board, StageSearch, searchErr)
		}
		if len(found) == 0 {
			continue
		}

		unique := postings.Dedupe(found)
		report.Found += len(unique)
		metrics.AddPostingsFound(string(board), len(unique))
		saved, err := o.repo.Save(ctx, unique)
		if err != nil {
			if ctx.Err() != nil {
				return authFailed, ctx.Err()
			}
			o.recordFailure(report, board, StageSave, err)
			continue
		}
		report.Inserted += saved.Inserted
		report.Updated += saved.Updated
		telemetry.Info("search.board_saved", map[string]any{
			"board":    string(board),
			"found":    len(unique),
			"inserted": saved.Inserted,
			"updated":  saved.Updated,
		})
	}
	return authFailed, nil
}

// searchBoard ranges every keyword and location pair. Postings found before an error are kept.
func (o *Orchestrator) searchBoard(ctx context.Context, a boards.Automator) ([]postings.JobPosting, error) {
	locations := o.opts.Locations
	if len(locations) == 0 {
		locations = []string{""}
	}
	var found []postings.JobPosting
	for _, keyword := range o.opts.Keywords {
		for _, location := range locations {
			c := boards.Criteria{
				Keyword:    keyword,
				Location:   location,
				DatePosted: o.opts.DatePosted,
				Limit:      o.opts.SearchLimit,
			}
			for p, err := range a.Search(ctx, c) {
				if err != nil {
					return found, err
				}
				found = append(found, p)
			}
		}
	}
	return found, nil
}

func (o *Orchestrator) applyPending(ctx context.Context, opts CycleOptions, authFailed map[postings.Board]bool, report *CycleReport) error {
	selected := map[postings.Board]bool{}
	for _, b := range o.boards(opts) {
		selected[b] = !authFailed[b]
	}

	budget, err := o.allowance(ctx, opts)
	if err != nil {
		return err
	}
	if budget <= 0 {
		telemetry.Info("apply.daily_limit_reached", map[string]any{"daily_limit": o.opts.DailyLimit})
		return nil
	}

	all, err := o.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load postings: %w", err)
	}
	var queue []postings.JobPosting
	for _, p := range all {
		if p.Status == postings.StatusNotApplied && selected[p.Board] {
			queue = append(queue, p)
		}
	}
	if len(queue) > budget {
		queue = queue[:budget]
	}
	telemetry.Info("apply.selected", map[string]any{"postings": len(queue), "dry_run": opts.DryRun})

	var (
		bundle    *documents.Bundle
		stopped   = map[postings.Board]bool{}
		submitted = 0
	)
	for _, candidate := range queue {
		if err := ctx.Err(); err != nil {
			return err
		}
		if stopped[candidate.Board] {
			continue
		}
		p, err := o.repo.Get(ctx, candidate.Key())
		if err != nil {
			o.recordFailure(report, candidate.Board, StageApply, err)
			continue
		}
		if p.Status != postings.StatusNotApplied {
			report.Skipped++
			continue
		}

		switch {
		case opts.DryRun:
			o.record(report, o.result(p, postings.OutcomeDryRun, msgDryRun))
			continue
		case !o.opts.AutoApply:
			res := o.result(p, postings.OutcomeSkipped, msgAutoApplyOff)
			if err := o.repo.LogApplication(ctx, res); err != nil {
				return fmt.Errorf("log application: %w", err)
			}
			o.record(report, res)
			continue
		case !o.opts.ApplyExternal && !postings.IsNative(p.Board, p.URL):
			res := o.result(p, postings.OutcomeSkipped, msgExternal)
			if err := o.persist(ctx, p, res, postings.StatusSkipped); err != nil {
				return err
			}
			o.record(report, res)
			continue
		}

		if bundle == nil {
			b, err := o.loadDocuments(ctx)
			if err != nil {
				return err
			}
			bundle = &b
		}
		if submitted > 0 && o.opts.Delay > 0 {
			if err := o.sleep(ctx, o.opts.Delay); err != nil {
				return err
			}
		}
		submitted++

		stop, err := o.applyOne(ctx, p, *bundle, report)
		if err != nil {
			return err
		}
		if stop {
			stopped[p.Board] = true
		}
	}
	return nil
}

// applyOne marks p pending, applies, and persists the outcome. It reports whether the board
// should not be tried again this cycle.
func (o *Orchestrator) applyOne(ctx context.Context, p postings.JobPosting, docs documents.Bundle, report *CycleReport) (bool, error) {
	a, ok := o.automators[p.Board]
	if !ok {
		o.recordFailure(report, p.Board, StageApply, fmt.Errorf("no automator configured for %s", p.Board))
		return true, nil
	}
	key := p.Key()
	if err := o.repo.UpdateStatus(ctx, key, postings.StatusChange{Status: postings.StatusPending, At: o.now()}); err != nil {
		return false, fmt.Errorf("mark pending: %w", err)
	}
	report.Attempted++

	res, applyErr := a.Apply(ctx, p, docs)
	if res.ID == "" {
		res = o.result(p, postings.OutcomeFailed, errorMessage(applyErr))
		res.ErrorKind = boards.Kind(applyErr)
	}

	var (
		authErr *boards.AuthenticationError
		rateErr *boards.RateLimitError
		stop    bool
		status  postings.Status
	)
	switch {
	case applyErr == nil:
		status = statusFor(res.Outcome)
	case ctx.Err() != nil:
		// Leave the posting selectable for the next run.
		revert := context.WithoutCancel(ctx)
		if err := o.repo.UpdateStatus(revert, key, postings.StatusChange{Status: postings.StatusNotApplied, At: o.now()}); err != nil {
			telemetry.Error("apply.revert_failed", map[string]any{"key": string(key), "error": err.Error()})
		}
		return true, ctx.Err()
	case errors.As(applyErr, &rateErr):
		o.handleBoardError(p.Board, applyErr)
		status = postings.StatusNotApplied
		o.recordFailure(report, p.Board, StageApply, applyErr)
	case errors.As(applyErr, &authErr):
		status = postings.StatusNotApplied
		stop = true
		o.recordFailure(report, p.Board, StageApply, applyErr)
	case errors.Is(applyErr, boards.ErrNotImplemented):
		status = postings.StatusSkipped
		stop = true
		o.recordFailure(report, p.Board, StageApply, applyErr)
	default:
		status = postings.StatusFailed
	}

	if err := o.persist(ctx, p, res, status); err != nil {
		return stop, err
	}
	o.record(report, res)
	return stop, nil
}

// persist writes the log entry and the new status right away.
func (o *Orchestrator) persist(ctx context.Context, p postings.JobPosting, res postings.ApplicationResult, status postings.Status) error {
	if err := o.repo.LogApplication(ctx, res); err != nil {
		return fmt.Errorf("log application: %w", err)
	}
	notes := res.Message
	if res.Outcome == postings.OutcomeApplied {
		notes = ""
	}
	if err := o.repo.UpdateStatus(ctx, p.Key(), postings.StatusChange{Status: status, Notes: notes, At: res.Timestamp}); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// allowance is how many postings may be attempted this cycle.
func (o *Orchestrator) allowance(ctx context.Context, opts CycleOptions) (int, error) {
	remaining := -1
	if o.opts.DailyLimit > 0 && !opts.DryRun {
		now := o.now()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		today, err := o.repo.Applications(ctx, midnight)
		if err != nil {
			return 0, fmt.Errorf("count today's applications: %w", err)
		}
		done := 0
		for _, r := range today {
			if r.Success {
				done++
			}
		}
		remaining = max(o.opts.DailyLimit-done, 0)
	}
	switch {
	case opts.MaxApplications > 0 && remaining >= 0:
		return min(opts.MaxApplications, remaining), nil
	case opts.MaxApplications > 0:
		return opts.MaxApplications, nil
	case remaining >= 0:
		return remaining, nil
	case o.opts.DailyLimit > 0:
		return o.opts.DailyLimit, nil
	default:
		return math.MaxInt, nil
	}
}

func (o *Orchestrator) loadDocuments(ctx context.Context) (documents.Bundle, error) {
	if o.docs == nil {
		return documents.Bundle{}, nil
	}
	b, err := o.docs(ctx)
	if err != nil {
		return documents.Bundle{}, fmt.Errorf("load documents: %w", err)
	}
	return b, nil
}

// handleBoardError starts a cooldown when the board throttled us.
func (o *Orchestrator) handleBoardError(board postings.Board, err error) {
	var rateErr *boards.RateLimitError
	if !errors.As(err, &rateErr) || o.limiter == nil {
		return
	}
	wait := rateErr.RetryAfter
	if wait <= 0 {
		wait = o.opts.Cooldown
	}
	o.limiter.Cooldown(wait)
	telemetry.Warn("board.cooldown", map[string]any{"board": string(board), "wait": wait.String()})
}

func (o *Orchestrator) recordFailure(report *CycleReport, board postings.Board, stage string, err error) {
	kind := boards.Kind(err)
	report.Failures = append(report.Failures, Failure{Board: board, Stage: stage, Kind: kind, Error: err.Error()})
	metrics.IncBoardFailure(string(board), stage, kind)
	telemetry.Warn("board.failed", map[string]any{
		"board": string(board),
		"stage": stage,
		"kind":  kind,
		"error": err.Error(),
	})
}

func (o *Orchestrator) record(report *CycleReport, res postings.ApplicationResult) {
	report.Results = append(report.Results, res)
	switch res.Outcome {
	case postings.OutcomeApplied:
		report.Applied++
	case postings.OutcomeFailed:
		report.Failed++
	default:
		report.Skipped++
	}
	metrics.IncApplication(string(res.Board), string(res.Outcome))
	fields := map[string]any{
		"board":   string(res.Board),
		"job":     res.JobID,
		"title":   res.Title,
		"company": res.Company,
		"outcome": string(res.Outcome),
	}
	if res.ErrorKind != "" {
		fields["kind"] = res.ErrorKind
		fields["message"] = res.Message
	}
	telemetry.Info("apply.result", fields)
}

func (o *Orchestrator) result(p postings.JobPosting, outcome postings.Outcome, msg string) postings.ApplicationResult {
	return postings.ApplicationResult{
		ID:         uuid.NewString(),
		PostingKey: p.Key(),
		JobID:      p.EnsureJobID(),
		Board:      p.Board,
		Title:      p.Title,
		Company:    p.Company,
		URL:        p.URL,
		Success:    outcome == postings.OutcomeApplied,
		Outcome:    outcome,
		Message:    msg,
		Timestamp:  o.now().UTC(),
	}
}

func (o *Orchestrator) logReport(msg string, r CycleReport) {
	telemetry.Info(msg, map[string]any{
		"found":     r.Found,
		"inserted":  r.Inserted,
		"updated":   r.Updated,
		"attempted": r.Attempted,
		"applied":   r.Applied,
		"skipped":   r.Skipped,
		"failed":    r.Failed,
		"failures":  len(r.Failures),
		"duration":  r.Finished.Sub(r.Started).String(),
	})
}

func statusFor(outcome postings.Outcome) postings.Status {
	switch outcome {
	case postings.OutcomeApplied, postings.OutcomeAlreadyApplied:
		return postings.StatusApplied
	case postings.OutcomeSkipped, postings.OutcomeNotImplemented:
		return postings.StatusSkipped
	default:
		return postings.StatusFailed
	}
}

func errorMessage(err error) string {
	if err == nil {
		return "no result returned"
	}
	return err.Error()
}
