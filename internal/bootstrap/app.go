package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"jobbot/internal/boards"
	"jobbot/internal/documents"
	"jobbot/internal/orchestrator"
	"jobbot/internal/postings"
	"jobbot/internal/ratelimit"
	"jobbot/internal/retry"
	"jobbot/internal/shared/config"
	"jobbot/internal/shared/storage/db"
	localstore "jobbot/internal/shared/storage/object/local"
	s3store "jobbot/internal/shared/storage/object/s3"
	"jobbot/internal/shared/telemetry"
)

const (
	defaultRegion = "us-east-1"
	rateBudgetKey = "jobbot:rate_budget"
	storeMemory   = "memory"
	storeJSON     = "json"
	budgetRedis   = "redis"
)

// App holds shared dependencies for the CLI and the scheduler.
type App struct {
	Config       config.Config
	DB           *sql.DB
	Repo         postings.Repo
	Limiter      *ratelimit.Limiter
	Browser      *boards.Chrome
	Automators   []boards.Automator
	Orchestrator *orchestrator.Orchestrator

	closers []func() error
}

// Build prepares every dependency. Nothing touches a job board until a cycle runs; the
// browser starts on the first application.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	app := &App{Config: cfg}

	repo, sqlDB, err := buildRepo(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Repo = repo
	app.DB = sqlDB
	if sqlDB != nil {
		app.closers = append(app.closers, sqlDB.Close)
	}

	limiter, closeBudget, err := buildLimiter(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Limiter = limiter
	if closeBudget != nil {
		app.closers = append(app.closers, closeBudget)
	}

	app.Browser = boards.NewChrome(boards.ChromeOptions{
		Headless: cfg.Browser.Headless,
		ExecPath: cfg.Browser.ChromePath,
		Timeout:  cfg.RateLimit.RequestTimeout,
	})
	app.closers = append(app.closers, app.Browser.Close)

	deps := boards.Deps{
		Limiter: limiter,
		Retry:   retryPolicy(cfg.RateLimit),
		Timeout: cfg.RateLimit.RequestTimeout,
	}
	automators, err := buildAutomators(cfg, deps, app.Browser)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Automators = automators

	app.Orchestrator = orchestrator.New(orchestrator.Deps{
		Repo:       repo,
		Automators: automators,
		Documents:  documentSource(cfg),
		Limiter:    limiter,
	}, orchestrator.Options{
		Keywords:      cfg.Search.Keywords,
		Locations:     cfg.Search.Locations,
		DatePosted:    cfg.Search.DatePosted,
		SearchLimit:   cfg.Search.Limit,
		DailyLimit:    cfg.Application.DailyLimit,
		AutoApply:     cfg.Application.AutoApply,
		ApplyExternal: cfg.Application.ApplyExternal,
		Delay:         cfg.Application.Delay,
		Cooldown:      cfg.RateLimit.Cooldown,
	})
	return app, nil
}

// Close releases the browser, the rate budget connection and the database, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Boards returns the configured boards in processing order.
func (a *App) Boards() []postings.Board {
	out := make([]postings.Board, 0, len(a.Automators))
	for _, au := range a.Automators {
		out = append(out, au.Board())
	}
	return out
}

// ExportStore returns where an export to dest should be written. Remote keys go under S3_PREFIX.
func (a *App) ExportStore(ctx context.Context, dest postings.Destination) (postings.Uploader, error) {
	if !dest.Remote() {
		return localstore.New(dest.Dir), nil
	}
	region := a.Config.AWSRegion
	if strings.TrimSpace(region) == "" {
		region = defaultRegion
	}
	return s3store.New(ctx, s3store.Options{
		Region: region,
		Bucket: dest.Bucket,
		Prefix: a.Config.S3Prefix,
	})
}

func buildRepo(ctx context.Context, cfg config.Config) (postings.Repo, *sql.DB, error) {
	st := cfg.Storage
	switch st.Store {
	case storeMemory:
		log.Printf("bootstrap: STORE=memory; postings are not persisted")
		return postings.NewMemoryRepo(), nil, nil
	case db.DialectPostgres:
		sqlDB, err := db.Connect(ctx, st.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
		if err != nil {
			return nil, nil, err
		}
		return postings.NewSQLRepo(sqlDB, db.DialectPostgres), sqlDB, nil
	case db.DialectSQLite:
		sqlDB, err := db.ConnectSQLite(ctx, st.SQLitePath, db.OptionsFromEnv(db.DefaultCLIOptions()))
		if err != nil {
			return nil, nil, err
		}
		// SQLite files are local to this process, so they are migrated on open.
		if err := db.RunMigrations(ctx, sqlDB, db.DialectSQLite); err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		return postings.NewSQLRepo(sqlDB, db.DialectSQLite), sqlDB, nil
	case storeJSON, "":
		return postings.NewJSONRepo(st.LocalPath), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE %q", st.Store)
	}
}

func buildLimiter(ctx context.Context, cfg config.Config) (*ratelimit.Limiter, func() error, error) {
	rl := cfg.RateLimit
	opts := ratelimit.Options{
		PerMinute:   rl.PerMinute,
		PerHour:     rl.PerHour,
		MinInterval: rl.MinInterval,
	}
	var closeFn func() error
	if rl.BudgetStore == budgetRedis {
		client, err := ratelimit.DialRedis(ctx, rl.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		opts.Budget = ratelimit.NewRedisBudget(client, rateBudgetKey)
		closeFn = client.Close
	}
	return ratelimit.New(opts), closeFn, nil
}

func retryPolicy(rl config.RateLimitConfig) retry.Policy {
	return retry.Policy{
		Attempts: rl.RetryAttempts,
		Base:     rl.RetryBase,
		Max:      rl.RetryMax,
		Jitter:   rl.RetryBase / 2,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			telemetry.Warn("request.retry_scheduled", map[string]any{
				"attempt": attempt,
				"delay":   delay.String(),
				"error":   err.Error(),
			})
		},
	}
}

func buildAutomators(cfg config.Config, deps boards.Deps, browser boards.Browser) ([]boards.Automator, error) {
	var out []boards.Automator
	for _, name := range cfg.Search.Boards {
		board, ok := postings.ParseBoard(name)
		if !ok {
			return nil, fmt.Errorf("unknown board %q", name)
		}
		switch board {
		case postings.BoardLinkedIn:
			out = append(out, boards.NewLinkedIn(deps, browser, boards.LinkedInOptions{
				Email:    cfg.LinkedInEmail,
				Password: cfg.LinkedInPassword,
			}))
		case postings.BoardIndeed:
			out = append(out, boards.NewIndeed(deps, browser, boards.IndeedOptions{
				OAuthWait: cfg.Browser.OAuthWait,
			}))
		case postings.BoardGlassdoor:
			out = append(out, boards.NewGlassdoor(deps))
		}
	}
	return out, nil
}

func documentSource(cfg config.Config) orchestrator.DocumentSource {
	app := cfg.Application
	return func(ctx context.Context) (documents.Bundle, error) {
		return documents.Load(ctx,
			documents.Paths{Resume: app.ResumePath, CoverLetter: app.CoverLetterPath},
			documents.Profile{Phone: app.Phone, Website: app.Website, LinkedInURL: app.LinkedInURL},
		)
	}
}
