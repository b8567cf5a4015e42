package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	_ "modernc.org/sqlite"             // sqlite database/sql driver

	"jobbot/internal/shared/telemetry"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	defaultPingTimeout = 5 * time.Second
)

// Options sizes the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

var openDB = sql.Open

// sqlitePragmas apply to every SQLite connection. WAL lets the CLI read while the
// scheduler writes.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"journal_mode(WAL)",
}

func pool(maxOpen, maxIdle int) Options {
	return Options{
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 2 * time.Minute,
		PingTimeout:     defaultPingTimeout,
	}
}

// DefaultCLIOptions suits one-shot commands and migrations.
func DefaultCLIOptions() Options { return pool(2, 1) }

// DefaultServerOptions suits the scheduler, which serves the status API alongside cycles.
func DefaultServerOptions() Options { return pool(5, 2) }

type envOverride struct {
	key   string
	apply func(*Options, string) error
}

var envOverrides = []envOverride{
	{"DB_MAX_OPEN_CONNS", intSetter(func(o *Options, v int) { o.MaxOpenConns = v })},
	{"DB_MAX_IDLE_CONNS", intSetter(func(o *Options, v int) { o.MaxIdleConns = v })},
	{"DB_CONN_MAX_LIFETIME", durationSetter(func(o *Options, v time.Duration) { o.ConnMaxLifetime = v })},
	{"DB_CONN_MAX_IDLE_TIME", durationSetter(func(o *Options, v time.Duration) { o.ConnMaxIdleTime = v })},
	{"DB_PING_TIMEOUT", durationSetter(func(o *Options, v time.Duration) { o.PingTimeout = v })},
}

func intSetter(set func(*Options, int)) func(*Options, string) error {
	return func(o *Options, raw string) error {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		set(o, v)
		return nil
	}
}

func durationSetter(set func(*Options, time.Duration)) func(*Options, string) error {
	return func(o *Options, raw string) error {
		v, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		set(o, v)
		return nil
	}
}

// OptionsFromEnv applies DB_* overrides to defaults. Unparseable values are logged and skipped.
func OptionsFromEnv(defaults Options) Options {
	opts := defaults
	for _, ov := range envOverrides {
		raw := strings.TrimSpace(os.Getenv(ov.key))
		if raw == "" {
			continue
		}
		if err := ov.apply(&opts, raw); err != nil {
			telemetry.Warn("db.env_invalid", map[string]any{"key": ov.key, "value": raw, "error": err.Error()})
		}
	}
	return opts
}

// Connect opens Postgres at databaseURL through pgx and pings it.
func Connect(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	return open(ctx, "pgx", databaseURL, opts)
}

// ConnectSQLite opens the SQLite file at path, creating its directory. The pool is pinned
// to one connection because SQLite serializes writers.
func ConnectSQLite(ctx context.Context, path string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite dir: %w", err)
	}
	opts.MaxOpenConns, opts.MaxIdleConns = 1, 1
	return open(ctx, "sqlite", sqliteDSN(path), opts)
}

func sqliteDSN(path string) string {
	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	return path + "?" + q.Encode()
}

func open(ctx context.Context, driver, dsn string, opts Options) (*sql.DB, error) {
	db, err := openDB(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	configurePool(db, opts)

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	stats := db.Stats()
	telemetry.Info("db.connected", map[string]any{
		"driver":   driver,
		"max_open": stats.MaxOpenConnections,
		"open":     stats.OpenConnections,
		"idle":     stats.Idle,
	})
	return db, nil
}

func configurePool(db *sql.DB, opts Options) {
	db.SetMaxOpenConns(max(opts.MaxOpenConns, 1))
	db.SetMaxIdleConns(max(opts.MaxIdleConns, 1))
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
}
