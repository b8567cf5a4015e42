package db

import (
	"context"
	"database/sql"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var registerMockDSN sync.Once

// withTestDriver routes openDB to a sqlmock connection; pings succeed without expectations.
func withTestDriver(t *testing.T) func() {
	t.Helper()
	registerMockDSN.Do(func() {
		if _, _, err := sqlmock.NewWithDSN("dbtest"); err != nil {
			t.Fatalf("sqlmock: %v", err)
		}
	})
	prev := openDB
	openDB = func(_, _ string) (*sql.DB, error) {
		return sql.Open("sqlmock", "dbtest")
	}
	return func() {
		openDB = prev
	}
}

func TestOptionsFromEnvAppliesOverrides(t *testing.T) {
	restore := withTestDriver(t)
	defer restore()

	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("DB_MAX_IDLE_CONNS", "3")
	t.Setenv("DB_CONN_MAX_LIFETIME", "20m")
	t.Setenv("DB_CONN_MAX_IDLE_TIME", "45s")
	t.Setenv("DB_PING_TIMEOUT", "1s")

	opts := OptionsFromEnv(DefaultServerOptions())
	db, err := Connect(context.Background(), "ignored", opts)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer db.Close()

	stats := db.Stats()
	if stats.MaxOpenConnections != 7 {
		t.Fatalf("expected MaxOpenConnections=7, got %d", stats.MaxOpenConnections)
	}
	if opts.MaxIdleConns != 3 {
		t.Fatalf("expected MaxIdleConns=3, got %d", opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime != 20*time.Minute {
		t.Fatalf("expected ConnMaxLifetime=20m, got %s", opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime != 45*time.Second {
		t.Fatalf("expected ConnMaxIdleTime=45s, got %s", opts.ConnMaxIdleTime)
	}
	if opts.PingTimeout != time.Second {
		t.Fatalf("expected PingTimeout=1s, got %s", opts.PingTimeout)
	}
}

func TestOptionsFromEnvSkipsInvalidValues(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "lots")
	t.Setenv("DB_PING_TIMEOUT", "soon")

	opts := OptionsFromEnv(DefaultCLIOptions())
	if opts != DefaultCLIOptions() {
		t.Fatalf("invalid env changed options: %+v", opts)
	}
}

func TestSQLiteDSNCarriesPragmas(t *testing.T) {
	dsn := sqliteDSN("/tmp/jobbot.db")
	path, query, ok := strings.Cut(dsn, "?")
	if !ok || path != "/tmp/jobbot.db" {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	q, err := url.ParseQuery(query)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	got := q["_pragma"]
	if len(got) != len(sqlitePragmas) || got[2] != "journal_mode(WAL)" {
		t.Fatalf("unexpected pragmas %v", got)
	}
}

func TestConnectRejectsEmptyURL(t *testing.T) {
	if _, err := Connect(context.Background(), "  ", DefaultCLIOptions()); err == nil {
		t.Fatal("expected error for empty DATABASE_URL")
	}
}

func TestConnectSQLitePinsSingleConnection(t *testing.T) {
	var gotDriver, gotDSN string
	prev := openDB
	restore := withTestDriver(t)
	defer restore()
	mocked := openDB
	openDB = func(name, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = name, dsn
		return mocked(name, dsn)
	}
	defer func() { openDB = prev }()

	path := filepath.Join(t.TempDir(), "nested", "jobbot.db")
	db, err := ConnectSQLite(context.Background(), path, DefaultServerOptions())
	if err != nil {
		t.Fatalf("ConnectSQLite: %v", err)
	}
	defer db.Close()

	if gotDriver != "sqlite" {
		t.Fatalf("expected sqlite driver, got %q", gotDriver)
	}
	if !strings.HasPrefix(gotDSN, path+"?") {
		t.Fatalf("unexpected dsn %q", gotDSN)
	}
	if db.Stats().MaxOpenConnections != 1 {
		t.Fatalf("expected single connection pool, got %d", db.Stats().MaxOpenConnections)
	}
}

func TestMigrationTarget(t *testing.T) {
	dialect, dir, err := migrationTarget(DialectSQLite)
	if err != nil || dialect != "sqlite3" || dir != "migrations/sqlite" {
		t.Fatalf("sqlite target = %q %q %v", dialect, dir, err)
	}
	if _, _, err := migrationTarget("mysql"); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
	entries, err := migrationFiles.ReadDir("migrations/postgres")
	if err != nil || len(entries) == 0 {
		t.Fatalf("postgres migrations not embedded: %v", err)
	}
}
