package main

// Apply database migrations for STORE=postgres or STORE=sqlite:
//   go run ./cmd/migrate

import (
	"context"
	"database/sql"
	"log"
	"os"

	"jobbot/internal/shared/config"
	"jobbot/internal/shared/storage/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("load config: %v", err)
		os.Exit(2)
	}
	ctx := context.Background()

	opts := db.OptionsFromEnv(db.DefaultCLIOptions())
	var sqlDB *sql.DB
	switch cfg.Storage.Store {
	case db.DialectPostgres:
		sqlDB, err = db.Connect(ctx, cfg.Storage.DatabaseURL, opts)
	case db.DialectSQLite:
		sqlDB, err = db.ConnectSQLite(ctx, cfg.Storage.SQLitePath, opts)
	default:
		log.Printf("STORE=%s has no migrations", cfg.Storage.Store)
		return
	}
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB, cfg.Storage.Store); err != nil {
		log.Printf("failed to run migrations: %v", err)
		os.Exit(1)
	}
	log.Printf("migrations applied for %s", cfg.Storage.Store)
}
