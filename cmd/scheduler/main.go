package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"jobbot/internal/bootstrap"
	"jobbot/internal/shared/config"
	"jobbot/internal/shared/server"
	"jobbot/internal/shared/server/middleware"
	"jobbot/internal/shared/telemetry"
)

const (
	defaultShutdownTimeoutSec = 300
	defaultStatusRate         = 5
	defaultStatusBurst        = 20
	httpShutdownTimeout       = 10 * time.Second
	readHeaderTimeout         = 5 * time.Second
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	logs, err := telemetry.TeeToFile(cfg.Storage.LogFilePath)
	if err != nil {
		log.Fatalf("log file: %v", err)
	}
	defer logs.Close()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTimeout := time.Duration(envInt("SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	app, err := bootstrap.Build(stopCtx, cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	sched := newScheduler(app.Orchestrator.RunCycle, cfg.ScheduleInterval)
	limit := middleware.RateLimitRule{
		Rate:  float64(envInt("STATUS_API_RATE", defaultStatusRate)),
		Burst: envInt("STATUS_API_BURST", defaultStatusBurst),
	}
	router := server.NewRouter(server.RouterDeps{
		Repo:    app.Repo,
		Budget:  app.Limiter,
		Cycles:  sched,
		Limit:   limit,
		Version: version,
	})
	srv := &http.Server{
		Addr:              server.Addr(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			telemetry.Error("scheduler.http_failed", map[string]any{"addr": srv.Addr, "error": err})
			stop()
		}
	}()

	// Cycles run on their own context so a signal lets the current one finish.
	work, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.loop(stopCtx, work)
	}()

	log.Printf("scheduler started addr=%s interval=%s boards=%v", srv.Addr, cfg.ScheduleInterval, app.Boards())
	<-stopCtx.Done()

	log.Printf("shutdown requested, waiting up to %s for the in-flight cycle", shutdownTimeout)
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; cancelling the in-flight cycle")
		cancelWork()
		<-done
	}

	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}
