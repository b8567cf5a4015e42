package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"jobbot/internal/orchestrator"
	"jobbot/internal/postings"
	"jobbot/internal/ratelimit"
	"jobbot/internal/shared/metrics"
	"jobbot/internal/shared/server/middleware"
	"jobbot/internal/shared/server/respond"
)

const defaultReportWindow = 24 * time.Hour

type BudgetSource interface {
	Snapshot(ctx context.Context) (ratelimit.RateBudget, error)
}

// CycleSource reports the most recent finished cycle, if any.
type CycleSource interface {
	LastCycle() (orchestrator.CycleReport, bool)
}

type RouterDeps struct {
	Repo    postings.Repo
	Budget  BudgetSource
	Cycles  CycleSource
	Limit   middleware.RateLimitRule
	Now     func() time.Time
	Version string
}

// NewRouter constructs the status API served next to the scheduler.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if deps.Now == nil {
		deps.Now = time.Now
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rule: deps.Limit,
			Skip: func(c *gin.Context) bool {
				p := c.Request.URL.Path
				return p == "/healthz" || p == "/metrics"
			},
		}),
	)

	r.GET("/healthz", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true, "version": deps.Version})
	})
	r.GET("/metrics", metrics.Handler())

	h := &handlers{deps: deps}
	api := r.Group("/api/v1")
	api.GET("/stats", h.stats)
	api.GET("/report", h.report)
	api.GET("/rate-budget", h.rateBudget)
	api.GET("/status", h.status)
	return r
}

type handlers struct {
	deps RouterDeps
}

func (h *handlers) stats(c *gin.Context) {
	items, err := h.deps.Repo.Load(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "storage_error", "failed to load postings", nil)
		return
	}
	respond.JSON(c, http.StatusOK, postings.Stats(items, h.deps.Now()))
}

// report tallies applications since ?since= (RFC 3339) or ?hours=, defaulting to the last day.
func (h *handlers) report(c *gin.Context) {
	since := h.deps.Now().Add(-defaultReportWindow)
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "invalid_since", "since must be an RFC 3339 timestamp", nil)
			return
		}
		since = t
	} else if raw := c.Query("hours"); raw != "" {
		d, err := time.ParseDuration(raw + "h")
		if err != nil || d <= 0 {
			respond.Error(c, http.StatusBadRequest, "invalid_hours", "hours must be a positive number", nil)
			return
		}
		since = h.deps.Now().Add(-d)
	}
	results, err := h.deps.Repo.Applications(c.Request.Context(), since)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "storage_error", "failed to load applications", nil)
		return
	}
	respond.JSON(c, http.StatusOK, postings.Report(results))
}

func (h *handlers) rateBudget(c *gin.Context) {
	if h.deps.Budget == nil {
		respond.Error(c, http.StatusServiceUnavailable, "unavailable", "rate limiter not configured", nil)
		return
	}
	snap, err := h.deps.Budget.Snapshot(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusServiceUnavailable, "budget_unavailable", "failed to read rate budget", nil)
		return
	}
	respond.JSON(c, http.StatusOK, snap)
}

func (h *handlers) status(c *gin.Context) {
	if h.deps.Cycles == nil {
		respond.JSON(c, http.StatusOK, gin.H{"ran": false})
		return
	}
	last, ok := h.deps.Cycles.LastCycle()
	if !ok {
		respond.JSON(c, http.StatusOK, gin.H{"ran": false})
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"ran":      true,
		"degraded": last.Degraded(),
		"cycle":    last,
	})
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
