package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	postingsFoundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobbot_postings_found_total",
			Help: "Postings yielded by board searches",
		},
		[]string{"board"},
	)

	applicationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobbot_applications_total",
			Help: "Apply attempts by board and outcome",
		},
		[]string{"board", "outcome"},
	)

	boardFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobbot_board_failures_total",
			Help: "Board-level failures by stage and error kind",
		},
		[]string{"board", "stage", "kind"},
	)

	cooldownsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobbot_cooldowns_total",
			Help: "Cooldowns triggered by board throttle signals",
		},
	)

	rateLimitWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobbot_rate_limit_wait_seconds",
			Help:    "Time callers spent blocked in the rate limiter",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7m
		},
	)

	cycleDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobbot_cycle_duration_seconds",
			Help:    "Wall time of a full search and apply cycle",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
	)
)

// AddPostingsFound counts postings yielded by a board search.
func AddPostingsFound(board string, n int) {
	if n <= 0 {
		return
	}
	postingsFoundTotal.WithLabelValues(board).Add(float64(n))
}

// IncApplication counts one apply attempt.
func IncApplication(board, outcome string) {
	applicationsTotal.WithLabelValues(board, outcome).Inc()
}

// IncBoardFailure counts one board-level failure.
func IncBoardFailure(board, stage, kind string) {
	boardFailuresTotal.WithLabelValues(board, stage, kind).Inc()
}

// IncCooldown counts one cooldown.
func IncCooldown() {
	cooldownsTotal.Inc()
}

// ObserveRateLimitWait records time spent blocked before a permit.
func ObserveRateLimitWait(d time.Duration) {
	if d < 0 {
		d = 0
	}
	rateLimitWaitSeconds.Observe(d.Seconds())
}

// ObserveCycleDuration records a cycle's wall time.
func ObserveCycleDuration(d time.Duration) {
	cycleDurationSeconds.Observe(d.Seconds())
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
