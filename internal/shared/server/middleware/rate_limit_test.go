package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func limitedRouter(now *time.Time, rule RateLimitRule) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RateLimit(RateLimitConfig{
		Rule:    rule,
		Limiter: NewRateLimiter(func() time.Time { return *now }),
		Skip:    func(c *gin.Context) bool { return c.Request.URL.Path == "/healthz" },
	}))
	r.GET("/api/v1/stats", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	return r
}

func get(r http.Handler, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestRateLimitPerClientIP(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := limitedRouter(&now, RateLimitRule{Rate: 1, Burst: 2})

	for i := 0; i < 2; i++ {
		if resp := get(r, "/api/v1/stats", "10.0.0.1:1234"); resp.Code != http.StatusOK {
			t.Fatalf("request %d expected 200, got %d", i+1, resp.Code)
		}
	}
	if resp := get(r, "/api/v1/stats", "10.0.0.1:1234"); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if resp := get(r, "/api/v1/stats", "10.0.0.2:1234"); resp.Code != http.StatusOK {
		t.Fatalf("other client expected 200, got %d", resp.Code)
	}

	now = now.Add(time.Second)
	if resp := get(r, "/api/v1/stats", "10.0.0.1:1234"); resp.Code != http.StatusOK {
		t.Fatalf("expected refill after 1s, got %d", resp.Code)
	}
}

func TestRateLimit429IncludesRetryAfter(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := limitedRouter(&now, RateLimitRule{Rate: 0.5, Burst: 1})

	get(r, "/api/v1/stats", "10.0.0.1:1234")
	resp := get(r, "/api/v1/stats", "10.0.0.1:1234")
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if got := resp.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}

	var payload struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
		RequestID string `json:"request_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Error.Code != "rate_limited" {
		t.Fatalf("expected code rate_limited, got %q", payload.Error.Code)
	}
	if payload.Error.Details["retry_after_ms"] != float64(2000) {
		t.Fatalf("expected retry_after_ms 2000, got %v", payload.Error.Details["retry_after_ms"])
	}
	if payload.RequestID == "" {
		t.Fatal("expected request id in error body")
	}
}

func TestRateLimitSkip(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := limitedRouter(&now, RateLimitRule{Rate: 1, Burst: 1})
	for i := 0; i < 5; i++ {
		if resp := get(r, "/healthz", "10.0.0.1:1234"); resp.Code != http.StatusOK {
			t.Fatalf("healthz request %d expected 200, got %d", i+1, resp.Code)
		}
	}
}
