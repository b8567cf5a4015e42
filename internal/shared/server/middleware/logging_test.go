package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"jobbot/internal/shared/telemetry"
)

func TestLoggingIncludesRequestFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	restore := telemetry.SetOutput(&buf)
	defer restore()

	r := gin.New()
	r.Use(RequestID(), Logging(), Recovery())
	r.GET("/api/v1/report", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/report", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	req.Header.Set("User-Agent", "probe/1.0")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if got := resp.Header().Get(RequestIDHeader); got != "req-42" {
		t.Fatalf("expected echoed request id, got %q", got)
	}

	var entry map[string]any
	line := strings.TrimSpace(buf.String())
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", line, err)
	}
	if entry["msg"] != "request.complete" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	for key, want := range map[string]any{
		"request_id": "req-42",
		"method":     http.MethodGet,
		"path":       "/api/v1/report",
		"status":     float64(http.StatusOK),
		"user_agent": "probe/1.0",
	} {
		if entry[key] != want {
			t.Fatalf("%s: expected %v, got %v", key, want, entry[key])
		}
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Fatal("expected duration_ms")
	}
}

func TestRecoveryReturns500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	restore := telemetry.SetOutput(&buf)
	defer restore()

	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if !strings.Contains(buf.String(), `"panic":"boom"`) {
		t.Fatalf("expected panic to be logged, got %s", buf.String())
	}
	if !strings.Contains(resp.Body.String(), "internal_error") {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
}
