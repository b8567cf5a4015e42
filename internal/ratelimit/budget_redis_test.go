package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Runs only against a real server: REDIS_URL=redis://localhost:6379/15 go test ./internal/ratelimit
func TestRedisBudgetSharesGrants(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := DialRedis(ctx, url)
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	defer client.Close()

	key := "jobbot:test:" + uuid.NewString()
	defer client.Del(ctx, key)

	first := NewRedisBudget(client, key)
	second := NewRedisBudget(client, key)
	now := time.Now()

	if err := first.Record(ctx, now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("Record old: %v", err)
	}
	if err := first.Record(ctx, now.Add(-time.Minute)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := second.Record(ctx, now); err != nil {
		t.Fatalf("Record: %v", err)
	}

	grants, err := second.Permits(ctx, now)
	if err != nil {
		t.Fatalf("Permits: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants within the hour, got %d", len(grants))
	}
	if !grants[0].Before(grants[1]) {
		t.Fatalf("grants not oldest first: %v", grants)
	}
}
