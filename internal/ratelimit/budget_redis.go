package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRedisBudgetKey = "jobbot:ratelimit:grants"

// RedisBudget shares grants between processes through a sorted set scored by grant time in milliseconds.
// Check-then-record is not atomic across processes; ceilings are soft under concurrent writers.
type RedisBudget struct {
	client redis.Cmdable
	key    string
}

// NewRedisBudget returns a budget stored under key. An empty key uses the default.
func NewRedisBudget(client redis.Cmdable, key string) *RedisBudget {
	if key == "" {
		key = defaultRedisBudgetKey
	}
	return &RedisBudget{client: client, key: key}
}

// DialRedis parses a redis:// URL and verifies connectivity.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (b *RedisBudget) Permits(ctx context.Context, now time.Time) ([]time.Time, error) {
	cutoff := strconv.FormatInt(now.Add(-time.Hour).UnixMilli(), 10)
	if err := b.client.ZRemRangeByScore(ctx, b.key, "-inf", cutoff).Err(); err != nil {
		return nil, fmt.Errorf("redis budget prune: %w", err)
	}
	members, err := b.client.ZRangeWithScores(ctx, b.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis budget read: %w", err)
	}
	grants := make([]time.Time, 0, len(members))
	for _, m := range members {
		grants = append(grants, time.UnixMilli(int64(m.Score)))
	}
	return grants, nil
}

func (b *RedisBudget) Record(ctx context.Context, at time.Time) error {
	pipe := b.client.TxPipeline()
	pipe.ZAdd(ctx, b.key, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, b.key, time.Hour+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis budget record: %w", err)
	}
	return nil
}
