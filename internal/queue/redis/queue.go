// Package redis implements the durable job queue on a Redis list.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trendscout/crawler/internal/crawl"
)

const defaultKey = "crawler:jobs"

// Queue pushes JSON-encoded jobs with LPUSH and pops them with BRPOP so
// jobs survive worker restarts and several workers can share one list.
type Queue struct {
	client *redis.Client
	key    string
}

// Config holds the connection settings and the list key.
type Config struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// NewQueue creates a queue and verifies connectivity.
func NewQueue(ctx context.Context, cfg Config) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewQueueWithClient(client, cfg.Key), nil
}

// NewQueueWithClient wraps an existing client (primarily for testing).
func NewQueueWithClient(client *redis.Client, key string) *Queue {
	if key == "" {
		key = defaultKey
	}
	return &Queue{client: client, key: key}
}

// Enqueue serializes the job and pushes it onto the list.
func (q *Queue) Enqueue(ctx context.Context, job crawl.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("lpush job %s: %w", job.ID, err)
	}
	return nil
}

// Dequeue blocks up to timeout waiting for a job. The ok result is false
// when the timeout elapsed with the list empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (crawl.Job, bool, error) {
	vals, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return crawl.Job{}, false, nil
	}
	if err != nil {
		return crawl.Job{}, false, fmt.Errorf("brpop %s: %w", q.key, err)
	}
	// BRPOP returns [key, value].
	if len(vals) != 2 {
		return crawl.Job{}, false, fmt.Errorf("brpop %s: unexpected reply length %d", q.key, len(vals))
	}
	var job crawl.Job
	if err := json.Unmarshal([]byte(vals[1]), &job); err != nil {
		return crawl.Job{}, false, fmt.Errorf("unmarshal job payload: %w", err)
	}
	return job, true, nil
}

// Len reports the number of queued jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", q.key, err)
	}
	return n, nil
}

// Close releases the underlying connection.
func (q *Queue) Close() error {
	return q.client.Close()
}
