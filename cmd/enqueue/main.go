// Package main is the operator tool for pushing acquisition jobs onto the
// queue, e.g. `enqueue -kind category -category electronics -limit 40`.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/trendscout/crawler/internal/config"
	"github.com/trendscout/crawler/internal/crawl"
	"github.com/trendscout/crawler/internal/id/uuid"
	redisqueue "github.com/trendscout/crawler/internal/queue/redis"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	kind := flag.String("kind", string(crawl.JobKindRefreshBatch), "Job kind: refresh_batch, category, or trending")
	category := flag.String("category", "", "Target category (category jobs only)")
	limit := flag.Int("limit", 20, "Maximum records to acquire")
	count := flag.Int("count", 1, "Number of jobs to enqueue")
	flag.Parse()

	if err := run(*cfgPath, *kind, *category, *limit, *count); err != nil {
		fmt.Fprintf(os.Stderr, "enqueue failed: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath, kind, category string, limit, count int) error {
	jobKind := crawl.JobKind(kind)
	if !jobKind.Valid() {
		return fmt.Errorf("unknown job kind %q", kind)
	}
	if jobKind == crawl.JobKindCategory && category == "" {
		return fmt.Errorf("category jobs require -category")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	queue, err := redisqueue.NewQueue(ctx, redisqueue.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Key:      cfg.Redis.QueueKey,
	})
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer queue.Close() //nolint:errcheck // best-effort teardown

	ids := uuid.New()
	for i := 0; i < count; i++ {
		id, err := ids.NewID()
		if err != nil {
			return fmt.Errorf("mint job id: %w", err)
		}
		job := crawl.Job{
			ID:          id,
			Kind:        jobKind,
			Category:    category,
			Limit:       limit,
			RequestedAt: time.Now().UTC(),
			Status:      crawl.JobStatusQueued,
		}
		if err := queue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("enqueue job %s: %w", id, err)
		}
		fmt.Println(id)
	}

	depth, err := queue.Len(ctx)
	if err != nil {
		return nil
	}
	fmt.Fprintf(os.Stderr, "queue depth: %d\n", depth)
	return nil
}
