package crawl

import (
	"context"
	"time"
)

// Queue provides enqueue/dequeue semantics for acquisition jobs. Dequeue
// blocks up to the given timeout and returns ok=false when nothing arrived.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context, timeout time.Duration) (Job, bool, error)
}

// ProductStore persists canonical products and job bookkeeping.
type ProductStore interface {
	// UpsertProducts writes products idempotently by source_id and returns
	// the number of rows saved. A rejected row must not abort the rest.
	UpsertProducts(ctx context.Context, products []Product) (int, error)
	UpdateJobStatus(ctx context.Context, job Job) error
}

// CoordStore is the shared key-value store backing cross-process state.
// Incr must be atomic; Set with a TTL must expire server-side.
type CoordStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// ErrKeyNotFound is returned by CoordStore.Get for absent keys.
var ErrKeyNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "coordination key not found" }

// Tier is one acquisition strategy in the priority-ordered fallback chain.
type Tier interface {
	Name() TierName
	// Acquire fetches raw records for the job. Implementations convert all
	// internal failures into an *AcquisitionError at this boundary.
	Acquire(ctx context.Context, job Job) ([]RawPayload, error)
}

// Recycler is implemented by tiers holding long-lived browser resources
// that the worker tears down and recreates periodically.
type Recycler interface {
	Recycle(ctx context.Context) error
	Close()
}

// Clock returns the current time (swap-able for testing).
type Clock interface {
	Now() time.Time
}
