// Package worker implements the acquisition job execution loop.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trendscout/crawler/internal/crawl"
	"github.com/trendscout/crawler/internal/metrics"
	"github.com/trendscout/crawler/internal/normalize"
	"github.com/trendscout/crawler/internal/safety"
)

// Config controls Worker behavior.
type Config struct {
	// DequeueTimeout bounds each blocking queue pop so the loop can notice
	// shutdown between jobs.
	DequeueTimeout time.Duration `mapstructure:"dequeue_timeout"`
	// IdleSleep is the pause after a queue error before retrying.
	IdleSleep time.Duration `mapstructure:"idle_sleep"`
	// MinRecords is the smallest tier result the chain accepts before
	// falling through to the next tier.
	MinRecords int `mapstructure:"min_records"`
	// RecycleEvery tears down and recreates browser resources after this
	// many processed jobs. Zero disables recycling.
	RecycleEvery int `mapstructure:"recycle_every"`
}

func (c *Config) applyDefaults() {
	if c.DequeueTimeout <= 0 {
		c.DequeueTimeout = 5 * time.Second
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = time.Second
	}
	if c.MinRecords <= 0 {
		c.MinRecords = 5
	}
	if c.RecycleEvery < 0 {
		c.RecycleEvery = 0
	}
}

// Worker consumes acquisition jobs and runs the tiered strategy chain.
// Jobs are processed one at a time; run several Workers for parallelism.
type Worker struct {
	queue      crawl.Queue
	store      crawl.ProductStore
	tiers      []crawl.Tier
	breaker    *safety.Breaker
	normalizer *normalize.Normalizer
	clock      crawl.Clock
	cfg        Config
	logger     *zap.Logger

	processed int
}

// persistTimeout bounds job-status and product writes once they are
// detached from the run context.
const persistTimeout = 10 * time.Second

// New constructs a Worker. Tiers are invoked in the order given; the last
// tier is expected to always succeed.
func New(
	queue crawl.Queue,
	store crawl.ProductStore,
	tiers []crawl.Tier,
	breaker *safety.Breaker,
	normalizer *normalize.Normalizer,
	clock crawl.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:      queue,
		store:      store,
		tiers:      tiers,
		breaker:    breaker,
		normalizer: normalizer,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks, consuming jobs until the context finishes. Shutdown is
// cooperative: an in-flight job runs to completion before Run returns.
func (w *Worker) Run(ctx context.Context) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer w.closeTiers()

	for {
		if ctx.Err() != nil {
			return
		}
		job, ok, err := w.queue.Dequeue(ctx, w.cfg.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.IdleSleep):
			}
			continue
		}
		if !ok {
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))
		w.processJob(ctx, job)

		w.processed++
		if w.cfg.RecycleEvery > 0 && w.processed%w.cfg.RecycleEvery == 0 {
			w.recycleTiers(ctx)
		}
	}
}

func (w *Worker) processJob(ctx context.Context, job crawl.Job) {
	// A single job's failure must never take the worker down, so anything
	// escaping the tier chain lands here.
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
			)
			w.finishJob(ctx, job, 0, fmt.Sprintf("panic: %v", r))
		}
	}()

	started := w.clock.Now()
	job.Status = crawl.JobStatusRunning
	job.StartedAt = &started

	if !job.Kind.Valid() {
		w.finishJob(ctx, job, 0, fmt.Sprintf("unknown job kind %q", job.Kind))
		return
	}

	if err := w.updateStatus(ctx, job); err != nil {
		w.logger.Error("job status update failed", zap.String("job_id", job.ID), zap.Error(err))
	}

	payloads := w.acquire(ctx, job)
	products := w.normalizer.NormalizeBatch(payloads)
	w.observeNormalized(products)

	saved, err := w.upsert(ctx, products)
	if err != nil {
		w.finishJob(ctx, job, saved, fmt.Sprintf("persist products: %v", err))
		return
	}
	w.finishJob(ctx, job, saved, "")
}

// acquire walks the tier chain in priority order and returns the first
// result meeting the minimum record count. The breaker is consulted once
// per job; while open, live tiers are skipped entirely.
func (w *Worker) acquire(ctx context.Context, job crawl.Job) []crawl.RawPayload {
	liveAllowed := w.breaker.Allow(ctx)
	if !liveAllowed {
		w.logger.Info("safety mode active, skipping live tiers", zap.String("job_id", job.ID))
	}

	var (
		payloads      []crawl.RawPayload
		liveAttempted bool
		liveSucceeded bool
		liveFailed    bool
	)
	for _, tier := range w.tiers {
		live := tier.Name() != crawl.TierSynthetic
		if live && !liveAllowed {
			continue
		}

		start := time.Now()
		got, err := tier.Acquire(ctx, job)
		metrics.ObserveTier(string(tier.Name()), err == nil, time.Since(start))

		if live {
			liveAttempted = true
		}
		if err != nil {
			if live {
				liveFailed = true
			}
			w.logger.Warn("tier acquisition failed",
				zap.String("job_id", job.ID),
				zap.String("tier", string(tier.Name())),
				zap.String("class", string(crawl.ClassifyError(err))),
				zap.Error(err),
			)
			continue
		}
		if len(got) < w.cfg.MinRecords {
			w.logger.Debug("tier result below threshold",
				zap.String("job_id", job.ID),
				zap.String("tier", string(tier.Name())),
				zap.Int("records", len(got)),
			)
			continue
		}

		payloads = got
		if live {
			liveSucceeded = true
		}
		break
	}

	if liveAttempted {
		switch {
		case liveSucceeded:
			w.breaker.RecordSuccess(ctx)
		case liveFailed:
			w.breaker.RecordFailure(ctx)
		}
	}
	return payloads
}

func (w *Worker) finishJob(ctx context.Context, job crawl.Job, saved int, errText string) {
	finished := w.clock.Now()
	job.FinishedAt = &finished
	job.RecordCount = saved
	job.ErrorText = errText
	if errText == "" {
		job.Status = crawl.JobStatusCompleted
	} else {
		job.Status = crawl.JobStatusFailed
	}

	if err := w.updateStatus(ctx, job); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	metrics.ObserveJob(string(job.Kind), string(job.Status))

	w.logger.Info("job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
		zap.Int("records", saved),
	)
}

// updateStatus persists job state on a context detached from the run
// context. A shutdown signal cancels dequeue and tier work, but a
// destructively popped job must still reach a persisted terminal status.
func (w *Worker) updateStatus(ctx context.Context, job crawl.Job) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	return w.store.UpdateJobStatus(writeCtx, job)
}

// upsert persists products detached from the run context, for the same
// reason as updateStatus: records already acquired should not be lost to
// a shutdown race.
func (w *Worker) upsert(ctx context.Context, products []crawl.Product) (int, error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	return w.store.UpsertProducts(writeCtx, products)
}

func (w *Worker) observeNormalized(products []crawl.Product) {
	var live, synthetic int
	for _, p := range products {
		if p.Source == crawl.SourceSynthetic {
			synthetic++
		} else {
			live++
		}
	}
	if live > 0 {
		metrics.ObserveNormalized(string(crawl.SourceLive), live)
	}
	if synthetic > 0 {
		metrics.ObserveNormalized(string(crawl.SourceSynthetic), synthetic)
	}
}

// recycleTiers restarts browser-backed tiers to bound memory growth from
// long-lived rendering processes. This is scheduled maintenance, not an
// error path.
func (w *Worker) recycleTiers(ctx context.Context) {
	for _, tier := range w.tiers {
		recycler, ok := tier.(crawl.Recycler)
		if !ok {
			continue
		}
		if err := recycler.Recycle(ctx); err != nil {
			w.logger.Warn("tier recycle failed",
				zap.String("tier", string(tier.Name())),
				zap.Error(err),
			)
			continue
		}
		w.logger.Info("tier recycled", zap.String("tier", string(tier.Name())))
	}
}

func (w *Worker) closeTiers() {
	for _, tier := range w.tiers {
		if recycler, ok := tier.(crawl.Recycler); ok {
			recycler.Close()
		}
	}
}
