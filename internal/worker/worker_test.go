package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	coordmem "github.com/trendscout/crawler/internal/coordination/memory"
	"github.com/trendscout/crawler/internal/crawl"
	"github.com/trendscout/crawler/internal/metrics"
	"github.com/trendscout/crawler/internal/normalize"
	queuemem "github.com/trendscout/crawler/internal/queue/memory"
	"github.com/trendscout/crawler/internal/safety"
	storemem "github.com/trendscout/crawler/internal/storage/memory"
	"github.com/trendscout/crawler/internal/tier/synthetic"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

// fakeTier counts Acquire calls and returns canned payloads or an error.
type fakeTier struct {
	name     crawl.TierName
	payloads []crawl.RawPayload
	err      error
	calls    atomic.Int64
}

func (f *fakeTier) Name() crawl.TierName { return f.name }

func (f *fakeTier) Acquire(_ context.Context, _ crawl.Job) ([]crawl.RawPayload, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.payloads, nil
}

func jsonPayloads(tier crawl.TierName, n int) []crawl.RawPayload {
	payloads := make([]crawl.RawPayload, 0, n)
	for i := 0; i < n; i++ {
		payloads = append(payloads, crawl.RawPayload{
			Tier: tier,
			JSON: []byte(`{"id":"rec-` + string(rune('a'+i)) + `","title":"Widget","price":9.99}`),
		})
	}
	return payloads
}

type workerEnv struct {
	worker  *Worker
	queue   *queuemem.Queue
	store   *storemem.Store
	breaker *safety.Breaker
	clock   *fixedClock
}

func newWorkerEnv(t *testing.T, tiers []crawl.Tier, threshold int) *workerEnv {
	t.Helper()
	metrics.Init()

	clock := &fixedClock{now: time.Unix(20000, 0).UTC()}
	queue := queuemem.NewQueue(16)
	store := storemem.NewStore()
	breaker := safety.New(
		coordmem.NewStore(),
		safety.Config{Threshold: threshold, Cooldown: time.Hour},
		clock,
		zap.NewNop(),
	)
	w := New(
		queue,
		store,
		tiers,
		breaker,
		normalize.New(clock, zap.NewNop()),
		clock,
		Config{DequeueTimeout: 20 * time.Millisecond, MinRecords: 5},
		zap.NewNop(),
	)
	return &workerEnv{worker: w, queue: queue, store: store, breaker: breaker, clock: clock}
}

func runJobs(t *testing.T, env *workerEnv, jobs ...crawl.Job) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, job := range jobs {
		require.NoError(t, env.queue.Enqueue(ctx, job))
	}

	done := make(chan struct{})
	go func() {
		env.worker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		for _, job := range jobs {
			stored, ok := env.store.Job(job.ID)
			if !ok || (stored.Status != crawl.JobStatusCompleted && stored.Status != crawl.JobStatusFailed) {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond, "jobs did not reach a terminal state")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorkerTierFallthrough(t *testing.T) {
	direct := &fakeTier{name: crawl.TierDirect, payloads: nil}
	browser := &fakeTier{name: crawl.TierBrowser, payloads: jsonPayloads(crawl.TierBrowser, 8)}
	cached := &fakeTier{name: crawl.TierSynthetic, payloads: jsonPayloads(crawl.TierSynthetic, 10)}
	env := newWorkerEnv(t, []crawl.Tier{direct, browser, cached}, 5)

	runJobs(t, env, crawl.Job{ID: "job-1", Kind: crawl.JobKindRefreshBatch, Limit: 10})

	require.EqualValues(t, 1, direct.calls.Load())
	require.EqualValues(t, 1, browser.calls.Load())
	require.EqualValues(t, 0, cached.calls.Load(), "cached tier must not run when browser tier suffices")

	job, ok := env.store.Job("job-1")
	require.True(t, ok)
	require.Equal(t, crawl.JobStatusCompleted, job.Status)
	require.Equal(t, 8, job.RecordCount)
}

func TestWorkerAllLiveTiersFailFallsBackToSynthetic(t *testing.T) {
	direct := &fakeTier{
		name: crawl.TierDirect,
		err:  crawl.NewAcquisitionError(crawl.TierDirect, crawl.ErrClassAuth, errors.New("401")),
	}
	browser := &fakeTier{
		name: crawl.TierBrowser,
		err:  crawl.NewAcquisitionError(crawl.TierBrowser, crawl.ErrClassDetection, errors.New("captcha")),
	}
	env := newWorkerEnv(t, []crawl.Tier{direct, browser, synthetic.New("https://example.test", zap.NewNop())}, 5)

	runJobs(t, env, crawl.Job{ID: "job-syn", Kind: crawl.JobKindTrending, Limit: 20})

	job, ok := env.store.Job("job-syn")
	require.True(t, ok)
	require.Equal(t, crawl.JobStatusCompleted, job.Status, "synthetic tier never fails the job")
	require.Empty(t, job.ErrorText)
	require.Greater(t, job.RecordCount, 0)

	// Every persisted record must be flagged so consumers can tell
	// placeholder data from live data.
	require.Equal(t, job.RecordCount, env.store.ProductCount())
	for _, p := range env.store.Products() {
		require.Equal(t, crawl.SourceSynthetic, p.Source)
	}
}

func TestWorkerBreakerTripsAndSkipsLiveTiers(t *testing.T) {
	direct := &fakeTier{
		name: crawl.TierDirect,
		err:  crawl.NewAcquisitionError(crawl.TierDirect, crawl.ErrClassAuth, errors.New("401 unauthorized")),
	}
	browser := &fakeTier{
		name: crawl.TierBrowser,
		err:  crawl.NewAcquisitionError(crawl.TierBrowser, crawl.ErrClassTransient, errors.New("timeout")),
	}
	cached := &fakeTier{name: crawl.TierSynthetic, payloads: jsonPayloads(crawl.TierSynthetic, 6)}
	env := newWorkerEnv(t, []crawl.Tier{direct, browser, cached}, 5)

	jobs := make([]crawl.Job, 0, 5)
	for i := 0; i < 5; i++ {
		jobs = append(jobs, crawl.Job{ID: "fail-" + string(rune('1'+i)), Kind: crawl.JobKindCategory, Category: "tech", Limit: 10})
	}
	runJobs(t, env, jobs...)

	require.EqualValues(t, 5, direct.calls.Load())
	require.False(t, env.breaker.Allow(context.Background()), "breaker must be open after threshold failures")

	// The next job must go straight to the cached tier with no live calls.
	before := cached.calls.Load()
	runJobs(t, env, crawl.Job{ID: "post-trip", Kind: crawl.JobKindCategory, Category: "tech", Limit: 10})

	require.EqualValues(t, 5, direct.calls.Load(), "open breaker must prevent direct tier calls")
	require.EqualValues(t, 5, browser.calls.Load(), "open breaker must prevent browser tier calls")
	require.EqualValues(t, before+1, cached.calls.Load())

	job, ok := env.store.Job("post-trip")
	require.True(t, ok)
	require.Equal(t, crawl.JobStatusCompleted, job.Status)
}

func TestWorkerLiveSuccessResetsFailureCount(t *testing.T) {
	direct := &fakeTier{name: crawl.TierDirect, payloads: jsonPayloads(crawl.TierDirect, 6)}
	env := newWorkerEnv(t, []crawl.Tier{direct}, 5)

	ctx := context.Background()
	env.breaker.RecordFailure(ctx)
	env.breaker.RecordFailure(ctx)
	require.EqualValues(t, 2, env.breaker.Failures(ctx))

	runJobs(t, env, crawl.Job{ID: "reset", Kind: crawl.JobKindRefreshBatch, Limit: 6})

	require.EqualValues(t, 0, env.breaker.Failures(ctx))
}

func TestWorkerUnknownJobKindFailsImmediately(t *testing.T) {
	direct := &fakeTier{name: crawl.TierDirect, payloads: jsonPayloads(crawl.TierDirect, 6)}
	env := newWorkerEnv(t, []crawl.Tier{direct}, 5)

	runJobs(t, env, crawl.Job{ID: "bogus", Kind: "flash_sale", Limit: 10})

	require.EqualValues(t, 0, direct.calls.Load(), "no tier may run for an unknown kind")
	job, ok := env.store.Job("bogus")
	require.True(t, ok)
	require.Equal(t, crawl.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorText, "unknown job kind")
	require.NotNil(t, job.FinishedAt)
}

func TestWorkerPanicInTierMarksJobFailed(t *testing.T) {
	panics := &panicTier{}
	env := newWorkerEnv(t, []crawl.Tier{panics}, 5)

	runJobs(t, env,
		crawl.Job{ID: "boom", Kind: crawl.JobKindTrending, Limit: 5},
		crawl.Job{ID: "after", Kind: crawl.JobKindTrending, Limit: 5},
	)

	job, ok := env.store.Job("boom")
	require.True(t, ok)
	require.Equal(t, crawl.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorText, "panic")

	// The loop must survive the panic and finish the next job.
	after, ok := env.store.Job("after")
	require.True(t, ok)
	require.Equal(t, crawl.JobStatusFailed, after.Status)
}

type panicTier struct{}

func (p *panicTier) Name() crawl.TierName { return crawl.TierDirect }

func (p *panicTier) Acquire(_ context.Context, _ crawl.Job) ([]crawl.RawPayload, error) {
	panic("selector table corrupted")
}

// cancelAwareStore rejects writes whose context is already done, the way
// a real database driver would.
type cancelAwareStore struct {
	mu             sync.Mutex
	jobs           map[string]crawl.Job
	terminalWrites atomic.Int64
	rejectedWrites atomic.Int64
}

func newCancelAwareStore() *cancelAwareStore {
	return &cancelAwareStore{jobs: make(map[string]crawl.Job)}
}

func (s *cancelAwareStore) UpsertProducts(ctx context.Context, products []crawl.Product) (int, error) {
	if err := ctx.Err(); err != nil {
		s.rejectedWrites.Add(1)
		return 0, err
	}
	return len(products), nil
}

func (s *cancelAwareStore) UpdateJobStatus(ctx context.Context, job crawl.Job) error {
	if err := ctx.Err(); err != nil {
		s.rejectedWrites.Add(1)
		return err
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	if job.Status == crawl.JobStatusCompleted || job.Status == crawl.JobStatusFailed {
		s.terminalWrites.Add(1)
	}
	return nil
}

func (s *cancelAwareStore) Job(id string) (crawl.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

// blockingTier parks in Acquire until the run context is canceled, so a
// shutdown signal always lands mid-job.
type blockingTier struct {
	started chan struct{}
}

func (b *blockingTier) Name() crawl.TierName { return crawl.TierDirect }

func (b *blockingTier) Acquire(ctx context.Context, _ crawl.Job) ([]crawl.RawPayload, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWorkerShutdownMidJobPersistsTerminalStatus(t *testing.T) {
	metrics.Init()

	clock := &fixedClock{now: time.Unix(20000, 0).UTC()}
	queue := queuemem.NewQueue(1)
	store := newCancelAwareStore()
	breaker := safety.New(
		coordmem.NewStore(),
		safety.Config{Threshold: 5, Cooldown: time.Hour},
		clock,
		zap.NewNop(),
	)
	tier := &blockingTier{started: make(chan struct{})}
	w := New(
		queue,
		store,
		[]crawl.Tier{tier},
		breaker,
		normalize.New(clock, zap.NewNop()),
		clock,
		Config{DequeueTimeout: 20 * time.Millisecond, MinRecords: 5},
		zap.NewNop(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, queue.Enqueue(ctx, crawl.Job{ID: "in-flight", Kind: crawl.JobKindTrending, Limit: 10}))

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-tier.started:
	case <-time.After(2 * time.Second):
		t.Fatal("tier never started")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}

	require.EqualValues(t, 1, store.terminalWrites.Load(),
		"terminal job status was never persisted: %d rejected writes", store.rejectedWrites.Load())
	job, ok := store.Job("in-flight")
	require.True(t, ok)
	require.Contains(t, []crawl.JobStatus{crawl.JobStatusCompleted, crawl.JobStatusFailed}, job.Status)
	require.NotNil(t, job.FinishedAt)
	require.EqualValues(t, 0, store.rejectedWrites.Load())
}

func TestWorkerInsufficientResultFallsThrough(t *testing.T) {
	direct := &fakeTier{name: crawl.TierDirect, payloads: jsonPayloads(crawl.TierDirect, 3)}
	browser := &fakeTier{name: crawl.TierBrowser, payloads: jsonPayloads(crawl.TierBrowser, 7)}
	env := newWorkerEnv(t, []crawl.Tier{direct, browser}, 5)

	runJobs(t, env, crawl.Job{ID: "thin", Kind: crawl.JobKindRefreshBatch, Limit: 10})

	require.EqualValues(t, 1, browser.calls.Load(), "three records is below the acceptance threshold")
	job, ok := env.store.Job("thin")
	require.True(t, ok)
	require.Equal(t, 7, job.RecordCount)
}

func TestWorkerRecyclesBrowserResources(t *testing.T) {
	recycling := &recyclingTier{
		fakeTier: fakeTier{name: crawl.TierBrowser, payloads: jsonPayloads(crawl.TierBrowser, 6)},
	}
	env := newWorkerEnv(t, []crawl.Tier{recycling}, 5)
	env.worker.cfg.RecycleEvery = 2

	runJobs(t, env,
		crawl.Job{ID: "r1", Kind: crawl.JobKindRefreshBatch, Limit: 6},
		crawl.Job{ID: "r2", Kind: crawl.JobKindRefreshBatch, Limit: 6},
		crawl.Job{ID: "r3", Kind: crawl.JobKindRefreshBatch, Limit: 6},
	)

	require.EqualValues(t, 1, recycling.recycles.Load())
	require.EqualValues(t, 1, recycling.closes.Load(), "shutdown must release browser resources")
}

type recyclingTier struct {
	fakeTier
	recycles atomic.Int64
	closes   atomic.Int64
}

func (r *recyclingTier) Recycle(_ context.Context) error {
	r.recycles.Add(1)
	return nil
}

func (r *recyclingTier) Close() {
	r.closes.Add(1)
}
