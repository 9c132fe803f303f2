// Package browser implements the rendered-browser acquisition tier: a full
// headless session with injected anti-detection overrides and human-like
// interaction, used when the direct channel comes back empty or blocked.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/trendscout/crawler/internal/crawl"
	"github.com/trendscout/crawler/internal/fingerprint"
	"github.com/trendscout/crawler/internal/metrics"
	"github.com/trendscout/crawler/internal/proxy"
)

// Config controls the browser tier.
type Config struct {
	BaseURL           string
	NavigationTimeout time.Duration
	ScrollPasses      int
	ScrollDelay       time.Duration
	MaxRecords        int
	BlockKeywords     []string
}

// Tier drives headless Chrome through chromedp. The browser process is
// long-lived across jobs; the worker calls Recycle periodically to bound
// its memory growth. Each Acquire runs in a fresh tab configured from a
// fresh Fingerprint.
type Tier struct {
	cfg          Config
	fingerprints *fingerprint.Generator
	proxies      *proxy.Pool
	detector     *BlockDetector
	logger       *zap.Logger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	proxyAddr     string
}

// New builds the tier. The browser process launches lazily on first use.
func New(cfg Config, fingerprints *fingerprint.Generator, proxies *proxy.Pool, logger *zap.Logger) *Tier {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.ScrollPasses <= 0 {
		cfg.ScrollPasses = 6
	}
	if cfg.ScrollDelay <= 0 {
		cfg.ScrollDelay = 600 * time.Millisecond
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 60
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tier{
		cfg:          cfg,
		fingerprints: fingerprints,
		proxies:      proxies,
		detector:     NewBlockDetector(cfg.BlockKeywords),
		logger:       logger,
	}
}

// Name identifies the tier in the fallback chain.
func (t *Tier) Name() crawl.TierName { return crawl.TierBrowser }

// Acquire renders the listing page for the job behind a fresh identity and
// extracts product records from embedded state or DOM cards.
func (t *Tier) Acquire(ctx context.Context, job crawl.Job) ([]crawl.RawPayload, error) {
	fp := t.fingerprints.Generate()

	var ep *proxy.Endpoint
	if t.proxies != nil {
		// Best-first keeps the healthiest egress on the expensive tier;
		// nil simply means a direct connection.
		ep = t.proxies.Best()
	}

	browserCtx, err := t.ensureBrowser(ep)
	if err != nil {
		return nil, crawl.NewAcquisitionError(crawl.TierBrowser, crawl.ErrClassTransient, err)
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	taskCtx, cancelTask := context.WithTimeout(tabCtx, t.cfg.NavigationTimeout)
	defer cancelTask()

	if ep != nil {
		t.proxies.MarkUsed(ep)
	}
	start := time.Now()

	payloads, err := t.run(taskCtx, job, fp)
	latency := time.Since(start)
	if err != nil {
		t.reportProxy(ep, false)
		return nil, t.classify(err)
	}
	t.reportProxy(ep, true)
	if ep != nil {
		t.proxies.ReportSuccess(ep, latency)
	}

	t.logger.Debug("browser tier acquired",
		zap.String("job_id", job.ID),
		zap.String("fingerprint", fp.Hash),
		zap.Int("records", len(payloads)),
		zap.Duration("took", latency),
	)
	return payloads, nil
}

// run executes the navigation, interaction, and extraction sequence in the
// tab context.
func (t *Tier) run(ctx context.Context, job crawl.Job, fp crawl.Fingerprint) ([]crawl.RawPayload, error) {
	setup := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(fp.UserAgent).
			WithAcceptLanguage(fp.Locale).
			WithPlatform(fp.Platform),
		emulation.SetDeviceMetricsOverride(int64(fp.ViewportWidth), int64(fp.ViewportHeight), 1, false),
		emulation.SetTimezoneOverride(fp.Timezone),
		chromedp.ActionFunc(func(ctx context.Context) error {
			// Must land before any page script executes.
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript(fp)).Do(ctx)
			return err
		}),
		chromedp.Navigate(t.listingURL(job)),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, setup); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}

	if err := t.checkBlocked(ctx); err != nil {
		return nil, err
	}

	// Human-like scrolling both loads lazy content and keeps the
	// interaction profile plausible. A block page appearing mid-scroll
	// aborts the pass.
	if err := humanScroll(ctx, t.cfg.ScrollPasses, t.cfg.ScrollDelay, t.checkBlocked); err != nil {
		return nil, err
	}

	return t.extract(ctx, job)
}

// checkBlocked snapshots the DOM and runs the block-page heuristics.
func (t *Tier) checkBlocked(ctx context.Context) error {
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("snapshot dom: %w", err)
	}
	if t.detector.Blocked(html) {
		return crawl.NewAcquisitionError(crawl.TierBrowser, crawl.ErrClassDetection,
			errors.New("block page signature matched"))
	}
	return nil
}

// extract pulls records from the page, preferring embedded JSON state over
// DOM scraping.
func (t *Tier) extract(ctx context.Context, job crawl.Job) ([]crawl.RawPayload, error) {
	limit := job.Limit
	if limit <= 0 || limit > t.cfg.MaxRecords {
		limit = t.cfg.MaxRecords
	}

	// Embedded page state, if the SPA shipped one.
	var stateJSON string
	stateProbe := `JSON.stringify(
		(window.__INITIAL_STATE__ && window.__INITIAL_STATE__.products) ||
		(window.__PRELOADED_STATE__ && window.__PRELOADED_STATE__.products) ||
		null
	)`
	if err := chromedp.Run(ctx, chromedp.Evaluate(stateProbe, &stateJSON)); err == nil && stateJSON != "" && stateJSON != "null" {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(stateJSON), &items); err == nil && len(items) > 0 {
			payloads := make([]crawl.RawPayload, 0, len(items))
			for _, item := range items {
				payloads = append(payloads, crawl.RawPayload{
					Tier: crawl.TierBrowser,
					JSON: append([]byte(nil), item...),
				})
				if len(payloads) >= limit {
					break
				}
			}
			return payloads, nil
		}
	}

	// DOM fallback: product card fragments for the normalizer.
	var fragments []string
	cardProbe := fmt.Sprintf(
		`Array.from(document.querySelectorAll('[data-product-id]')).slice(0, %d).map(el => el.outerHTML)`,
		limit,
	)
	if err := chromedp.Run(ctx, chromedp.Evaluate(cardProbe, &fragments)); err != nil {
		return nil, fmt.Errorf("extract cards: %w", err)
	}
	payloads := make([]crawl.RawPayload, 0, len(fragments))
	for _, fragment := range fragments {
		payloads = append(payloads, crawl.RawPayload{
			Tier: crawl.TierBrowser,
			HTML: fragment,
		})
	}
	return payloads, nil
}

// ensureBrowser returns a live browser context, launching or relaunching
// Chrome when none is running or the egress selection changed.
func (t *Tier) ensureBrowser(ep *proxy.Endpoint) (context.Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	addr := ""
	if ep != nil {
		addr = ep.URL()
	}
	if t.browserCtx != nil && t.browserCtx.Err() == nil && t.proxyAddr == addr {
		return t.browserCtx, nil
	}
	t.teardownLocked()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if addr != "" {
		opts = append(opts, chromedp.ProxyServer(addr))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	t.allocCancel = allocCancel
	t.browserCtx = browserCtx
	t.browserCancel = browserCancel
	t.proxyAddr = addr
	return browserCtx, nil
}

// Recycle tears the browser process down; the next Acquire relaunches it.
// Scheduled by the worker, not an error path.
func (t *Tier) Recycle(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.teardownLocked()
	metrics.ObserveBrowserRecycle()
	t.logger.Info("browser tier recycled")
	return nil
}

// Close releases all browser resources.
func (t *Tier) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.teardownLocked()
}

func (t *Tier) teardownLocked() {
	if t.browserCancel != nil {
		t.browserCancel()
		t.browserCancel = nil
	}
	if t.allocCancel != nil {
		t.allocCancel()
		t.allocCancel = nil
	}
	t.browserCtx = nil
	t.proxyAddr = ""
}

// classify converts run errors into the boundary error type. Detection
// errors pass through; everything else, timeouts included, is transient.
func (t *Tier) classify(err error) error {
	var acqErr *crawl.AcquisitionError
	if errors.As(err, &acqErr) {
		return acqErr
	}
	return crawl.NewAcquisitionError(crawl.TierBrowser, crawl.ClassifyError(err), err)
}

func (t *Tier) reportProxy(ep *proxy.Endpoint, success bool) {
	if ep == nil {
		return
	}
	metrics.ObserveProxyAttempt(success)
	if !success {
		t.proxies.ReportFailure(ep, 0)
	}
}

// listingURL maps a job to the page the tier renders.
func (t *Tier) listingURL(job crawl.Job) string {
	switch job.Kind {
	case crawl.JobKindTrending:
		return t.cfg.BaseURL + "/trending"
	case crawl.JobKindCategory:
		if job.Category != "" {
			return t.cfg.BaseURL + "/category/" + job.Category
		}
		return t.cfg.BaseURL + "/category"
	default:
		return t.cfg.BaseURL + "/new"
	}
}
