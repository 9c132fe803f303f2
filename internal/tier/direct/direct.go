// Package direct implements the direct-channel acquisition tier: pooled,
// rate-limited HTTP requests against the source platform's JSON endpoints,
// carrying pre-provisioned session credentials.
package direct

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/trendscout/crawler/internal/crawl"
	"github.com/trendscout/crawler/internal/ratelimit"
)

// Config controls the direct tier.
type Config struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	PageSize   int
	Tokens     []crawl.SessionToken
}

// Tier issues session-authenticated JSON requests through a cloned colly
// collector per fetch.
type Tier struct {
	cfg       Config
	limiter   *ratelimit.Limiter
	retry     *crawl.RetryPolicy
	base      *colly.Collector
	transport http.RoundTripper
	logger    *zap.Logger
}

// listingResponse is the source platform's paged item envelope.
type listingResponse struct {
	Items   []json.RawMessage `json:"items"`
	HasMore bool              `json:"has_more"`
}

// statusError carries the HTTP status through the retry classifier.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// New builds the tier.
func New(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) *Tier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	transport := newHTTPTransport()
	c.WithTransport(transport)

	retry := crawl.NewRetryPolicy(cfg.MaxRetries, 500*time.Millisecond, 8*time.Second, retryableStatus)

	return &Tier{
		cfg:       cfg,
		limiter:   limiter,
		retry:     retry,
		base:      c,
		transport: transport,
		logger:    logger,
	}
}

// Name identifies the tier in the fallback chain.
func (t *Tier) Name() crawl.TierName { return crawl.TierDirect }

// Acquire pages through the endpoint for the job's kind until the limit is
// reached or the platform reports no more items. All failures cross the
// boundary as *crawl.AcquisitionError.
func (t *Tier) Acquire(ctx context.Context, job crawl.Job) ([]crawl.RawPayload, error) {
	family, path := endpointFor(job)
	var payloads []crawl.RawPayload

	for page := 1; len(payloads) < job.Limit; page++ {
		if err := t.limiter.Wait(ctx, family); err != nil {
			return nil, crawl.NewAcquisitionError(crawl.TierDirect, crawl.ErrClassTransient, err)
		}

		listing, err := t.fetchPage(ctx, path, job, page)
		if err != nil {
			return nil, t.classify(err)
		}
		for _, item := range listing.Items {
			payloads = append(payloads, crawl.RawPayload{
				Tier: crawl.TierDirect,
				JSON: append([]byte(nil), item...),
			})
			if len(payloads) >= job.Limit {
				break
			}
		}
		if !listing.HasMore || len(listing.Items) == 0 {
			break
		}
	}
	t.logger.Debug("direct tier acquired",
		zap.String("job_id", job.ID),
		zap.Int("records", len(payloads)),
	)
	return payloads, nil
}

// fetchPage runs one paged request under the retry policy. 429 and 5xx are
// retried with backoff; 401/403 abort immediately.
func (t *Tier) fetchPage(ctx context.Context, path string, job crawl.Job, page int) (listingResponse, error) {
	url := fmt.Sprintf("%s%s?page=%d&page_size=%d", strings.TrimRight(t.cfg.BaseURL, "/"), path, page, t.cfg.PageSize)
	if job.Kind == crawl.JobKindCategory && job.Category != "" {
		url += "&category=" + job.Category
	}

	var listing listingResponse
	err := t.retry.Do(ctx, func(attempt int) error {
		if attempt > 0 {
			t.logger.Debug("direct fetch retry",
				zap.String("url", url),
				zap.Int("attempt", attempt),
			)
		}
		body, err := t.get(ctx, url)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &listing); err != nil {
			return fmt.Errorf("decode listing: %w", err)
		}
		return nil
	})
	return listing, err
}

// get executes a single request through a cloned collector.
func (t *Tier) get(ctx context.Context, url string) ([]byte, error) {
	collector := t.base.Clone()
	if t.cfg.UserAgent != "" {
		collector.UserAgent = t.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(t.cfg.Timeout)
	collector.WithTransport(t.transport)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
		if cookie := t.cookieHeader(r.URL.Hostname()); cookie != "" {
			r.Headers.Set("Cookie", cookie)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = &statusError{code: r.StatusCode}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("direct fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return nil, fetchErr
		}
		if err != nil {
			return nil, fmt.Errorf("visit %s: %w", url, err)
		}
		return body, nil
	}
}

// cookieHeader renders the session tokens whose domain matches the host.
func (t *Tier) cookieHeader(host string) string {
	var pairs []string
	for _, token := range t.cfg.Tokens {
		if token.Domain == "" || strings.HasSuffix(host, strings.TrimPrefix(token.Domain, ".")) {
			pairs = append(pairs, token.Name+"="+token.Value)
		}
	}
	return strings.Join(pairs, "; ")
}

// classify converts a terminal fetch error into the boundary error type.
func (t *Tier) classify(err error) error {
	var httpErr *statusError
	if errors.As(err, &httpErr) {
		switch httpErr.code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return crawl.NewAcquisitionError(crawl.TierDirect, crawl.ErrClassAuth,
				fmt.Errorf("session credentials rejected: %w", err))
		}
	}
	return crawl.NewAcquisitionError(crawl.TierDirect, crawl.ErrClassTransient, err)
}

// retryableStatus is the failure classifier for the retry policy: transient
// statuses and network errors retry, authentication failures do not.
func retryableStatus(err error) bool {
	var httpErr *statusError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.code == http.StatusTooManyRequests:
			return true
		case httpErr.code >= 500:
			return true
		default:
			return false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return true
}

// endpointFor maps a job kind to its endpoint family and path.
func endpointFor(job crawl.Job) (family, path string) {
	switch job.Kind {
	case crawl.JobKindTrending:
		return "trending", "/api/v1/products/trending"
	case crawl.JobKindCategory:
		return "listing", "/api/v1/products"
	default:
		return "listing", "/api/v1/products/refresh"
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
