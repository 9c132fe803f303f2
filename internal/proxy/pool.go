// Package proxy tracks egress endpoints with health statistics and selects
// one per acquisition attempt.
package proxy

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Auto-block triggers once an endpoint's failure rate crosses
// autoBlockFailureRate over at least autoBlockMinAttempts attempts.
const (
	autoBlockMinAttempts = 5
	autoBlockFailureRate = 0.5
	defaultBlockWindow   = 10 * time.Minute
)

// Endpoint is one egress proxy with its empirical health stats.
type Endpoint struct {
	Address  string
	Username string
	Password string

	successCount  int
	failureCount  int
	totalRequests int
	totalLatency  time.Duration
	blocked       bool
	blockedUntil  time.Time
}

// URL renders the endpoint as a proxy URL with credentials when present.
func (e *Endpoint) URL() string {
	if e.Username == "" {
		return e.Address
	}
	addr := e.Address
	scheme := "http"
	if i := strings.Index(addr, "://"); i >= 0 {
		scheme = addr[:i]
		addr = addr[i+3:]
	}
	return fmt.Sprintf("%s://%s@%s", scheme, url.UserPassword(e.Username, e.Password).String(), addr)
}

// SuccessRate returns the observed success ratio, or a 0.5 neutral prior
// for endpoints with no history so they get a fair trial.
func (e *Endpoint) SuccessRate() float64 {
	if e.totalRequests == 0 {
		return 0.5
	}
	return float64(e.successCount) / float64(e.totalRequests)
}

// AvgLatency returns the mean latency over successful requests.
func (e *Endpoint) AvgLatency() time.Duration {
	if e.successCount == 0 {
		return 0
	}
	return e.totalLatency / time.Duration(e.successCount)
}

// Pool selects endpoints and records per-attempt outcomes. Safe for use
// from multiple worker goroutines in one process; cross-process state does
// not belong here.
type Pool struct {
	mu        sync.Mutex
	endpoints []*Endpoint
	cursor    int
	clock     func() time.Time
	logger    *zap.Logger
}

// Config describes the static endpoints the pool starts with.
type Config struct {
	Endpoints []EndpointConfig
}

// EndpointConfig is one configured egress endpoint.
type EndpointConfig struct {
	Address  string `mapstructure:"address"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// NewPool builds a pool from static configuration.
func NewPool(cfg Config, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoints := make([]*Endpoint, 0, len(cfg.Endpoints))
	for _, ec := range cfg.Endpoints {
		if ec.Address == "" {
			continue
		}
		endpoints = append(endpoints, &Endpoint{
			Address:  ec.Address,
			Username: ec.Username,
			Password: ec.Password,
		})
	}
	return &Pool{
		endpoints: endpoints,
		clock:     time.Now,
		logger:    logger,
	}
}

// Next round-robins across available endpoints. A nil return means
// "proceed without a proxy", never a hard error.
func (p *Pool) Next() *Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.endpoints)
	for i := 0; i < n; i++ {
		ep := p.endpoints[p.cursor%n]
		p.cursor++
		if p.available(ep) {
			return ep
		}
	}
	return nil
}

// Best selects the available endpoint with the highest empirical success
// rate. Nil when the pool is empty or everything is blocked.
func (p *Pool) Best() *Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *Endpoint
	for _, ep := range p.endpoints {
		if !p.available(ep) {
			continue
		}
		if best == nil || ep.SuccessRate() > best.SuccessRate() {
			best = ep
		}
	}
	return best
}

// MarkUsed counts one selection that was actually used for a request.
// Callers that obtained an endpoint but dropped it must not call this.
func (p *Pool) MarkUsed(ep *Endpoint) {
	if ep == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ep.totalRequests++
}

// ReportSuccess records a successful attempt through the endpoint.
func (p *Pool) ReportSuccess(ep *Endpoint, latency time.Duration) {
	if ep == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ep.successCount++
	ep.totalLatency += latency
}

// ReportFailure records a failed attempt. A non-zero blockFor blocks the
// endpoint immediately; otherwise blocking kicks in once the failure rate
// crosses the auto-block threshold.
func (p *Pool) ReportFailure(ep *Endpoint, blockFor time.Duration) {
	if ep == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ep.failureCount++
	if blockFor > 0 {
		p.block(ep, blockFor)
		return
	}
	if ep.totalRequests >= autoBlockMinAttempts {
		rate := float64(ep.failureCount) / float64(ep.totalRequests)
		if rate > autoBlockFailureRate {
			p.block(ep, defaultBlockWindow)
		}
	}
}

// Size returns the number of configured endpoints.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

func (p *Pool) block(ep *Endpoint, d time.Duration) {
	ep.blocked = true
	ep.blockedUntil = p.clock().Add(d)
	p.logger.Warn("proxy endpoint blocked",
		zap.String("address", ep.Address),
		zap.Time("until", ep.blockedUntil),
	)
}

// available checks the blocked flag, clearing it lazily once the block
// window has elapsed. Caller holds p.mu.
func (p *Pool) available(ep *Endpoint) bool {
	if !ep.blocked {
		return true
	}
	if p.clock().After(ep.blockedUntil) {
		ep.blocked = false
		ep.blockedUntil = time.Time{}
		return true
	}
	return false
}
