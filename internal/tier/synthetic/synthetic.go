// Package synthetic implements the final acquisition tier: deterministic,
// locally derived product records used when every live tier failed or the
// safety breaker is open. It never fails, so the fallback chain always
// terminates with data.
package synthetic

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"go.uber.org/zap"

	"github.com/trendscout/crawler/internal/crawl"
)

// Tier derives records from the static template catalog. Identifiers are a
// stable hash of template attributes so repeated runs upsert the same rows
// instead of multiplying placeholders.
type Tier struct {
	baseURL string
	logger  *zap.Logger
}

// New builds the tier. baseURL shapes the synthetic product links.
func New(baseURL string, logger *zap.Logger) *Tier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tier{baseURL: baseURL, logger: logger}
}

// Name identifies the tier in the fallback chain.
func (t *Tier) Name() crawl.TierName { return crawl.TierSynthetic }

// Acquire returns up to job.Limit records matching the job's kind and
// category. The error is always nil; the signature exists to satisfy the
// tier contract.
func (t *Tier) Acquire(_ context.Context, job crawl.Job) ([]crawl.RawPayload, error) {
	limit := job.Limit
	if limit <= 0 {
		limit = len(catalog)
	}

	selected := make([]template, 0, len(catalog))
	for _, tmpl := range catalog {
		if matches(tmpl, job) {
			selected = append(selected, tmpl)
		}
	}
	// A category with no templates still has to yield records, otherwise the
	// fallback chain can end empty-handed. Serve the whole catalog instead.
	if len(selected) == 0 {
		t.logger.Debug("synthetic tier has no templates for category, serving full catalog",
			zap.String("job_id", job.ID),
			zap.String("category", job.Category),
		)
		selected = catalog
	}

	payloads := make([]crawl.RawPayload, 0, limit)
	for _, tmpl := range selected {
		record, err := json.Marshal(t.record(tmpl))
		if err != nil {
			// Templates are static structs; this cannot happen outside a
			// catalog bug.
			t.logger.Error("synthetic template marshal failed", zap.Error(err))
			continue
		}
		payloads = append(payloads, crawl.RawPayload{
			Tier: crawl.TierSynthetic,
			JSON: record,
		})
		if len(payloads) >= limit {
			break
		}
	}
	t.logger.Debug("synthetic tier served",
		zap.String("job_id", job.ID),
		zap.Int("records", len(payloads)),
	)
	return payloads, nil
}

func matches(tmpl template, job crawl.Job) bool {
	switch job.Kind {
	case crawl.JobKindTrending:
		return tmpl.trending
	case crawl.JobKindCategory:
		return job.Category == "" || tmpl.category == job.Category
	default:
		return true
	}
}

// record renders one template as the JSON shape the normalizer accepts.
func (t *Tier) record(tmpl template) map[string]any {
	id := templateID(tmpl)
	slug := strings.ToLower(strings.ReplaceAll(tmpl.title, " ", "-"))
	return map[string]any{
		"id":             id,
		"title":          tmpl.title,
		"category":       tmpl.category,
		"price":          tmpl.price,
		"original_price": tmpl.original,
		"currency":       "USD",
		"rating":         tmpl.rating,
		"sold":           tmpl.sales,
		"sales_7d":       tmpl.sales / 30,
		"sales_30d":      tmpl.sales / 8,
		"reviews_count":  tmpl.sales / 50,
		"trending":       tmpl.trending,
		"free_shipping":  tmpl.price >= 10,
		"in_stock":       true,
		"image_url":      fmt.Sprintf("%s/img/%s.jpg", t.baseURL, id),
		"url":            fmt.Sprintf("%s/p/%s-%s", t.baseURL, slug, id),
	}
}

// templateID hashes the template attributes into a stable identifier.
func templateID(tmpl template) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%.2f", tmpl.title, tmpl.category, tmpl.price)
	return fmt.Sprintf("syn-%012x", h.Sum64()&0xffffffffffff)
}
