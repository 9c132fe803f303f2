// Package normalize parses heterogeneous raw payloads from the acquisition
// tiers into the canonical product schema.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/trendscout/crawler/internal/crawl"
	"github.com/trendscout/crawler/internal/metrics"
)

// Normalizer converts tier-specific raw payloads into canonical products.
// A single malformed record is dropped, never an abort: the batch contract
// is best-effort.
type Normalizer struct {
	clock  crawl.Clock
	logger *zap.Logger
}

// New constructs a Normalizer.
func New(clock crawl.Clock, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{clock: clock, logger: logger}
}

// Normalize converts one raw payload into a canonical product. ok=false
// means the record was unparseable and the caller should skip it.
func (n *Normalizer) Normalize(payload crawl.RawPayload) (product crawl.Product, ok bool) {
	// Payload shapes drift with the source platform; a panic deep in field
	// extraction must only cost this one record.
	defer func() {
		if r := recover(); r != nil {
			n.logger.Warn("normalize panic, record dropped",
				zap.String("tier", string(payload.Tier)),
				zap.Any("panic", r),
			)
			metrics.ObserveNormalizeDrop()
			ok = false
		}
	}()

	var err error
	switch {
	case len(payload.JSON) > 0:
		product, err = n.fromJSON(payload.JSON)
	case payload.HTML != "":
		product, err = n.fromHTML(payload.HTML)
	case len(payload.Fields) > 0:
		product, err = n.fromFields(payload.Fields)
	default:
		err = fmt.Errorf("empty payload")
	}
	if err != nil {
		n.logger.Debug("normalize drop",
			zap.String("tier", string(payload.Tier)),
			zap.Error(err),
		)
		metrics.ObserveNormalizeDrop()
		return crawl.Product{}, false
	}

	n.finish(&product, payload.Tier)
	return product, true
}

// NormalizeBatch converts a payload slice, skipping unparseable records.
func (n *Normalizer) NormalizeBatch(payloads []crawl.RawPayload) []crawl.Product {
	products := make([]crawl.Product, 0, len(payloads))
	for _, p := range payloads {
		if product, ok := n.Normalize(p); ok {
			products = append(products, product)
		}
	}
	return products
}

func (n *Normalizer) fromJSON(raw []byte) (crawl.Product, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return crawl.Product{}, fmt.Errorf("decode record: %w", err)
	}

	p := crawl.Product{
		SourceID:     str(fields, "source_id", "id", "product_id", "itemId"),
		Title:        str(fields, "title", "name", "product_name"),
		Description:  str(fields, "description", "desc"),
		Category:     str(fields, "category", "category_name"),
		SellerName:   str(fields, "seller_name", "seller", "shop_name"),
		ImageURL:     str(fields, "image_url", "image", "cover", "main_image"),
		VideoURL:     str(fields, "video_url", "video"),
		ProductURL:   str(fields, "product_url", "url", "link"),
		AffiliateURL: str(fields, "affiliate_url", "affiliate_link"),
	}
	if p.SourceID == "" || p.Title == "" {
		return crawl.Product{}, fmt.Errorf("record missing id or title")
	}

	p.Price, p.Currency = price(fields, "price", "sale_price", "current_price")
	if p.Price <= 0 {
		return crawl.Product{}, fmt.Errorf("record %s has no usable price", p.SourceID)
	}
	original, origCurrency := price(fields, "original_price", "list_price", "market_price")
	p.OriginalPrice = original
	if p.Currency == "" {
		p.Currency = origCurrency
	}
	if p.Currency == "" {
		p.Currency = str(fields, "currency")
	}

	p.SellerRating = num(fields, "seller_rating", "shop_rating")
	p.ProductRating = num(fields, "product_rating", "rating", "stars")
	p.ReviewsCount = int(num(fields, "reviews_count", "reviews", "review_count"))
	p.SalesCount = int(num(fields, "sales_count", "sales", "sold"))
	p.Sales7d = int(num(fields, "sales_7d", "sales_last_7_days"))
	p.Sales30d = int(num(fields, "sales_30d", "sales_last_30_days"))
	p.FreeShipping = boolean(fields, "free_shipping", "is_free_shipping")
	p.Trending = boolean(fields, "trending", "is_trending", "hot")
	p.InStock = inStock(fields)

	if imgs, ok := fields["images"].([]any); ok {
		for _, img := range imgs {
			if s, ok := img.(string); ok && s != "" {
				p.Images = append(p.Images, s)
			}
		}
	}
	return p, nil
}

// fromHTML extracts a record from a DOM fragment scraped by the browser
// tier when no embedded state was available.
func (n *Normalizer) fromHTML(fragment string) (crawl.Product, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return crawl.Product{}, fmt.Errorf("parse fragment: %w", err)
	}

	sel := doc.Find("[data-product-id]").First()
	if sel.Length() == 0 {
		sel = doc.Selection
	}
	fields := map[string]string{
		"source_id":      firstAttr(sel, "data-product-id"),
		"title":          firstText(sel, ".product-title", "[data-title]", "h2", "h3"),
		"price":          firstText(sel, ".product-price", "[data-price]", ".price"),
		"original_price": firstText(sel, ".original-price", ".price-original", "del"),
		"image_url":      firstImage(sel),
		"product_url":    firstHref(sel),
		"sales":          firstText(sel, ".sold-count", "[data-sold]"),
		"rating":         firstText(sel, ".rating", "[data-rating]"),
	}
	return n.fromFields(fields)
}

func (n *Normalizer) fromFields(fields map[string]string) (crawl.Product, error) {
	p := crawl.Product{
		SourceID:    strings.TrimSpace(fields["source_id"]),
		Title:       strings.TrimSpace(fields["title"]),
		Description: strings.TrimSpace(fields["description"]),
		Category:    strings.TrimSpace(fields["category"]),
		SellerName:  strings.TrimSpace(fields["seller_name"]),
		ImageURL:    strings.TrimSpace(fields["image_url"]),
		ProductURL:  strings.TrimSpace(fields["product_url"]),
	}
	if p.SourceID == "" || p.Title == "" {
		return crawl.Product{}, fmt.Errorf("fragment missing id or title")
	}

	amount, currency, err := ParsePrice(fields["price"])
	if err != nil {
		return crawl.Product{}, err
	}
	p.Price = amount
	p.Currency = currency

	if raw := fields["original_price"]; raw != "" {
		if orig, origCurrency, err := ParsePrice(raw); err == nil {
			p.OriginalPrice = orig
			if p.Currency == "" {
				p.Currency = origCurrency
			}
		}
	}
	if raw := fields["sales"]; raw != "" {
		p.SalesCount = countFromText(raw)
	}
	if raw := fields["rating"]; raw != "" {
		if r, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			p.ProductRating = r
		}
	}
	p.InStock = true
	return p, nil
}

// finish stamps the derived and ambient fields shared by every shape.
func (n *Normalizer) finish(p *crawl.Product, tier crawl.TierName) {
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if p.OriginalPrice > p.Price {
		p.OnSale = true
		p.Discount = int((p.OriginalPrice - p.Price) / p.OriginalPrice * 100)
	} else {
		p.OriginalPrice = 0
	}
	if p.ImageURL == "" && len(p.Images) > 0 {
		p.ImageURL = p.Images[0]
	}
	p.Source = crawl.SourceLive
	if tier == crawl.TierSynthetic {
		p.Source = crawl.SourceSynthetic
	}
	p.CollectedAt = n.clock.Now()
}

// countFromText parses "1.2k sold" style counters.
func countFromText(raw string) int {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, "sold")
	s = strings.TrimSpace(strings.TrimSuffix(s, "+"))
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		mult = 1_000
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		mult = 1_000_000
		s = strings.TrimSuffix(s, "m")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int(v * mult)
}

func str(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func num(fields map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
	}
	return 0
}

func boolean(fields map[string]any, keys ...string) bool {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
	}
	return false
}

// price reads a price that may arrive as a number or a formatted string.
func price(fields map[string]any, keys ...string) (float64, string) {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case float64:
			if v > 0 {
				return v, ""
			}
		case string:
			if amount, currency, err := ParsePrice(v); err == nil && amount > 0 {
				return amount, currency
			}
		}
	}
	return 0, ""
}

// inStock defaults to true: live listings without an explicit stock flag
// are listed because they are purchasable.
func inStock(fields map[string]any) bool {
	for _, k := range []string{"in_stock", "available", "is_available"} {
		if v, ok := fields[k].(bool); ok {
			return v
		}
	}
	if v, ok := fields["stock"].(float64); ok {
		return v > 0
	}
	return true
}

func firstText(sel *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		if found := sel.Find(s).First(); found.Length() > 0 {
			if text := strings.TrimSpace(found.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

func firstAttr(sel *goquery.Selection, attr string) string {
	if v, ok := sel.Attr(attr); ok {
		return v
	}
	if v, ok := sel.Find("[" + attr + "]").First().Attr(attr); ok {
		return v
	}
	return ""
}

func firstImage(sel *goquery.Selection) string {
	img := sel.Find("img").First()
	if src, ok := img.Attr("src"); ok && src != "" {
		return src
	}
	if src, ok := img.Attr("data-src"); ok {
		return src
	}
	return ""
}

func firstHref(sel *goquery.Selection) string {
	if href, ok := sel.Find("a").First().Attr("href"); ok {
		return href
	}
	return ""
}
