// Package crawl defines core types shared across the acquisition subsystems.
package crawl

import (
	"time"
)

// JobKind identifies what a job is asking the pipeline to acquire.
type JobKind string

// Job kinds accepted from the queue.
const (
	JobKindRefreshBatch JobKind = "refresh_batch"
	JobKindCategory     JobKind = "category"
	JobKindTrending     JobKind = "trending"
)

// Valid reports whether the kind is one the worker knows how to run.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindRefreshBatch, JobKindCategory, JobKindTrending:
		return true
	}
	return false
}

// JobStatus represents the lifecycle state of an acquisition job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is the unit of work consumed from the queue. Exactly one worker owns
// a job at a time; the queue pop is destructive.
type Job struct {
	ID          string     `json:"id"`
	Kind        JobKind    `json:"type"`
	Category    string     `json:"category,omitempty"`
	Limit       int        `json:"limit"`
	RequestedAt time.Time  `json:"requested_at"`
	Status      JobStatus  `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	ErrorText   string     `json:"error_text,omitempty"`
	RecordCount int        `json:"record_count"`
}

// ProductSource distinguishes live records from locally derived placeholders.
type ProductSource string

// Product sources stamped on every canonical record.
const (
	SourceLive      ProductSource = "live"
	SourceSynthetic ProductSource = "synthetic"
)

// Product is the canonical, storage-ready product record. It is produced
// exclusively by the normalizer and immutable once constructed.
type Product struct {
	SourceID      string        `json:"source_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	Price         float64       `json:"price"`
	OriginalPrice float64       `json:"original_price,omitempty"`
	Currency      string        `json:"currency"`
	Discount      int           `json:"discount,omitempty"`
	Category      string        `json:"category,omitempty"`
	SellerName    string        `json:"seller_name,omitempty"`
	SellerRating  float64       `json:"seller_rating,omitempty"`
	ProductRating float64       `json:"product_rating,omitempty"`
	ReviewsCount  int           `json:"reviews_count"`
	SalesCount    int           `json:"sales_count"`
	Sales7d       int           `json:"sales_7d"`
	Sales30d      int           `json:"sales_30d"`
	ImageURL      string        `json:"image_url"`
	Images        []string      `json:"images,omitempty"`
	VideoURL      string        `json:"video_url,omitempty"`
	ProductURL    string        `json:"product_url"`
	AffiliateURL  string        `json:"affiliate_url,omitempty"`
	FreeShipping  bool          `json:"free_shipping"`
	Trending      bool          `json:"trending"`
	OnSale        bool          `json:"on_sale"`
	InStock       bool          `json:"in_stock"`
	Source        ProductSource `json:"source"`
	CollectedAt   time.Time     `json:"collected_at"`
}

// TierName identifies an acquisition strategy in the fallback chain.
type TierName string

// Tier names in priority order.
const (
	TierDirect    TierName = "direct"
	TierBrowser   TierName = "browser"
	TierSynthetic TierName = "synthetic"
)

// RawPayload is the tagged union handed from a tier to the normalizer.
// Exactly one of JSON, HTML, or Fields is populated depending on where the
// tier found the record: API response bodies, embedded page state, or
// DOM-extracted text fields.
type RawPayload struct {
	Tier   TierName
	JSON   []byte
	HTML   string
	Fields map[string]string
}

// Fingerprint is a synthesized, internally consistent browser identity used
// to configure a rendered-browser session. Never persisted beyond the
// attempt that used it.
type Fingerprint struct {
	UserAgent           string
	Platform            string
	Vendor              string
	ViewportWidth       int
	ViewportHeight      int
	Locale              string
	Languages           []string
	Timezone            string
	WebGLVendor         string
	WebGLRenderer       string
	DeviceMemory        int
	HardwareConcurrency int
	Fonts               []string
	CanvasNoiseSeed     uint32
	Hash                string
}

// SessionToken is one pre-provisioned credential consumed by the direct
// tier. Provisioning and refresh live outside this subsystem.
type SessionToken struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
}
