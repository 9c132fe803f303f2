package browser

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// defaultBlockKeywords are the content signatures of block/challenge pages
// on the source platform.
var defaultBlockKeywords = []string{
	"captcha",
	"unusual traffic",
	"verify you are human",
	"access denied",
	"are you a robot",
	"security check",
	"too many requests",
}

// blockSelectors match challenge widgets even when the page text is
// localized away from the keyword list.
var blockSelectors = []string{
	"iframe[src*='captcha']",
	"iframe[src*='challenge']",
	"#challenge-form",
	".g-recaptcha",
}

// BlockDetector decides whether a rendered page is a block page rather
// than a listing. A positive match is a detection failure, distinct from a
// timeout, and short-circuits further interaction with the page.
type BlockDetector struct {
	keywords [][]byte
}

// NewBlockDetector builds a detector; empty keyword lists fall back to the
// defaults.
func NewBlockDetector(keywords []string) *BlockDetector {
	if len(keywords) == 0 {
		keywords = defaultBlockKeywords
	}
	lowered := make([][]byte, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lowered = append(lowered, bytes.ToLower([]byte(kw)))
	}
	return &BlockDetector{keywords: lowered}
}

// Blocked inspects the rendered HTML for block signatures.
func (d *BlockDetector) Blocked(html string) bool {
	if html == "" {
		return false
	}
	body := bytes.ToLower([]byte(html))
	for _, kw := range d.keywords {
		if bytes.Contains(body, kw) {
			return true
		}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	for _, sel := range blockSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}
