// Package fingerprint synthesizes randomized, internally consistent browser
// identities for rendered-browser acquisition attempts.
package fingerprint

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"

	"github.com/trendscout/crawler/internal/crawl"
)

// maxRegenerations bounds the collision-avoidance loop; past it the
// colliding identity is returned anyway rather than spinning.
const maxRegenerations = 16

// Generator produces fresh Fingerprints and tracks the hashes it has
// already handed out so an identity is never reused within one process.
// Not safe for concurrent use; each worker owns its own Generator.
type Generator struct {
	rng  *rand.Rand
	seen map[string]struct{}
}

// New constructs a Generator with its own RNG stream.
func New() *Generator {
	return &Generator{
		rng:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		seen: make(map[string]struct{}),
	}
}

// Generate returns a new randomized identity. It never fails: empty
// selection tables fall back to a fixed default profile, and hash
// collisions with previously issued identities trigger regeneration.
func (g *Generator) Generate() crawl.Fingerprint {
	fp := g.build()
	for i := 0; i < maxRegenerations; i++ {
		if _, dup := g.seen[fp.Hash]; !dup {
			break
		}
		fp = g.build()
	}
	g.seen[fp.Hash] = struct{}{}
	return fp
}

func (g *Generator) build() crawl.Fingerprint {
	if len(osFamilies) == 0 || len(localeProfiles) == 0 || len(viewports) == 0 {
		return defaultProfile()
	}

	family := g.pickFamily()
	locale := localeProfiles[g.rng.IntN(len(localeProfiles))]
	vp := viewports[g.rng.IntN(len(viewports))]
	gl := family.webgl[g.rng.IntN(len(family.webgl))]
	ua := family.userAgents[g.rng.IntN(len(family.userAgents))]

	fp := crawl.Fingerprint{
		UserAgent:           ua,
		Platform:            family.platform,
		Vendor:              vendorFor(ua),
		ViewportWidth:       vp.width,
		ViewportHeight:      vp.height,
		Locale:              locale.locale,
		Languages:           append([]string(nil), locale.languages...),
		Timezone:            locale.timezones[g.rng.IntN(len(locale.timezones))],
		WebGLVendor:         gl.vendor,
		WebGLRenderer:       gl.renderer,
		DeviceMemory:        deviceMemoryOptions[g.rng.IntN(len(deviceMemoryOptions))],
		HardwareConcurrency: hardwareConcurrencyOptions[g.rng.IntN(len(hardwareConcurrencyOptions))],
		Fonts:               g.sampleFonts(family.fonts),
		CanvasNoiseSeed:     g.rng.Uint32(),
	}
	fp.Hash = hashFingerprint(fp)
	return fp
}

// pickFamily selects an OS family by weight so the distribution roughly
// tracks real desktop browser share.
func (g *Generator) pickFamily() osFamily {
	total := 0
	for _, f := range osFamilies {
		total += f.weight
	}
	n := g.rng.IntN(total)
	for _, f := range osFamilies {
		if n < f.weight {
			return f
		}
		n -= f.weight
	}
	return osFamilies[len(osFamilies)-1]
}

// sampleFonts returns a shuffled subset: real machines differ in which
// optional fonts are installed, so two identities from the same family
// should not enumerate identical lists.
func (g *Generator) sampleFonts(fonts []string) []string {
	if len(fonts) == 0 {
		return nil
	}
	shuffled := append([]string(nil), fonts...)
	g.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	keep := len(shuffled) - g.rng.IntN(3)
	if keep < 1 {
		keep = 1
	}
	return shuffled[:keep]
}

// vendorFor returns the navigator.vendor value matching the user agent's
// browser family. Chromium engines report "Google Inc." on every OS; only
// genuine Safari reports the Apple vendor string.
func vendorFor(userAgent string) string {
	if strings.Contains(userAgent, "Safari/") && !strings.Contains(userAgent, "Chrome/") {
		return "Apple Computer, Inc."
	}
	return "Google Inc."
}

func hashFingerprint(fp crawl.Fingerprint) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%dx%d|%s|%s|%s|%s|%d|%d|%s|%d",
		fp.UserAgent, fp.Platform, fp.ViewportWidth, fp.ViewportHeight,
		fp.Locale, fp.Timezone, fp.WebGLVendor, fp.WebGLRenderer,
		fp.DeviceMemory, fp.HardwareConcurrency,
		strings.Join(fp.Fonts, ","), fp.CanvasNoiseSeed,
	)
	return fmt.Sprintf("%016x", h.Sum64())
}

// defaultProfile is the fixed identity returned when selection tables are
// empty.
func defaultProfile() crawl.Fingerprint {
	fp := crawl.Fingerprint{
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		Platform:            "Win32",
		Vendor:              "Google Inc.",
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		Locale:              "en-US",
		Languages:           []string{"en-US", "en"},
		Timezone:            "America/New_York",
		WebGLVendor:         "Google Inc. (Intel)",
		WebGLRenderer:       "ANGLE (Intel, Intel(R) UHD Graphics 630 Direct3D11 vs_5_0 ps_5_0, D3D11)",
		DeviceMemory:        8,
		HardwareConcurrency: 8,
		Fonts:               []string{"Arial", "Segoe UI", "Times New Roman"},
	}
	fp.Hash = hashFingerprint(fp)
	return fp
}
