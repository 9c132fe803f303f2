package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_PlatformMatchesUserAgent(t *testing.T) {
	t.Parallel()

	g := New()
	for i := 0; i < 200; i++ {
		fp := g.Generate()
		switch {
		case strings.Contains(fp.UserAgent, "Windows NT"):
			assert.Equal(t, "Win32", fp.Platform)
		case strings.Contains(fp.UserAgent, "Macintosh"):
			assert.Equal(t, "MacIntel", fp.Platform)
		case strings.Contains(fp.UserAgent, "Linux"):
			assert.Equal(t, "Linux x86_64", fp.Platform)
		default:
			t.Fatalf("unexpected user agent %q", fp.UserAgent)
		}
	}
}

func TestGenerator_VendorMatchesBrowserFamily(t *testing.T) {
	t.Parallel()

	g := New()
	for i := 0; i < 200; i++ {
		fp := g.Generate()
		assert.NotContains(t, fp.UserAgent, "Firefox", "non-Chromium engines cannot carry the injected overrides")
		if strings.Contains(fp.UserAgent, "Chrome/") {
			assert.Equal(t, "Google Inc.", fp.Vendor, "ua %q", fp.UserAgent)
		} else {
			assert.Equal(t, "Apple Computer, Inc.", fp.Vendor, "ua %q", fp.UserAgent)
		}
	}
}

func TestGenerator_LanguagesMatchLocale(t *testing.T) {
	t.Parallel()

	g := New()
	for i := 0; i < 100; i++ {
		fp := g.Generate()
		require.NotEmpty(t, fp.Languages)
		assert.Equal(t, fp.Locale, fp.Languages[0])
	}
}

func TestGenerator_NoHashReuseWithinProcess(t *testing.T) {
	t.Parallel()

	g := New()
	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		fp := g.Generate()
		require.NotEmpty(t, fp.Hash)
		_, dup := seen[fp.Hash]
		assert.False(t, dup, "hash %s reissued", fp.Hash)
		seen[fp.Hash] = struct{}{}
	}
}

func TestGenerator_FieldsAlwaysPopulated(t *testing.T) {
	t.Parallel()

	g := New()
	fp := g.Generate()
	assert.NotEmpty(t, fp.UserAgent)
	assert.NotEmpty(t, fp.Vendor)
	assert.NotEmpty(t, fp.Timezone)
	assert.NotEmpty(t, fp.WebGLVendor)
	assert.NotEmpty(t, fp.WebGLRenderer)
	assert.NotEmpty(t, fp.Fonts)
	assert.Positive(t, fp.ViewportWidth)
	assert.Positive(t, fp.ViewportHeight)
	assert.Positive(t, fp.DeviceMemory)
	assert.Positive(t, fp.HardwareConcurrency)
}

func TestDefaultProfile_HasStableHash(t *testing.T) {
	t.Parallel()

	a := defaultProfile()
	b := defaultProfile()
	require.Equal(t, a.Hash, b.Hash)
}
