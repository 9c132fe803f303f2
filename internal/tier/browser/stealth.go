package browser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/trendscout/crawler/internal/crawl"
)

// stealthScript renders the anti-detection overrides for one fingerprint.
// The script must run before any page script, so it is installed with
// Page.addScriptToEvaluateOnNewDocument rather than evaluated after load.
func stealthScript(fp crawl.Fingerprint) string {
	languages, _ := json.Marshal(fp.Languages)
	var b strings.Builder

	// Automation flags.
	b.WriteString(`
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
delete window.cdc_adoQpoasnfa76pfcZLmcfl_Array;
delete window.cdc_adoQpoasnfa76pfcZLmcfl_Promise;
delete window.cdc_adoQpoasnfa76pfcZLmcfl_Symbol;
`)

	// Navigator identity.
	fmt.Fprintf(&b, `
Object.defineProperty(navigator, 'platform', { get: () => %q });
Object.defineProperty(navigator, 'vendor', { get: () => %q });
Object.defineProperty(navigator, 'languages', { get: () => %s });
Object.defineProperty(navigator, 'language', { get: () => %q });
Object.defineProperty(navigator, 'deviceMemory', { get: () => %d });
Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => %d });
`, fp.Platform, fp.Vendor, languages, fp.Locale, fp.DeviceMemory, fp.HardwareConcurrency)

	// Headless Chrome ships no window.chrome object; real Chrome does.
	b.WriteString(`
if (!window.chrome) {
  window.chrome = { runtime: {}, loadTimes: function(){}, csi: function(){} };
}
`)

	// WebGL identity.
	fmt.Fprintf(&b, `
(() => {
  const vendor = %q, renderer = %q;
  const patch = (proto) => {
    const orig = proto.getParameter;
    proto.getParameter = function(param) {
      if (param === 37445) return vendor;
      if (param === 37446) return renderer;
      return orig.call(this, param);
    };
  };
  if (window.WebGLRenderingContext) patch(WebGLRenderingContext.prototype);
  if (window.WebGL2RenderingContext) patch(WebGL2RenderingContext.prototype);
})();
`, fp.WebGLVendor, fp.WebGLRenderer)

	// Canvas noise: perturb the lowest bits of readback deterministically
	// from the fingerprint seed so repeated reads within the session agree.
	fmt.Fprintf(&b, `
(() => {
  const seed = %d;
  const orig = CanvasRenderingContext2D.prototype.getImageData;
  CanvasRenderingContext2D.prototype.getImageData = function(...args) {
    const data = orig.apply(this, args);
    let s = seed;
    for (let i = 0; i < data.data.length; i += 997) {
      s = (s * 1664525 + 1013904223) >>> 0;
      data.data[i] = data.data[i] ^ (s & 1);
    }
    return data;
  };
})();
`, fp.CanvasNoiseSeed)

	// Permissions API consistency: headless reports 'denied' for
	// notifications where real Chrome reports 'default'.
	b.WriteString(`
(() => {
  const orig = navigator.permissions && navigator.permissions.query;
  if (!orig) return;
  navigator.permissions.query = (params) =>
    params.name === 'notifications'
      ? Promise.resolve({ state: Notification.permission })
      : orig.call(navigator.permissions, params);
})();
`)
	return b.String()
}
