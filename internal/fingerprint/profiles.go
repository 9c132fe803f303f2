package fingerprint

// osFamily groups the identity attributes that must agree with each other:
// a chosen family fixes the platform string, the plausible GPU strings, and
// the font set the page can enumerate.
type osFamily struct {
	name       string
	platform   string
	userAgents []string
	weight     int
	webgl      []webglPair
	fonts      []string
}

type webglPair struct {
	vendor   string
	renderer string
}

// localeProfile pairs a locale with the timezones a real user of that
// locale plausibly sits in.
type localeProfile struct {
	locale    string
	languages []string
	timezones []string
}

type viewport struct {
	width  int
	height int
}

var osFamilies = []osFamily{
	{
		name:     "windows",
		platform: "Win32",
		weight:   6,
		userAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.2478.97",
		},
		webgl: []webglPair{
			{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce GTX 1660 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
			{"Google Inc. (Intel)", "ANGLE (Intel, Intel(R) UHD Graphics 630 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
			{"Google Inc. (AMD)", "ANGLE (AMD, AMD Radeon RX 580 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
		},
		fonts: []string{
			"Arial", "Calibri", "Cambria", "Consolas", "Courier New",
			"Georgia", "Segoe UI", "Tahoma", "Times New Roman", "Verdana",
		},
	},
	{
		name:     "macos",
		platform: "MacIntel",
		weight:   3,
		userAgents: []string{
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		},
		webgl: []webglPair{
			{"Google Inc. (Apple)", "ANGLE (Apple, Apple M1, OpenGL 4.1)"},
			{"Google Inc. (Apple)", "ANGLE (Apple, Apple M2, OpenGL 4.1)"},
			{"Apple Inc.", "Apple GPU"},
		},
		fonts: []string{
			"Arial", "Avenir", "Geneva", "Gill Sans", "Helvetica",
			"Helvetica Neue", "Lucida Grande", "Menlo", "Monaco", "Times",
		},
	},
	{
		name:     "linux",
		platform: "Linux x86_64",
		weight:   1,
		userAgents: []string{
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
		},
		webgl: []webglPair{
			{"Mesa", "Mesa Intel(R) UHD Graphics 620 (KBL GT2)"},
			{"Mesa/X.org", "llvmpipe (LLVM 15.0.7, 256 bits)"},
		},
		fonts: []string{
			"Cantarell", "DejaVu Sans", "DejaVu Serif", "Liberation Mono",
			"Liberation Sans", "Noto Sans", "Ubuntu", "Ubuntu Mono",
		},
	},
}

var localeProfiles = []localeProfile{
	{"en-US", []string{"en-US", "en"}, []string{"America/New_York", "America/Chicago", "America/Denver", "America/Los_Angeles"}},
	{"en-GB", []string{"en-GB", "en"}, []string{"Europe/London"}},
	{"pt-BR", []string{"pt-BR", "pt", "en"}, []string{"America/Sao_Paulo", "America/Fortaleza"}},
	{"de-DE", []string{"de-DE", "de", "en"}, []string{"Europe/Berlin"}},
	{"es-ES", []string{"es-ES", "es", "en"}, []string{"Europe/Madrid"}},
	{"fr-FR", []string{"fr-FR", "fr", "en"}, []string{"Europe/Paris"}},
}

var viewports = []viewport{
	{1920, 1080},
	{1536, 864},
	{1440, 900},
	{1366, 768},
	{1280, 720},
	{2560, 1440},
}

var deviceMemoryOptions = []int{4, 8, 16, 32}

var hardwareConcurrencyOptions = []int{4, 6, 8, 12, 16}
