package browser

import (
	"math/rand/v2"
)

// Scripts injected into every document to mask common automation tells.
var stealthScripts = []string{
	"Object.defineProperty(navigator, 'webdriver', { get: () => undefined });",
	"window.chrome = window.chrome || {}; window.chrome.runtime = window.chrome.runtime || {};",
	"Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });",
	"Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });",
	"const originalQuery = window.navigator.permissions.query; window.navigator.permissions.query = (parameters) => (parameters && parameters.name === 'notifications' ? Promise.resolve({ state: Notification.permission }) : originalQuery(parameters));",
}

// StealthScripts returns a copy of the anti-detection scripts.
func StealthScripts() []string {
	return append([]string(nil), stealthScripts...)
}

// DefaultUserAgents are desktop Chrome user agents, matching the driven
// engine.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
}

// UserAgentPool hands out user agents.
type UserAgentPool struct {
	uas     []string
}

// NewUserAgentPool creates a pool. An empty slice falls back to
// DefaultUserAgents.
func NewUserAgentPool(uas []string) *UserAgentPool {
	if len(uas) == 0 {
		uas = DefaultUserAgents
	}
	return &UserAgentPool{uas: append([]string(nil), uas...)}
}

// Random returns a random user agent.
func (p *UserAgentPool) Random() string {
	return p.uas[rand.IntN(len(p.uas))]
}

// commonViewports are frequent desktop resolutions.
var commonViewports = []Viewport{
	{Width: 1920, Height: 1080},
	{Width: 1536, Height: 864},
	{Width: 1440, Height: 900},
	{Width: 1366, Height: 768},
	{Width: 1280, Height: 800},
}

// RandomViewport picks a common desktop resolution and shaves up to jitter
// pixels off each side.
func RandomViewport(jitter int) Viewport {
	v := commonViewports[rand.IntN(len(commonViewports))]
	if jitter > 0 {
		v.Width -= rand.IntN(jitter + 1)
		v.Height -= rand.IntN(jitter + 1)
	}
	return v
}
