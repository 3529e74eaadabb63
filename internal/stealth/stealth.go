// Package stealth holds the static fingerprint and the init script injected into every new context.
package stealth

import "github.com/dhruvsoni1802/browser-hub/internal/engine"

// script runs before any page script in every frame
const script = `(() => {
  Object.defineProperty(navigator, 'webdriver', { get: () => undefined });

  Object.defineProperty(navigator, 'plugins', {
    get: () => [1, 2, 3, 4, 5].map(() => ({
      name: 'Chrome PDF Plugin',
      filename: 'internal-pdf-viewer',
      description: 'Portable Document Format'
    }))
  });

  Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });

  if (window.navigator.permissions && window.navigator.permissions.query) {
    const originalQuery = window.navigator.permissions.query.bind(window.navigator.permissions);
    window.navigator.permissions.query = (parameters) => (
      parameters && parameters.name === 'notifications'
        ? Promise.resolve({ state: Notification.permission })
        : originalQuery(parameters)
    );
  }

  window.chrome = window.chrome || {};
  window.chrome.runtime = window.chrome.runtime || {};

  Object.defineProperty(navigator, 'connection', {
    get: () => ({ effectiveType: '4g', rtt: 50, downlink: 10, saveData: false })
  });

  for (const key of Object.keys(window)) {
    if (key.startsWith('cdc_')) {
      try { delete window[key]; } catch (e) {}
    }
  }
})();`

// Script returns the init script. It takes no parameters and is identical for every context.
func Script() string {
	return script
}

// Fingerprint is the fixed identity every pooled context presents
type Fingerprint struct {
	UserAgent  string
	Viewport   engine.Viewport
	Locale     string
	TimezoneID string
}

// DefaultFingerprint returns a desktop Chrome on macOS identity
func DefaultFingerprint() Fingerprint {
	return Fingerprint{
		UserAgent:  "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Viewport:   engine.Viewport{Width: 1920, Height: 1080},
		Locale:     "en-US",
		TimezoneID: "America/New_York",
	}
}

// Headers returns the extra request headers sent by every context
func Headers() map[string]string {
	return map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"DNT":                       "1",
		"Upgrade-Insecure-Requests": "1",
	}
}

// ContextOptions builds context options from the fingerprint and headers
func ContextOptions() engine.ContextOptions {
	fp := DefaultFingerprint()
	return engine.ContextOptions{
		Viewport:     fp.Viewport,
		UserAgent:    fp.UserAgent,
		Locale:       fp.Locale,
		TimezoneID:   fp.TimezoneID,
		ExtraHeaders: Headers(),
	}
}
