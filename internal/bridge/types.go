package bridge

import (
	"time"

	"github.com/dhruvsoni1802/browser-hub/internal/cdp"
)

const (
	// ProfileName is the managed profile directory under the profiles root
	ProfileName = "chrome-profile"

	// SharedContextID keys registry pages handed out when no external browser is live
	SharedContextID = "mcp-http"

	// autoAttachTimeout keeps a missing debugging port cheap to detect
	autoAttachTimeout = time.Second
)

// Tab sources
const (
	SourceCDP     = "cdp"
	SourceProfile = "profile"
)

// Config points the bridge at its debugging endpoint and profile root
type Config struct {
	Endpoint       string
	Timeout        time.Duration
	ProfilesDir    string
	ExecutablePath string
}

// Request describes the page a caller wants
type Request struct {
	// URLPattern selects the first tab whose URL contains it
	URLPattern string
	Session    string
	Headless   bool
}

// Tab is one page of an external browser
type Tab struct {
	Index  int    `json:"index"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Source string `json:"source"`
}

// Status is the bridge's view of both attachment modes
type Status struct {
	CDPConnected   bool   `json:"cdp_connected"`
	CDPEndpoint    string `json:"cdp_endpoint"`
	CDPBrowser     string `json:"cdp_browser,omitempty"`
	ProfileRunning bool   `json:"profile_running"`
	ProfileDir     string `json:"profile_dir"`
}

// ConnectResult is returned by ConnectChrome
type ConnectResult struct {
	Endpoint string `json:"endpoint"`
	Browser  string `json:"browser"`
	Reused   bool   `json:"reused"`
	Tabs     []Tab  `json:"tabs"`

	// Targets is the DevTools view of every window's tabs, which can include
	// windows the attached browser does not expose as contexts
	Targets []cdp.Target `json:"targets"`
}

// LaunchResult is returned by LaunchRealChrome
type LaunchResult struct {
	ProfileDir string `json:"profile_dir"`
	Reused     bool   `json:"reused"`
	Tabs       []Tab  `json:"tabs"`
}
