// Package engine describes the browser capabilities the core depends on.
// The production implementation is backed by playwright; tests use enginetest.
package engine

import "time"

// Mode is the display mode of a browser process
type Mode string

const (
	Headless Mode = "headless"
	Headed   Mode = "headed"
)

// ModeFor maps a headless flag to a Mode
func ModeFor(headless bool) Mode {
	if headless {
		return Headless
	}
	return Headed
}

// Viewport is a page size in CSS pixels
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// LaunchOptions configures a pooled browser process
type LaunchOptions struct {
	Mode           Mode
	Args           []string
	ExecutablePath string
}

// ContextOptions configures a new browsing context.
// StorageState, when set, is a serialized storage-state document used as the seed.
type ContextOptions struct {
	Viewport     Viewport
	UserAgent    string
	Locale       string
	TimezoneID   string
	ExtraHeaders map[string]string
	StorageState []byte
}

// PersistentOptions configures a context rooted at a durable user-data directory
type PersistentOptions struct {
	Headless       bool
	Args           []string
	ExecutablePath string
	Context        ContextOptions
}

// Engine launches or attaches to browser processes
type Engine interface {
	Launch(opts LaunchOptions) (Browser, error)
	ConnectOverCDP(endpoint string, timeout time.Duration) (Browser, error)
	LaunchPersistentContext(userDataDir string, opts PersistentOptions) (Context, error)
	Close() error
}

// Browser is one running browser process
type Browser interface {
	NewContext(opts ContextOptions) (Context, error)
	Contexts() []Context
	IsConnected() bool
	Version() string
	Close() error
}

// Context is an isolated cookie and storage jar holding pages
type Context interface {
	AddInitScript(script string) error
	NewPage() (Page, error)
	Pages() []Page
	StorageState() ([]byte, error)
	IsClosed() bool
	Close() error
}

// Page is one browsable tab
type Page interface {
	Goto(url string, timeout time.Duration) error
	Click(selector string, timeout time.Duration) error
	Fill(selector, value string, timeout time.Duration) error
	Type(text string, delay time.Duration) error
	Wheel(deltaX, deltaY float64) error
	Evaluate(expression string) (any, error)
	Content() (string, error)
	Screenshot(fullPage bool) ([]byte, error)
	Title() (string, error)
	URL() string
	BringToFront() error
	IsClosed() bool
	Close() error
}
