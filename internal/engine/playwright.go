package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Playwright is the Engine backed by a playwright driver.
// The driver starts on first use so that commands which never touch a browser stay cheap.
type Playwright struct {
	install bool

	mu sync.Mutex
	pw *playwright.Playwright
}

// NewPlaywright creates an engine. When install is true the chromium driver is
// downloaded before the first launch.
func NewPlaywright(install bool) *Playwright {
	return &Playwright{install: install}
}

func (p *Playwright) chromium() (playwright.BrowserType, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pw != nil {
		return p.pw.Chromium, nil
	}

	runOpts := &playwright.RunOptions{Browsers: []string{"chromium"}}
	if p.install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright driver: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	p.pw = pw
	slog.Debug("playwright driver started")
	return pw.Chromium, nil
}

// Launch starts a new chromium process
func (p *Playwright) Launch(opts LaunchOptions) (Browser, error) {
	chromium, err := p.chromium()
	if err != nil {
		return nil, err
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Mode != Headed),
		Args:     opts.Args,
	}
	if opts.ExecutablePath != "" {
		launchOpts.ExecutablePath = playwright.String(opts.ExecutablePath)
	}

	b, err := chromium.Launch(launchOpts)
	if err != nil {
		return nil, err
	}
	return &pwBrowser{b: b}, nil
}

// ConnectOverCDP attaches to an already running chromium
func (p *Playwright) ConnectOverCDP(endpoint string, timeout time.Duration) (Browser, error) {
	chromium, err := p.chromium()
	if err != nil {
		return nil, err
	}

	b, err := chromium.ConnectOverCDP(endpoint, playwright.BrowserTypeConnectOverCDPOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return nil, err
	}
	return &pwBrowser{b: b}, nil
}

// LaunchPersistentContext starts chromium against a durable profile directory
func (p *Playwright) LaunchPersistentContext(userDataDir string, opts PersistentOptions) (Context, error) {
	chromium, err := p.chromium()
	if err != nil {
		return nil, err
	}

	launchOpts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     opts.Args,
	}
	if opts.ExecutablePath != "" {
		launchOpts.ExecutablePath = playwright.String(opts.ExecutablePath)
	}
	c := opts.Context
	if c.Viewport.Width > 0 && c.Viewport.Height > 0 {
		launchOpts.Viewport = &playwright.Size{Width: c.Viewport.Width, Height: c.Viewport.Height}
	}
	if c.UserAgent != "" {
		launchOpts.UserAgent = playwright.String(c.UserAgent)
	}
	if c.Locale != "" {
		launchOpts.Locale = playwright.String(c.Locale)
	}
	if c.TimezoneID != "" {
		launchOpts.TimezoneId = playwright.String(c.TimezoneID)
	}
	if len(c.ExtraHeaders) > 0 {
		launchOpts.ExtraHttpHeaders = c.ExtraHeaders
	}

	bc, err := chromium.LaunchPersistentContext(userDataDir, launchOpts)
	if err != nil {
		return nil, err
	}
	return wrapContext(bc), nil
}

// Close stops the playwright driver if it was started
func (p *Playwright) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pw == nil {
		return nil
	}
	err := p.pw.Stop()
	p.pw = nil
	return err
}

type pwBrowser struct {
	b playwright.Browser
}

func (b *pwBrowser) NewContext(opts ContextOptions) (Context, error) {
	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		ctxOpts.Viewport = &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height}
	}
	if opts.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	if opts.Locale != "" {
		ctxOpts.Locale = playwright.String(opts.Locale)
	}
	if opts.TimezoneID != "" {
		ctxOpts.TimezoneId = playwright.String(opts.TimezoneID)
	}
	if len(opts.ExtraHeaders) > 0 {
		ctxOpts.ExtraHttpHeaders = opts.ExtraHeaders
	}

	// playwright reads seeded state from a file
	if len(opts.StorageState) > 0 {
		f, err := os.CreateTemp("", "storage-state-*.json")
		if err != nil {
			return nil, fmt.Errorf("failed to stage storage state: %w", err)
		}
		defer os.Remove(f.Name())
		if _, err := f.Write(opts.StorageState); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to stage storage state: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("failed to stage storage state: %w", err)
		}
		ctxOpts.StorageStatePath = playwright.String(f.Name())
	}

	bc, err := b.b.NewContext(ctxOpts)
	if err != nil {
		return nil, err
	}
	return wrapContext(bc), nil
}

func (b *pwBrowser) Contexts() []Context {
	contexts := b.b.Contexts()
	out := make([]Context, 0, len(contexts))
	for _, c := range contexts {
		out = append(out, wrapContext(c))
	}
	return out
}

func (b *pwBrowser) IsConnected() bool { return b.b.IsConnected() }
func (b *pwBrowser) Version() string   { return b.b.Version() }
func (b *pwBrowser) Close() error      { return b.b.Close() }

type pwContext struct {
	c      playwright.BrowserContext
	closed atomic.Bool
}

func wrapContext(bc playwright.BrowserContext) *pwContext {
	c := &pwContext{c: bc}
	bc.OnClose(func(playwright.BrowserContext) {
		c.closed.Store(true)
	})
	return c
}

func (c *pwContext) AddInitScript(script string) error {
	return c.c.AddInitScript(playwright.Script{Content: playwright.String(script)})
}

func (c *pwContext) NewPage() (Page, error) {
	p, err := c.c.NewPage()
	if err != nil {
		return nil, err
	}
	return &pwPage{p: p}, nil
}

func (c *pwContext) Pages() []Page {
	pages := c.c.Pages()
	out := make([]Page, 0, len(pages))
	for _, p := range pages {
		out = append(out, &pwPage{p: p})
	}
	return out
}

func (c *pwContext) StorageState() ([]byte, error) {
	state, err := c.c.StorageState()
	if err != nil {
		return nil, err
	}
	return json.Marshal(state)
}

func (c *pwContext) IsClosed() bool { return c.closed.Load() }

func (c *pwContext) Close() error {
	err := c.c.Close()
	c.closed.Store(true)
	return err
}

type pwPage struct {
	p playwright.Page
}

func (p *pwPage) Goto(url string, timeout time.Duration) error {
	_, err := p.p.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	return err
}

func (p *pwPage) Click(selector string, timeout time.Duration) error {
	return p.p.Click(selector, playwright.PageClickOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (p *pwPage) Fill(selector, value string, timeout time.Duration) error {
	return p.p.Fill(selector, value, playwright.PageFillOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (p *pwPage) Type(text string, delay time.Duration) error {
	return p.p.Keyboard().Type(text, playwright.KeyboardTypeOptions{
		Delay: playwright.Float(float64(delay.Milliseconds())),
	})
}

func (p *pwPage) Wheel(deltaX, deltaY float64) error {
	return p.p.Mouse().Wheel(deltaX, deltaY)
}

func (p *pwPage) Evaluate(expression string) (any, error) {
	return p.p.Evaluate(expression)
}

func (p *pwPage) Content() (string, error) { return p.p.Content() }

func (p *pwPage) Screenshot(fullPage bool) ([]byte, error) {
	return p.p.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
		Type:     playwright.ScreenshotTypePng,
	})
}

func (p *pwPage) Title() (string, error) { return p.p.Title() }
func (p *pwPage) URL() string            { return p.p.URL() }
func (p *pwPage) BringToFront() error    { return p.p.BringToFront() }
func (p *pwPage) IsClosed() bool         { return p.p.IsClosed() }
func (p *pwPage) Close() error           { return p.p.Close() }
