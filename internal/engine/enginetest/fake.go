// Package enginetest provides an in-memory engine for exercising the browser core without chromium.
package enginetest

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dhruvsoni1802/browser-hub/internal/engine"
)

// EmptyState is what a fresh context reports from StorageState
const EmptyState = `{"cookies":[],"origins":[]}`

// Engine is a fake engine.Engine. Exported fields are safe to set before use.
type Engine struct {
	LaunchErr     error
	ConnectErr    error
	PersistentErr error

	// CDP is returned by ConnectOverCDP when ConnectErr is nil
	CDP *Browser

	// PersistentHook runs on every persistent context before it is returned
	PersistentHook func(*Context)

	mu              sync.Mutex
	launches        map[engine.Mode]int
	launched        []*Browser
	launchArgs      [][]string
	persistent      []*Context
	persistentDirs  []string
	persistentOpts  []engine.PersistentOptions
	connectAttempts int
	closed          bool
}

// New returns an empty fake engine
func New() *Engine {
	return &Engine{launches: make(map[engine.Mode]int)}
}

func (e *Engine) Launch(opts engine.LaunchOptions) (engine.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.LaunchErr != nil {
		return nil, e.LaunchErr
	}
	e.launches[opts.Mode]++
	e.launchArgs = append(e.launchArgs, append([]string(nil), opts.Args...))
	b := NewBrowser(fmt.Sprintf("fake-%s-%d", opts.Mode, e.launches[opts.Mode]))
	e.launched = append(e.launched, b)
	return b, nil
}

func (e *Engine) ConnectOverCDP(endpoint string, timeout time.Duration) (engine.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.connectAttempts++
	if e.ConnectErr != nil {
		return nil, e.ConnectErr
	}
	if e.CDP == nil {
		return nil, errors.New("connect ECONNREFUSED " + endpoint)
	}
	return e.CDP, nil
}

func (e *Engine) LaunchPersistentContext(userDataDir string, opts engine.PersistentOptions) (engine.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.PersistentErr != nil {
		return nil, e.PersistentErr
	}
	c := NewContext(nil)
	if e.PersistentHook != nil {
		e.PersistentHook(c)
	}
	e.persistent = append(e.persistent, c)
	e.persistentDirs = append(e.persistentDirs, userDataDir)
	e.persistentOpts = append(e.persistentOpts, opts)
	return c, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// SetPersistentHook installs PersistentHook while other goroutines may be launching
func (e *Engine) SetPersistentHook(hook func(*Context)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.PersistentHook = hook
}

// Launches returns how many processes were launched for mode
func (e *Engine) Launches(mode engine.Mode) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.launches[mode]
}

// Launched returns every browser launched so far
func (e *Engine) Launched() []*Browser {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Browser(nil), e.launched...)
}

// LaunchArgs returns the argument list of the nth launch
func (e *Engine) LaunchArgs(n int) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n < 0 || n >= len(e.launchArgs) {
		return nil
	}
	return e.launchArgs[n]
}

// Persistent returns the persistent contexts launched so far
func (e *Engine) Persistent() []*Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Context(nil), e.persistent...)
}

// PersistentDirs returns the profile directories passed to LaunchPersistentContext
func (e *Engine) PersistentDirs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.persistentDirs...)
}

// PersistentOptions returns the options of the nth persistent launch
func (e *Engine) PersistentOptions(n int) engine.PersistentOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persistentOpts[n]
}

// ConnectAttempts returns how often ConnectOverCDP was called
func (e *Engine) ConnectAttempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connectAttempts
}

// Closed reports whether Close was called
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Browser is a fake engine.Browser
type Browser struct {
	NewContextErr error
	// NewContextDelay slows creation down so concurrent callers overlap
	NewContextDelay time.Duration

	name string

	mu          sync.Mutex
	connected   bool
	closed      bool
	contexts    []*Context
	newContexts int
}

// NewBrowser returns a connected fake browser
func NewBrowser(name string) *Browser {
	return &Browser{name: name, connected: true}
}

func (b *Browser) NewContext(opts engine.ContextOptions) (engine.Context, error) {
	if b.NewContextDelay > 0 {
		time.Sleep(b.NewContextDelay)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.NewContextErr != nil {
		return nil, b.NewContextErr
	}
	b.newContexts++
	c := NewContext(opts.StorageState)
	c.Options = opts
	b.contexts = append(b.contexts, c)
	return c, nil
}

func (b *Browser) Contexts() []engine.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]engine.Context, 0, len(b.contexts))
	for _, c := range b.contexts {
		out = append(out, c)
	}
	return out
}

// AddContext attaches an existing context, as a CDP-attached browser would report it
func (b *Browser) AddContext(c *Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contexts = append(b.contexts, c)
}

func (b *Browser) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Crash marks the browser as disconnected
func (b *Browser) Crash() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

func (b *Browser) Version() string { return "120.0.0.0" }

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.connected = false
	return nil
}

// Closed reports whether Close was called
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// NewContextCalls returns how many contexts were created on this browser
func (b *Browser) NewContextCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newContexts
}

// Name identifies the browser in test failures
func (b *Browser) Name() string { return b.name }

// Context is a fake engine.Context
type Context struct {
	Options         engine.ContextOptions
	StorageStateErr error
	NewPageErr      error
	CloseErr        error
	// PageGotoErr is copied onto every page the context opens
	PageGotoErr error

	mu          sync.Mutex
	seed        []byte
	state       []byte
	initScripts []string
	pages       []*Page
	closed      bool
}

// NewContext returns an open context seeded with state
func NewContext(seed []byte) *Context {
	return &Context{seed: seed}
}

func (c *Context) AddInitScript(script string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initScripts = append(c.initScripts, script)
	return nil
}

func (c *Context) NewPage() (engine.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("target closed")
	}
	if c.NewPageErr != nil {
		return nil, c.NewPageErr
	}
	p := NewPage("about:blank")
	p.GotoErr = c.PageGotoErr
	c.pages = append(c.pages, p)
	return p, nil
}

// AddPage attaches an existing page to the context
func (c *Context) AddPage(p *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = append(c.pages, p)
}

func (c *Context) Pages() []engine.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]engine.Page, 0, len(c.pages))
	for _, p := range c.pages {
		if !p.IsClosed() {
			out = append(out, p)
		}
	}
	return out
}

// SetStorageState overrides what StorageState reports
func (c *Context) SetStorageState(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = []byte(state)
}

func (c *Context) StorageState() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.StorageStateErr != nil {
		return nil, c.StorageStateErr
	}
	switch {
	case c.state != nil:
		return append([]byte(nil), c.state...), nil
	case c.seed != nil:
		return append([]byte(nil), c.seed...), nil
	default:
		return []byte(EmptyState), nil
	}
}

func (c *Context) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Context) Close() error {
	c.mu.Lock()
	pages := append([]*Page(nil), c.pages...)
	c.closed = true
	err := c.CloseErr
	c.mu.Unlock()

	for _, p := range pages {
		p.Close()
	}
	return err
}

// InitScripts returns the scripts added to this context
func (c *Context) InitScripts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.initScripts...)
}

// Seed returns the storage state the context was created with
func (c *Context) Seed() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seed
}

// Page is a fake engine.Page that records what was done to it
type Page struct {
	GotoErr       error
	ClickErr      error
	EvaluateValue any
	EvaluateErr   error

	mu      sync.Mutex
	url     string
	title   string
	closed  bool
	clicks  []string
	fills   map[string]string
	typed   strings.Builder
	wheel   float64
	scripts []string
	gotos   []string
	fronted int
}

// NewPage returns an open page at url
func NewPage(url string) *Page {
	return &Page{url: url, fills: make(map[string]string)}
}

func (p *Page) Goto(url string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("target closed")
	}
	p.gotos = append(p.gotos, url)
	if p.GotoErr != nil {
		return p.GotoErr
	}
	p.url = url
	p.title = "Title of " + url
	return nil
}

func (p *Page) Click(selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ClickErr != nil {
		return p.ClickErr
	}
	p.clicks = append(p.clicks, selector)
	return nil
}

func (p *Page) Fill(selector, value string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fills[selector] = value
	return nil
}

func (p *Page) Type(text string, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed.WriteString(text)
	return nil
}

func (p *Page) Wheel(deltaX, deltaY float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wheel += deltaY
	return nil
}

func (p *Page) Evaluate(expression string) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts = append(p.scripts, expression)
	return p.EvaluateValue, p.EvaluateErr
}

func (p *Page) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return "<html><body>" + p.url + "</body></html>", nil
}

func (p *Page) Screenshot(fullPage bool) ([]byte, error) {
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

func (p *Page) Title() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) BringToFront() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fronted++
	return nil
}

func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Clicks returns the selectors clicked in order
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Filled returns the value filled into selector
func (p *Page) Filled(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fills[selector]
}

// Typed returns every keystroke typed on the page
func (p *Page) Typed() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typed.String()
}

// Scrolled returns the total vertical wheel distance
func (p *Page) Scrolled() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wheel
}

// Gotos returns every navigation attempt
func (p *Page) Gotos() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.gotos...)
}
