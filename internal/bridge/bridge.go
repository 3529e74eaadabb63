// Package bridge attaches the hub to a real chrome, either over remote debugging or by
// launching one on a managed profile, and hands out the page every façade call should use.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dhruvsoni1802/browser-hub/internal/browser"
	"github.com/dhruvsoni1802/browser-hub/internal/cdp"
	"github.com/dhruvsoni1802/browser-hub/internal/engine"
	"github.com/dhruvsoni1802/browser-hub/internal/failure"
	"github.com/dhruvsoni1802/browser-hub/internal/profile"
	"github.com/dhruvsoni1802/browser-hub/internal/session"
)

// Bridge owns the remote-debugging attachment and the managed profile context
type Bridge struct {
	engine     engine.Engine
	registry   *session.Manager
	cfg        Config
	initScript string
	ctxOptions engine.ContextOptions

	providers []PageProvider

	// connectMu and launchMu serialize the slow paths of each mode
	connectMu sync.Mutex
	launchMu  sync.Mutex

	mu          sync.Mutex
	cdpBrowser  engine.Browser
	cdpVersion  string
	profileCtx  engine.Context
	profileLock *profile.Guard
}

// New creates a bridge. registry backs SharedPage when no external browser is live.
func New(eng engine.Engine, registry *session.Manager, cfg Config, initScript string, ctxOptions engine.ContextOptions) *Bridge {
	cfg.Endpoint = cdp.Normalize(cfg.Endpoint)
	if cfg.Timeout <= 0 {
		cfg.Timeout = cdp.DefaultTimeout
	}

	b := &Bridge{
		engine:     eng,
		registry:   registry,
		cfg:        cfg,
		initScript: initScript,
		ctxOptions: ctxOptions,
	}
	b.providers = []PageProvider{
		cdpProvider{bridge: b},
		profileProvider{bridge: b},
		registryProvider{bridge: b},
	}
	return b
}

// ProfileDir returns the managed profile directory
func (b *Bridge) ProfileDir() string {
	return filepath.Join(b.cfg.ProfilesDir, ProfileName)
}

// ConnectChrome attaches to the debugging endpoint. Calling it while attached returns the live attachment.
func (b *Bridge) ConnectChrome(ctx context.Context) (*ConnectResult, error) {
	return b.connect(ctx, b.cfg.Timeout)
}

func (b *Bridge) connect(ctx context.Context, timeout time.Duration) (*ConnectResult, error) {
	b.connectMu.Lock()
	defer b.connectMu.Unlock()

	if current := b.liveCDP(); current != nil {
		return &ConnectResult{
			Endpoint: b.cfg.Endpoint,
			Browser:  b.cdpBrowserName(),
			Reused:   true,
			Tabs:     tabsOf(current.Contexts(), SourceCDP),
			Targets:  b.targets(ctx, timeout),
		}, nil
	}

	info, err := cdp.Probe(ctx, b.cfg.Endpoint, timeout)
	if err != nil {
		return nil, err
	}

	remote, err := b.engine.ConnectOverCDP(b.cfg.Endpoint, timeout)
	if err != nil {
		return nil, failure.Wrap(failure.AttachFailure, "connect chrome",
			"could not attach to Chrome at "+b.cfg.Endpoint, err).WithGuidance(cdp.Guidance)
	}

	b.mu.Lock()
	b.cdpBrowser = remote
	b.cdpVersion = info.Browser
	b.mu.Unlock()

	tabs := tabsOf(remote.Contexts(), SourceCDP)
	targets := b.targets(ctx, timeout)
	slog.Info("chrome attached",
		"endpoint", b.cfg.Endpoint,
		"browser", info.Browser,
		"tabs", len(tabs),
		"targets", len(targets))

	return &ConnectResult{
		Endpoint: b.cfg.Endpoint,
		Browser:  info.Browser,
		Tabs:     tabs,
		Targets:  targets,
	}, nil
}

// targets lists the endpoint's page targets. A failed listing is logged and reported as empty.
func (b *Bridge) targets(ctx context.Context, timeout time.Duration) []cdp.Target {
	targets, err := cdp.ListTargets(ctx, b.cfg.Endpoint, timeout)
	if err != nil {
		slog.Warn("could not list chrome targets", "endpoint", b.cfg.Endpoint, "error", err)
		return []cdp.Target{}
	}
	return targets
}

// LaunchRealChrome starts a headed chrome on the managed profile. Calling it while
// that chrome is open returns the running one.
func (b *Bridge) LaunchRealChrome(ctx context.Context) (*LaunchResult, error) {
	b.launchMu.Lock()
	defer b.launchMu.Unlock()

	dir := b.ProfileDir()
	if current := b.liveProfile(); current != nil {
		return &LaunchResult{ProfileDir: dir, Reused: true, Tabs: tabsOfPages(current.Pages(), SourceProfile)}, nil
	}
	// a profile chrome the user closed still holds its lock
	b.releaseProfile()

	guard, err := profile.Lock(dir)
	if err != nil {
		return nil, failure.Wrap(failure.LaunchFailure, "launch chrome", "managed profile is busy", err)
	}

	bc, err := b.launchProfile(dir)
	if err != nil {
		guard.Unlock()
		return nil, err
	}

	b.mu.Lock()
	b.profileCtx = bc
	b.profileLock = guard
	b.mu.Unlock()

	tabs := tabsOfPages(bc.Pages(), SourceProfile)
	slog.Info("profile chrome launched", "profile_dir", dir, "tabs", len(tabs))
	return &LaunchResult{ProfileDir: dir, Tabs: tabs}, nil
}

func (b *Bridge) launchProfile(dir string) (engine.Context, error) {
	if err := profile.Prepare(dir); err != nil {
		return nil, failure.Wrap(failure.LaunchFailure, "launch chrome", "could not prepare profile", err)
	}

	bc, err := b.engine.LaunchPersistentContext(dir, engine.PersistentOptions{
		Headless:       false,
		Args:           browser.LaunchArgs(),
		ExecutablePath: b.cfg.ExecutablePath,
		Context:        b.ctxOptions,
	})
	if err != nil {
		return nil, failure.Wrap(failure.LaunchFailure, "launch chrome", "could not launch Chrome on the managed profile", err)
	}

	if err := bc.AddInitScript(b.initScript); err != nil {
		bc.Close()
		return nil, failure.Wrap(failure.LaunchFailure, "launch chrome", "could not install init script", err)
	}

	if len(bc.Pages()) == 0 {
		if _, err := bc.NewPage(); err != nil {
			bc.Close()
			return nil, failure.Wrap(failure.LaunchFailure, "launch chrome", "could not open page", err)
		}
	}
	return bc, nil
}

// Tabs lists tabs of the live external browser, preferring the debugging attachment
func (b *Bridge) Tabs(ctx context.Context) []Tab {
	if remote := b.liveCDP(); remote != nil {
		return tabsOf(remote.Contexts(), SourceCDP)
	}
	if bc := b.liveProfile(); bc != nil {
		return tabsOfPages(bc.Pages(), SourceProfile)
	}
	return []Tab{}
}

// SharedPage walks the providers in order and returns the first page one of them offers
func (b *Bridge) SharedPage(ctx context.Context, req Request) (engine.Page, error) {
	var lastErr error
	for _, provider := range b.providers {
		page, err := provider.TryPage(ctx, req)
		if err != nil {
			slog.Debug("page provider failed", "provider", provider.Name(), "error", err)
			lastErr = err
			continue
		}
		if page != nil {
			return page, nil
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, failure.New(failure.NotFound, "shared page", "no page provider could supply a page")
}

// Disconnect drops the debugging attachment. The remote chrome keeps running.
func (b *Bridge) Disconnect() error {
	b.mu.Lock()
	remote := b.cdpBrowser
	b.cdpBrowser = nil
	b.cdpVersion = ""
	b.mu.Unlock()

	if remote == nil {
		return nil
	}
	if err := remote.Close(); err != nil {
		return err
	}
	slog.Info("chrome detached", "endpoint", b.cfg.Endpoint)
	return nil
}

// CloseProfile closes the managed profile chrome and releases its lock
func (b *Bridge) CloseProfile() error {
	b.mu.Lock()
	bc := b.profileCtx
	guard := b.profileLock
	b.profileCtx = nil
	b.profileLock = nil
	b.mu.Unlock()

	var errs []error
	if bc != nil {
		if err := bc.Close(); err != nil {
			errs = append(errs, err)
		} else {
			slog.Info("profile chrome closed", "profile_dir", b.ProfileDir())
		}
	}
	if err := guard.Unlock(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close tears down both modes. Each is attempted even if the other fails.
func (b *Bridge) Close() error {
	return errors.Join(b.Disconnect(), b.CloseProfile())
}

// Status reports both attachment modes
func (b *Bridge) Status() Status {
	return Status{
		CDPConnected:   b.liveCDP() != nil,
		CDPEndpoint:    b.cfg.Endpoint,
		CDPBrowser:     b.cdpBrowserName(),
		ProfileRunning: b.liveProfile() != nil,
		ProfileDir:     b.ProfileDir(),
	}
}

// liveCDP returns the attachment if it is still connected
func (b *Bridge) liveCDP() engine.Browser {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cdpBrowser == nil || !b.cdpBrowser.IsConnected() {
		return nil
	}
	return b.cdpBrowser
}

func (b *Bridge) cdpBrowserName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cdpBrowser == nil {
		return ""
	}
	return b.cdpVersion
}

// liveProfile returns the profile context if it is still open
func (b *Bridge) liveProfile() engine.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.profileCtx == nil || b.profileCtx.IsClosed() {
		return nil
	}
	return b.profileCtx
}

// releaseProfile forgets a profile context that was closed from outside
func (b *Bridge) releaseProfile() {
	b.mu.Lock()
	guard := b.profileLock
	stale := b.profileCtx != nil && b.profileCtx.IsClosed()
	if stale {
		b.profileCtx = nil
		b.profileLock = nil
	}
	b.mu.Unlock()

	if stale {
		if err := guard.Unlock(); err != nil {
			slog.Warn("failed to release profile lock", "error", err)
		}
	}
}

func tabsOf(contexts []engine.Context, source string) []Tab {
	pages := make([]engine.Page, 0)
	for _, bc := range contexts {
		pages = append(pages, bc.Pages()...)
	}
	return tabsOfPages(pages, source)
}

func tabsOfPages(pages []engine.Page, source string) []Tab {
	tabs := make([]Tab, 0, len(pages))
	for _, page := range pages {
		if page.IsClosed() {
			continue
		}
		title, err := page.Title()
		if err != nil {
			title = ""
		}
		tabs = append(tabs, Tab{Index: len(tabs), URL: page.URL(), Title: title, Source: source})
	}
	return tabs
}
