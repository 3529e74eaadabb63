// Package core wires the browser pool, context registry, login coordinator and bridge
// into one owned instance shared by every façade.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dhruvsoni1802/browser-hub/internal/actions"
	"github.com/dhruvsoni1802/browser-hub/internal/bridge"
	"github.com/dhruvsoni1802/browser-hub/internal/browser"
	"github.com/dhruvsoni1802/browser-hub/internal/config"
	"github.com/dhruvsoni1802/browser-hub/internal/engine"
	"github.com/dhruvsoni1802/browser-hub/internal/login"
	"github.com/dhruvsoni1802/browser-hub/internal/session"
	"github.com/dhruvsoni1802/browser-hub/internal/stealth"
	"github.com/dhruvsoni1802/browser-hub/internal/storage"
)

// Core is the browser hub. Create it with New and release it with Shutdown.
type Core struct {
	Config   *config.Config
	Engine   engine.Engine
	Store    storage.Store
	Pool     *browser.Pool
	Registry *session.Manager
	Logins   *login.Coordinator
	Bridge   *bridge.Bridge
	Actions  *actions.Runner

	closers []func() error

	shutdownOnce sync.Once
	shutdownErr  error
}

// Status is the aggregated view served by /status and browser_status
type Status struct {
	Browsers []browser.ProcessInfo `json:"browsers"`
	Contexts int                   `json:"contexts"`
	Entries  []session.EntryInfo   `json:"entries"`
	Logins   []login.Info          `json:"logins"`
	Bridge   bridge.Status         `json:"bridge"`
	Sessions int                   `json:"sessions"`
}

// New builds every component on top of eng and store
func New(cfg *config.Config, eng engine.Engine, store storage.Store) *Core {
	script := stealth.Script()
	ctxOptions := stealth.ContextOptions()

	pool := browser.NewPool(eng, cfg.ChromiumPath)
	registry := session.NewManager(pool, store, script, ctxOptions)
	registry.StartCleanupWorker(session.DefaultCleanupInterval)

	logins := login.NewCoordinator(eng, store, login.Config{
		ProfilesDir:    cfg.ProfilesDir,
		ExtensionsDir:  cfg.ExtensionsDir,
		SharedProfile:  cfg.LoginSharedProfile,
		Timeout:        cfg.LoginTimeout,
		NavTimeout:     cfg.NavTimeout,
		ExecutablePath: cfg.ChromiumPath,
	}, script, ctxOptions)

	br := bridge.New(eng, registry, bridge.Config{
		Endpoint:       cfg.CDPEndpoint,
		Timeout:        cfg.CDPTimeout,
		ProfilesDir:    cfg.ProfilesDir,
		ExecutablePath: cfg.ChromiumPath,
	}, script, ctxOptions)

	return &Core{
		Config:   cfg,
		Engine:   eng,
		Store:    store,
		Pool:     pool,
		Registry: registry,
		Logins:   logins,
		Bridge:   br,
		Actions:  actions.NewRunner(cfg.NavTimeout, cfg.ActionTimeout),
	}
}

// AddCloser registers fn to run at the end of Shutdown
func (c *Core) AddCloser(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Page returns the primary page registered under (contextID, sessionName), creating it on a miss
func (c *Core) Page(ctx context.Context, contextID, sessionName string, headless bool) (engine.Page, error) {
	entry, err := c.Registry.GetOrCreate(ctx,
		session.Key{ContextID: contextID, Session: sessionName},
		session.Options{Mode: engine.ModeFor(headless)})
	if err != nil {
		return nil, err
	}
	return entry.Page(), nil
}

// Status collects the state of every component
func (c *Core) Status(ctx context.Context) (*Status, error) {
	records, err := c.Store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return &Status{
		Browsers: c.Pool.Status(),
		Contexts: c.Registry.Count(),
		Entries:  c.Registry.List(),
		Logins:   c.Logins.List(),
		Bridge:   c.Bridge.Status(),
		Sessions: len(records),
	}, nil
}

// Shutdown closes logins, the bridge, the registry and its pool, then the engine.
// Every step runs even if an earlier one fails. Later calls return the first result.
func (c *Core) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.shutdownOnce.Do(func() { c.shutdownErr = c.shutdown() })
		close(done)
	}()

	select {
	case <-done:
		return c.shutdownErr
	case <-ctx.Done():
		return fmt.Errorf("shutdown interrupted: %w", ctx.Err())
	}
}

func (c *Core) shutdown() error {
	slog.Info("shutting down browser hub")

	var errs []error
	c.Logins.CloseAll()

	if err := c.Bridge.Close(); err != nil {
		slog.Warn("bridge close incomplete", "error", err)
		errs = append(errs, fmt.Errorf("bridge: %w", err))
	}

	c.Registry.StopCleanupWorker()
	c.Registry.CloseAll()

	if err := c.Engine.Close(); err != nil {
		slog.Warn("engine close failed", "error", err)
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}

	for _, closer := range c.closers {
		if err := closer(); err != nil {
			slog.Warn("closer failed", "error", err)
			errs = append(errs, err)
		}
	}

	slog.Info("browser hub stopped")
	return errors.Join(errs...)
}
