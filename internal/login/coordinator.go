// Package login runs interactive login windows whose cookies are captured into the session store.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dhruvsoni1802/browser-hub/internal/browser"
	"github.com/dhruvsoni1802/browser-hub/internal/engine"
	"github.com/dhruvsoni1802/browser-hub/internal/failure"
	"github.com/dhruvsoni1802/browser-hub/internal/metrics"
	"github.com/dhruvsoni1802/browser-hub/internal/profile"
	"github.com/dhruvsoni1802/browser-hub/internal/storage"
)

const startGuidance = "Log in using the browser window, then call save to keep it open or close to finish."

// Coordinator owns every open login window
type Coordinator struct {
	engine     engine.Engine
	store      storage.Store
	cfg        Config
	initScript string
	ctxOptions engine.ContextOptions

	// startMu serializes Start so a superseded window is gone before its replacement launches
	startMu sync.Mutex

	mu     sync.Mutex
	active map[string]*Session
	states map[string]State
}

// NewCoordinator creates a coordinator that launches persistent contexts through eng
func NewCoordinator(eng engine.Engine, store storage.Store, cfg Config, initScript string, ctxOptions engine.ContextOptions) *Coordinator {
	return &Coordinator{
		engine:     eng,
		store:      store,
		cfg:        cfg,
		initScript: initScript,
		ctxOptions: ctxOptions,
		active:     make(map[string]*Session),
		states:     make(map[string]State),
	}
}

// ProfileDir returns the user-data directory a login for name runs in
func (c *Coordinator) ProfileDir(name string) string {
	if c.cfg.SharedProfile {
		return filepath.Join(c.cfg.ProfilesDir, SharedProfileName)
	}
	return filepath.Join(c.cfg.ProfilesDir, name)
}

// Start opens a headed login window for name at url. An open login for name is closed first.
func (c *Coordinator) Start(ctx context.Context, name, url string) (*StartResult, error) {
	if !storage.ValidName(name) {
		return nil, failure.New(failure.InvalidInput, "start login", "invalid session name "+name)
	}
	if url == "" {
		return nil, failure.New(failure.InvalidInput, "start login", "url is required")
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()

	// a new login always wins, also over another name on the same profile
	dir := c.ProfileDir(name)
	for _, prior := range c.takeHolding(name, dir) {
		slog.Info("superseding open login", "session", prior.Name, "by", name)
		c.closeSession(prior)
		if prior.Name != name {
			c.setState(prior.Name, StateAbandoned)
		}
	}

	guard, err := profile.Lock(dir)
	if err != nil {
		c.setState(name, StateAbandoned)
		launchErr := failure.Wrap(failure.LaunchFailure, "start login", "profile "+dir+" is busy", err)
		if errors.Is(err, profile.ErrProfileInUse) {
			launchErr.WithGuidance("Another process holds this profile. Close the other hub or Chrome using it and retry.")
		}
		return nil, launchErr
	}

	session, extensions, err := c.open(name, url, dir)
	if err != nil {
		guard.Unlock()
		c.setState(name, StateAbandoned)
		return nil, err
	}
	session.guard = guard

	c.mu.Lock()
	c.active[name] = session
	c.states[name] = StateOpen
	open := len(c.active)
	c.mu.Unlock()

	metrics.SetLoginSessions(open)
	slog.Info("login opened",
		"session", name,
		"url", url,
		"profile_dir", dir,
		"extensions", len(extensions))

	return &StartResult{
		Name:           name,
		URL:            url,
		ProfileDir:     dir,
		Extensions:     extensions,
		TimeoutSeconds: int(c.cfg.Timeout / time.Second),
		ExpiresHint:    session.OpenedAt.Add(c.cfg.Timeout),
		Guidance:       startGuidance,
	}, nil
}

// open launches the persistent context and navigates its first page
func (c *Coordinator) open(name, url, dir string) (*Session, []string, error) {
	if err := profile.Prepare(dir); err != nil {
		return nil, nil, failure.Wrap(failure.LaunchFailure, "start login", "could not prepare profile", err)
	}

	extensions, err := profile.DiscoverExtensions(c.cfg.ExtensionsDir)
	if err != nil {
		slog.Warn("extension discovery failed, launching without extensions", "error", err)
		extensions = nil
	}

	args := append(browser.LaunchArgs(), profile.ExtensionArgs(extensions)...)
	bc, err := c.engine.LaunchPersistentContext(dir, engine.PersistentOptions{
		Headless:       false,
		Args:           args,
		ExecutablePath: c.cfg.ExecutablePath,
		Context:        c.ctxOptions,
	})
	if err != nil {
		return nil, nil, failure.Wrap(failure.LaunchFailure, "start login", "could not launch login browser", err)
	}

	if err := bc.AddInitScript(c.initScript); err != nil {
		closeQuietly(name, bc)
		return nil, nil, failure.Wrap(failure.LaunchFailure, "start login", "could not install init script", err)
	}

	page, err := firstPage(bc)
	if err != nil {
		closeQuietly(name, bc)
		return nil, nil, failure.Wrap(failure.LaunchFailure, "start login", "could not open page", err)
	}

	if err := page.Goto(url, c.cfg.NavTimeout); err != nil {
		closeQuietly(name, bc)
		return nil, nil, failure.Wrap(failure.NavigationFailure, "start login", "could not load "+url, err)
	}

	return &Session{
		Name:       name,
		URL:        url,
		ProfileDir: dir,
		OpenedAt:   time.Now(),
		Context:    bc,
		Page:       page,
	}, extensions, nil
}

// Save snapshots the login's storage state into the store and leaves the window open
func (c *Coordinator) Save(ctx context.Context, name string) error {
	session := c.get(name)
	if session == nil {
		return failure.New(failure.NotFound, "save login", "no open login for "+name)
	}
	return c.save(ctx, session)
}

func (c *Coordinator) save(ctx context.Context, session *Session) error {
	state, err := session.Context.StorageState()
	if err != nil {
		return failure.Wrap(failure.PersistenceFailure, "save login", "could not read storage state", err)
	}
	if err := c.store.Save(ctx, session.Name, state); err != nil {
		return err
	}
	slog.Info("login saved", "session", session.Name, "bytes", len(state))
	return nil
}

// Close saves the login, then closes its window even if saving failed.
// The save error, if any, is returned after the window is gone.
func (c *Coordinator) Close(ctx context.Context, name string) error {
	session := c.get(name)
	if session == nil {
		return failure.New(failure.NotFound, "close login", "no open login for "+name)
	}

	saveErr := c.save(ctx, session)

	if c.takeIf(name, session) {
		c.closeSession(session)
	}
	c.setState(name, StateSaved)

	if saveErr != nil {
		return fmt.Errorf("login closed but not saved: %w", saveErr)
	}
	return nil
}

// List returns the open logins sorted by name
func (c *Coordinator) List() []Info {
	c.mu.Lock()
	infos := make([]Info, 0, len(c.active))
	for _, session := range c.active {
		infos = append(infos, Info{
			Name:        session.Name,
			URL:         session.URL,
			ProfileDir:  session.ProfileDir,
			OpenedAt:    session.OpenedAt,
			ExpiresHint: session.OpenedAt.Add(c.cfg.Timeout),
		})
	}
	c.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// State returns the last known state of name
func (c *Coordinator) State(name string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state, ok := c.states[name]; ok {
		return state
	}
	return StateNone
}

// Count returns the number of open logins
func (c *Coordinator) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// CloseAll closes every open login without saving
func (c *Coordinator) CloseAll() {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.active))
	for name, session := range c.active {
		sessions = append(sessions, session)
		delete(c.active, name)
		c.states[name] = StateAbandoned
	}
	c.mu.Unlock()

	for _, session := range sessions {
		c.closeSession(session)
	}
	metrics.SetLoginSessions(0)
	if len(sessions) > 0 {
		slog.Info("all logins closed", "count", len(sessions))
	}
}

func (c *Coordinator) get(name string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[name]
}

// takeHolding unregisters the open login for name and any login whose profile is dir
func (c *Coordinator) takeHolding(name, dir string) []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	var taken []*Session
	for key, session := range c.active {
		if key == name || session.ProfileDir == dir {
			taken = append(taken, session)
			delete(c.active, key)
		}
	}
	if len(taken) > 0 {
		metrics.SetLoginSessions(len(c.active))
	}
	return taken
}

// takeIf unregisters session only if it is still the one open under name
func (c *Coordinator) takeIf(name string, session *Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active[name] != session {
		return false
	}
	delete(c.active, name)
	metrics.SetLoginSessions(len(c.active))
	return true
}

func (c *Coordinator) setState(name string, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[name] = state
}

func (c *Coordinator) closeSession(session *Session) {
	closeQuietly(session.Name, session.Context)
	if err := session.guard.Unlock(); err != nil {
		slog.Warn("failed to release profile lock", "session", session.Name, "error", err)
	}
	slog.Info("login closed", "session", session.Name)
}

func closeQuietly(name string, bc engine.Context) {
	if err := bc.Close(); err != nil {
		slog.Warn("failed to close login browser", "session", name, "error", err)
	}
}

// firstPage returns the page a persistent context opened with, or a new one
func firstPage(bc engine.Context) (engine.Page, error) {
	for _, page := range bc.Pages() {
		if !page.IsClosed() {
			return page, nil
		}
	}
	return bc.NewPage()
}
