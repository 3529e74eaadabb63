package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dhruvsoni1802/browser-hub/internal/browser"
	"github.com/dhruvsoni1802/browser-hub/internal/engine"
	"github.com/dhruvsoni1802/browser-hub/internal/failure"
	"github.com/dhruvsoni1802/browser-hub/internal/metrics"
	"github.com/dhruvsoni1802/browser-hub/internal/storage"
)

// Manager maps context keys to live browsing contexts
type Manager struct {
	pool           *browser.Pool
	store          storage.Store
	initScript     string
	contextOptions engine.ContextOptions

	entries map[Key]*Entry
	mu      sync.RWMutex

	// one in-flight creation per key
	group singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a registry backed by pool and store. initScript is added to every new context.
func NewManager(pool *browser.Pool, store storage.Store, initScript string, contextOptions engine.ContextOptions) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		pool:           pool,
		store:          store,
		initScript:     initScript,
		contextOptions: contextOptions,
		entries:        make(map[Key]*Entry),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// GetOrCreate returns the entry registered under key, creating it on a miss.
// A hit whose page was closed gets a fresh page in the same context.
func (m *Manager) GetOrCreate(ctx context.Context, key Key, opts Options) (*Entry, error) {
	if key.ContextID == "" {
		return nil, ErrInvalidKey
	}

	if entry := m.lookup(key); entry != nil && entry.alive() {
		if _, err := entry.ensurePage(); err == nil {
			return entry, nil
		}
	}

	ch := m.group.DoChan(key.flight(), func() (interface{}, error) {
		// creation outlives a caller that gives up waiting
		return m.create(context.WithoutCancel(ctx), key, opts)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entry), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) lookup(key Key) *Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[key]
}

func (m *Manager) create(ctx context.Context, key Key, opts Options) (*Entry, error) {
	if entry := m.lookup(key); entry != nil {
		if entry.alive() {
			if _, err := entry.ensurePage(); err == nil {
				return entry, nil
			}
		}
		// the context died underneath us, rebuild it
		m.remove(entry)
		m.teardown(entry)
	}

	mode := opts.mode()
	b, err := m.pool.Acquire(ctx, mode)
	if err != nil {
		return nil, err
	}

	ctxOpts := m.contextOptions
	seeded := false
	if key.Session != "" && m.store != nil {
		state, err := m.store.Load(ctx, key.Session)
		switch {
		case err == nil:
			ctxOpts.StorageState = state
			seeded = true
		case failure.Is(err, failure.NotFound):
			slog.Debug("no saved session, using a bare context", "session", key.Session)
		default:
			return nil, err
		}
	}

	bc, err := b.NewContext(ctxOpts)
	if err != nil {
		return nil, failure.Wrap(failure.LaunchFailure, "create context", "could not create browsing context", err)
	}

	if err := bc.AddInitScript(m.initScript); err != nil {
		bc.Close()
		return nil, failure.Wrap(failure.LaunchFailure, "create context", "could not install init script", err)
	}

	page, err := bc.NewPage()
	if err != nil {
		bc.Close()
		return nil, failure.Wrap(failure.LaunchFailure, "create context", "could not open page", err)
	}

	if seeded {
		if err := m.store.Touch(ctx, key.Session); err != nil {
			slog.Warn("failed to touch session", "session", key.Session, "error", err)
		}
	}

	entry := &Entry{
		Key:       key,
		Mode:      mode,
		Context:   bc,
		CreatedAt: time.Now(),
		Seeded:    seeded,
		page:      page,
	}

	m.mu.Lock()
	m.entries[key] = entry
	count := len(m.entries)
	m.mu.Unlock()

	metrics.ContextCreated()
	metrics.SetActiveContexts(count)
	slog.Info("context created",
		"context_id", key.ContextID,
		"session", key.Session,
		"mode", mode,
		"seeded", seeded)

	return entry, nil
}

// remove unregisters entry if it is still the one stored under its key
func (m *Manager) remove(entry *Entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entries[entry.Key] != entry {
		return false
	}
	delete(m.entries, entry.Key)
	metrics.SetActiveContexts(len(m.entries))
	return true
}

func (m *Manager) teardown(entry *Entry) {
	if err := entry.Context.Close(); err != nil {
		slog.Warn("failed to close context",
			"context_id", entry.Key.ContextID,
			"session", entry.Key.Session,
			"error", err)
		return
	}
	slog.Info("context closed", "context_id", entry.Key.ContextID, "session", entry.Key.Session)
}

// Close tears down the entry for (contextID, session), or every entry under contextID
// when session is nil. A non-nil pointer to "" selects only the entry without a named
// session, so `?session=` closes the bare entry and leaves seeded ones open.
// Missing entries are ignored. It returns how many entries were closed.
func (m *Manager) Close(contextID string, session *string) int {
	m.mu.Lock()
	victims := make([]*Entry, 0)
	for key, entry := range m.entries {
		if key.ContextID != contextID {
			continue
		}
		if session != nil && key.Session != *session {
			continue
		}
		victims = append(victims, entry)
		delete(m.entries, key)
	}
	metrics.SetActiveContexts(len(m.entries))
	m.mu.Unlock()

	for _, entry := range victims {
		m.teardown(entry)
	}
	return len(victims)
}

// CloseAll tears down every entry and both pooled browsers. Failures are logged and skipped.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	victims := make([]*Entry, 0, len(m.entries))
	for key, entry := range m.entries {
		victims = append(victims, entry)
		delete(m.entries, key)
	}
	metrics.SetActiveContexts(0)
	m.mu.Unlock()

	for _, entry := range victims {
		m.teardown(entry)
	}

	if err := m.pool.Shutdown(); err != nil {
		slog.Warn("browser pool shutdown incomplete", "error", err)
	}
	slog.Info("all contexts closed", "count", len(victims))
}

// Count returns the number of registered entries
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// List returns a snapshot of every entry sorted by key
func (m *Manager) List() []EntryInfo {
	m.mu.RLock()
	entries := make([]*Entry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, entry)
	}
	m.mu.RUnlock()

	infos := make([]EntryInfo, 0, len(entries))
	for _, entry := range entries {
		infos = append(infos, entry.info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ContextID != infos[j].ContextID {
			return infos[i].ContextID < infos[j].ContextID
		}
		return infos[i].Session < infos[j].Session
	})
	return infos
}

// Pool returns the browser pool the registry draws from
func (m *Manager) Pool() *browser.Pool {
	return m.pool
}

// StartCleanupWorker prunes entries whose context was closed outside the registry
func (m *Manager) StartCleanupWorker(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		slog.Info("cleanup worker started", "check_interval", interval)

		for {
			select {
			case <-m.ctx.Done():
				slog.Info("cleanup worker stopping")
				return

			case <-ticker.C:
				m.pruneDead()
			}
		}
	}()
}

// StopCleanupWorker stops the worker started by StartCleanupWorker
func (m *Manager) StopCleanupWorker() {
	m.cancel()
}

// pruneDead removes entries whose context is already closed
func (m *Manager) pruneDead() int {
	// Phase 1: collect dead entries (read lock)
	m.mu.RLock()
	dead := make([]*Entry, 0)
	for _, entry := range m.entries {
		if !entry.alive() {
			dead = append(dead, entry)
		}
	}
	m.mu.RUnlock()

	// Phase 2: unregister each one
	pruned := 0
	for _, entry := range dead {
		if m.remove(entry) {
			pruned++
		}
	}
	if pruned > 0 {
		slog.Info("pruned dead contexts", "count", pruned)
	}
	return pruned
}
