package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/dhruvsoni1802/browser-hub/internal/engine"
)

// Key identifies one registry entry. An empty Session means no named session;
// see Manager.Close for how a pointer to "" differs from nil.
type Key struct {
	ContextID string
	Session   string
}

func (k Key) String() string {
	if k.Session == "" {
		return k.ContextID
	}
	return k.ContextID + keySeparator + k.Session
}

// flight names the singleflight call for k. Both halves are quoted so no
// context id can impersonate another (context id, session) pair.
func (k Key) flight() string {
	return strconv.Quote(k.ContextID) + "\x00" + strconv.Quote(k.Session)
}

// Options selects how a missing entry is created
type Options struct {
	// Mode defaults to headless
	Mode engine.Mode
}

func (o Options) mode() engine.Mode {
	if o.Mode == "" {
		return engine.Headless
	}
	return o.Mode
}

// Entry is one registered browsing context and its primary page
type Entry struct {
	Key       Key
	Mode      engine.Mode
	Context   engine.Context
	CreatedAt time.Time
	Seeded    bool // created from a saved session

	mu   sync.Mutex
	page engine.Page
}

// Page returns the current primary page
func (e *Entry) Page() engine.Page {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.page
}

// alive reports whether the context can still host pages
func (e *Entry) alive() bool {
	return !e.Context.IsClosed()
}

// ensurePage replaces a closed primary page with a fresh one in the same context
func (e *Entry) ensurePage() (engine.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.page != nil && !e.page.IsClosed() {
		return e.page, nil
	}
	page, err := e.Context.NewPage()
	if err != nil {
		return nil, err
	}
	e.page = page
	return page, nil
}

// EntryInfo is the status view of an entry
type EntryInfo struct {
	ContextID string      `json:"context_id"`
	Session   string      `json:"session,omitempty"`
	Mode      engine.Mode `json:"mode"`
	Seeded    bool        `json:"seeded"`
	CreatedAt time.Time   `json:"created_at"`
	URL       string      `json:"url,omitempty"`
}

func (e *Entry) info() EntryInfo {
	info := EntryInfo{
		ContextID: e.Key.ContextID,
		Session:   e.Key.Session,
		Mode:      e.Mode,
		Seeded:    e.Seeded,
		CreatedAt: e.CreatedAt,
	}
	if page := e.Page(); page != nil && !page.IsClosed() {
		info.URL = page.URL()
	}
	return info
}
