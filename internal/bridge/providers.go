package bridge

import (
	"context"
	"strings"

	"github.com/dhruvsoni1802/browser-hub/internal/engine"
	"github.com/dhruvsoni1802/browser-hub/internal/session"
)

// PageProvider offers a page for a request. A nil page with a nil error means the provider has none.
type PageProvider interface {
	Name() string
	TryPage(ctx context.Context, req Request) (engine.Page, error)
}

// cdpProvider uses the attached chrome, attaching on demand
type cdpProvider struct {
	bridge *Bridge
}

func (p cdpProvider) Name() string { return SourceCDP }

func (p cdpProvider) TryPage(ctx context.Context, req Request) (engine.Page, error) {
	remote := p.bridge.liveCDP()
	if remote == nil {
		timeout := autoAttachTimeout
		if p.bridge.cfg.Timeout < timeout {
			timeout = p.bridge.cfg.Timeout
		}
		// no debuggable chrome is the common case, not an error
		if _, err := p.bridge.connect(ctx, timeout); err != nil {
			return nil, nil
		}
		if remote = p.bridge.liveCDP(); remote == nil {
			return nil, nil
		}
	}

	contexts := remote.Contexts()
	var first engine.Page
	for _, bc := range contexts {
		for _, page := range bc.Pages() {
			if page.IsClosed() {
				continue
			}
			if first == nil {
				first = page
			}
			if req.URLPattern != "" && strings.Contains(page.URL(), req.URLPattern) {
				return page, nil
			}
		}
	}

	if req.URLPattern == "" && first != nil {
		return first, nil
	}
	if len(contexts) == 0 {
		return nil, nil
	}
	return contexts[0].NewPage()
}

// profileProvider uses the managed profile chrome if it is running
type profileProvider struct {
	bridge *Bridge
}

func (p profileProvider) Name() string { return SourceProfile }

func (p profileProvider) TryPage(ctx context.Context, req Request) (engine.Page, error) {
	bc := p.bridge.liveProfile()
	if bc == nil {
		return nil, nil
	}
	for _, page := range bc.Pages() {
		if !page.IsClosed() {
			return page, nil
		}
	}
	return bc.NewPage()
}

// registryProvider falls back to an isolated registry context per session
type registryProvider struct {
	bridge *Bridge
}

func (p registryProvider) Name() string { return "registry" }

func (p registryProvider) TryPage(ctx context.Context, req Request) (engine.Page, error) {
	if p.bridge.registry == nil {
		return nil, nil
	}
	entry, err := p.bridge.registry.GetOrCreate(ctx,
		session.Key{ContextID: SharedContextID, Session: req.Session},
		session.Options{Mode: engine.ModeFor(req.Headless)})
	if err != nil {
		return nil, err
	}
	return entry.Page(), nil
}
