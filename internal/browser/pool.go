package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dhruvsoni1802/browser-hub/internal/engine"
	"github.com/dhruvsoni1802/browser-hub/internal/failure"
	"github.com/dhruvsoni1802/browser-hub/internal/metrics"
)

// Pool owns at most one headless and one headed browser process
type Pool struct {
	engine         engine.Engine
	executablePath string

	mu       sync.Mutex
	slots    map[engine.Mode]*Process
	launches map[engine.Mode]int

	// concurrent first acquires for one mode share a single launch
	group singleflight.Group
}

// NewPool creates an empty pool. Processes are launched on first Acquire.
func NewPool(eng engine.Engine, executablePath string) *Pool {
	return &Pool{
		engine:         eng,
		executablePath: executablePath,
		slots:          make(map[engine.Mode]*Process),
		launches:       make(map[engine.Mode]int),
	}
}

// Acquire returns the connected process for mode, launching one if the slot is empty or dead
func (p *Pool) Acquire(ctx context.Context, mode engine.Mode) (engine.Browser, error) {
	if b := p.live(mode); b != nil {
		return b, nil
	}

	ch := p.group.DoChan(string(mode), func() (interface{}, error) {
		return p.launch(mode)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(engine.Browser), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) live(mode engine.Mode) engine.Browser {
	p.mu.Lock()
	defer p.mu.Unlock()

	proc := p.slots[mode]
	if proc != nil && proc.Browser.IsConnected() {
		return proc.Browser
	}
	return nil
}

func (p *Pool) launch(mode engine.Mode) (engine.Browser, error) {
	// a flight that finished just before this one may have filled the slot
	if b := p.live(mode); b != nil {
		return b, nil
	}

	p.mu.Lock()
	stale := p.slots[mode]
	delete(p.slots, mode)
	p.mu.Unlock()

	if stale != nil {
		slog.Warn("browser disconnected, relaunching", "mode", mode)
		if err := stale.Browser.Close(); err != nil {
			slog.Debug("closing stale browser failed", "mode", mode, "error", err)
		}
	}

	b, err := p.engine.Launch(engine.LaunchOptions{
		Mode:           mode,
		Args:           LaunchArgs(),
		ExecutablePath: p.executablePath,
	})
	if err != nil {
		return nil, failure.Wrap(failure.LaunchFailure, "launch browser", fmt.Sprintf("could not start %s browser", mode), err)
	}

	proc := &Process{Mode: mode, Browser: b, StartedAt: time.Now()}

	p.mu.Lock()
	p.slots[mode] = proc
	p.launches[mode]++
	p.mu.Unlock()

	metrics.BrowserLaunched(string(mode))
	slog.Info("browser launched", "mode", mode, "version", b.Version())
	return b, nil
}

// Status returns one entry per mode, launched or not
func (p *Pool) Status() []ProcessInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	infos := make([]ProcessInfo, 0, 2)
	for _, mode := range []engine.Mode{engine.Headless, engine.Headed} {
		proc := p.slots[mode]
		info := ProcessInfo{
			Mode:     mode,
			Status:   proc.Status(),
			Launches: p.launches[mode],
		}
		if proc != nil {
			started := proc.StartedAt
			info.StartedAt = &started
			info.Connected = proc.Browser.IsConnected()
			if info.Connected {
				info.Version = proc.Browser.Version()
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// Shutdown closes every pooled process, best effort
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	procs := make([]*Process, 0, len(p.slots))
	for mode, proc := range p.slots {
		procs = append(procs, proc)
		delete(p.slots, mode)
	}
	p.mu.Unlock()

	var errs []error
	for _, proc := range procs {
		if err := proc.Browser.Close(); err != nil {
			slog.Warn("failed to close browser", "mode", proc.Mode, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", proc.Mode, err))
			continue
		}
		slog.Info("browser closed", "mode", proc.Mode)
	}

	return errors.Join(errs...)
}
