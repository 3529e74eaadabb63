package browser

import (
	"time"

	"github.com/dhruvsoni1802/browser-hub/internal/engine"
)

type ProcessStatus string

const (
	StatusRunning      ProcessStatus = "running"
	StatusDisconnected ProcessStatus = "disconnected"
	StatusStopped      ProcessStatus = "stopped"
)

// launchArgs is the same for both modes; only the headless flag differs
var launchArgs = []string{
	"--disable-blink-features=AutomationControlled", // Hide navigator.webdriver automation flag
	"--no-sandbox",            // Disable sandbox (needed in containers)
	"--disable-dev-shm-usage", // Overcome limited resource problems
}

// LaunchArgs returns a copy of the fixed launch arguments
func LaunchArgs() []string {
	return append([]string(nil), launchArgs...)
}

// Process is one pooled browser
type Process struct {
	Mode      engine.Mode
	Browser   engine.Browser
	StartedAt time.Time
}

// Status reports whether the process is still usable
func (p *Process) Status() ProcessStatus {
	if p == nil || p.Browser == nil {
		return StatusStopped
	}
	if !p.Browser.IsConnected() {
		return StatusDisconnected
	}
	return StatusRunning
}

// ProcessInfo is the status view of one mode slot
type ProcessInfo struct {
	Mode      engine.Mode   `json:"mode"`
	Status    ProcessStatus `json:"status"`
	Connected bool          `json:"connected"`
	Version   string        `json:"version,omitempty"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Launches  int           `json:"launches"`
}
