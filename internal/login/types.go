package login

import (
	"time"

	"github.com/dhruvsoni1802/browser-hub/internal/engine"
	"github.com/dhruvsoni1802/browser-hub/internal/profile"
)

// State is where a session name stands in the interactive login flow
type State string

const (
	StateNone      State = "NONE"
	StateOpen      State = "LOGIN_OPEN"
	StateSaved     State = "SAVED"
	StateAbandoned State = "ABANDONED"
)

// SharedProfileName is the profile directory used when every login shares one profile
const SharedProfileName = "shared"

// Config controls where login windows keep their profiles
type Config struct {
	ProfilesDir    string
	ExtensionsDir  string
	SharedProfile  bool
	Timeout        time.Duration
	NavTimeout     time.Duration
	ExecutablePath string
}

// Session is one open login window
type Session struct {
	Name       string
	URL        string
	ProfileDir string
	OpenedAt   time.Time
	Context    engine.Context
	Page       engine.Page

	guard *profile.Guard
}

// Info is the listing view of an open login
type Info struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	ProfileDir  string    `json:"profile_dir"`
	OpenedAt    time.Time `json:"opened_at"`
	ExpiresHint time.Time `json:"expires_hint"`
}

// StartResult tells the caller what was opened and what to do next
type StartResult struct {
	Name           string    `json:"name"`
	URL            string    `json:"url"`
	ProfileDir     string    `json:"profile_dir"`
	Extensions     []string  `json:"extensions"`
	TimeoutSeconds int       `json:"timeout_seconds"`
	ExpiresHint    time.Time `json:"expires_hint"`
	Guidance       string    `json:"guidance"`
}
