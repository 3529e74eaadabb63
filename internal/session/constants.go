package session

import (
	"fmt"
	"time"
)

const (
	// DefaultCleanupInterval is how often dead entries are pruned
	DefaultCleanupInterval = 30 * time.Second

	// keySeparator joins the two halves of a key in logs
	keySeparator = "#"
)

// Error definitions
var (
	ErrInvalidKey = fmt.Errorf("context id is required")
)
