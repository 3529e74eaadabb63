package storage

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"time"

	"github.com/dhruvsoni1802/browser-hub/internal/failure"
)

// Record describes one saved session
type Record struct {
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	Size       int64     `json:"size"`
}

// Store persists named storage-state snapshots.
// A name exists exactly when a snapshot is stored under it.
type Store interface {
	List(ctx context.Context) ([]Record, error)
	Exists(ctx context.Context, name string) (bool, error)
	Save(ctx context.Context, name string, state []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) (bool, error)
	Touch(ctx context.Context, name string) error
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]{0,127}$`)

// ValidName reports whether name can be used as a session name
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// validateState rejects blobs that are not JSON documents
func validateState(op, name string, state []byte) error {
	if !ValidName(name) {
		return failure.New(failure.PersistenceFailure, op, "invalid session name "+name)
	}
	if !json.Valid(state) {
		return failure.New(failure.PersistenceFailure, op, "storage state for "+name+" is not valid JSON")
	}
	return nil
}

func notFound(op, name string) error {
	return failure.New(failure.NotFound, op, "session "+name+" not found")
}

// nextTouch returns a timestamp strictly after prev
func nextTouch(prev time.Time) time.Time {
	now := time.Now()
	if !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	return now
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
}
