package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/moby/sys/atomicwriter"

	"github.com/dhruvsoni1802/browser-hub/internal/failure"
)

const fileSuffix = ".json"

// fileEnvelope is the on-disk layout of one session file
type fileEnvelope struct {
	Name         string          `json:"name"`
	CreatedAt    time.Time       `json:"created_at"`
	StorageState json.RawMessage `json:"storage_state"`
}

// FileStore keeps one JSON file per session inside a directory.
// The file's modification time is the last-used signal.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, failure.Wrap(failure.PersistenceFailure, "open store", "cannot create sessions directory "+dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory backing the store
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+fileSuffix)
}

// List returns every session sorted by name
func (s *FileStore) List(ctx context.Context) ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, failure.Wrap(failure.PersistenceFailure, "list sessions", "cannot read sessions directory", err)
	}

	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		fileName := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(fileName, fileSuffix) {
			continue
		}
		name := strings.TrimSuffix(fileName, fileSuffix)
		if !ValidName(name) {
			continue
		}

		record, err := s.record(name)
		if err != nil {
			// a file removed between ReadDir and Stat is simply gone
			if failure.Is(err, failure.NotFound) {
				continue
			}
			slog.Warn("skipping unreadable session file", "session", name, "error", err)
			continue
		}
		records = append(records, record)
	}

	sortRecords(records)
	return records, nil
}

func (s *FileStore) record(name string) (Record, error) {
	info, err := os.Stat(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, notFound("stat session", name)
		}
		return Record{}, failure.Wrap(failure.PersistenceFailure, "stat session", "cannot stat "+name, err)
	}

	env, err := s.read(name)
	if err != nil {
		return Record{}, err
	}

	createdAt := env.CreatedAt
	if createdAt.IsZero() {
		createdAt = info.ModTime()
	}

	return Record{
		Name:       name,
		CreatedAt:  createdAt,
		LastUsedAt: info.ModTime(),
		Size:       int64(len(env.StorageState)),
	}, nil
}

// read decodes a session file. Bare storage-state documents are accepted as well.
func (s *FileStore) read(name string) (*fileEnvelope, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound("read session", name)
		}
		return nil, failure.Wrap(failure.PersistenceFailure, "read session", "cannot read "+name, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, failure.Wrap(failure.PersistenceFailure, "read session", "corrupt session file "+name, err)
	}

	if _, ok := fields["storage_state"]; ok {
		var env fileEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, failure.Wrap(failure.PersistenceFailure, "read session", "corrupt session file "+name, err)
		}
		return &env, nil
	}

	_, hasCookies := fields["cookies"]
	_, hasOrigins := fields["origins"]
	if hasCookies || hasOrigins {
		return &fileEnvelope{Name: name, StorageState: data}, nil
	}

	return nil, failure.New(failure.PersistenceFailure, "read session", "unrecognised session file "+name)
}

// Exists reports whether a session file is present
func (s *FileStore) Exists(ctx context.Context, name string) (bool, error) {
	if !ValidName(name) {
		return false, nil
	}

	_, err := os.Stat(s.path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, failure.Wrap(failure.PersistenceFailure, "exists", "cannot stat "+name, err)
}

// Save writes the snapshot to a temp file and renames it over the old one
func (s *FileStore) Save(ctx context.Context, name string, state []byte) error {
	if err := validateState("save session", name, state); err != nil {
		return err
	}

	createdAt := time.Now().UTC()
	if prev, err := s.read(name); err == nil && !prev.CreatedAt.IsZero() {
		createdAt = prev.CreatedAt
	}

	data, err := json.MarshalIndent(fileEnvelope{
		Name:         name,
		CreatedAt:    createdAt,
		StorageState: json.RawMessage(state),
	}, "", "  ")
	if err != nil {
		return failure.Wrap(failure.PersistenceFailure, "save session", "cannot encode "+name, err)
	}

	// temp file in the same dir, fsync, then rename over the old file
	if err := atomicwriter.WriteFile(s.path(name), data, 0o600); err != nil {
		return failure.Wrap(failure.PersistenceFailure, "save session", "cannot write "+name, err)
	}

	slog.Info("session saved", "session", name, "bytes", len(state))
	return nil
}

// Load returns the stored storage-state document
func (s *FileStore) Load(ctx context.Context, name string) ([]byte, error) {
	if !ValidName(name) {
		return nil, notFound("load session", name)
	}

	env, err := s.read(name)
	if err != nil {
		return nil, err
	}
	return env.StorageState, nil
}

// Delete removes the session file and reports whether it existed
func (s *FileStore) Delete(ctx context.Context, name string) (bool, error) {
	if !ValidName(name) {
		return false, nil
	}

	err := os.Remove(s.path(name))
	if err == nil {
		slog.Info("session deleted", "session", name)
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, failure.Wrap(failure.PersistenceFailure, "delete session", "cannot remove "+name, err)
}

// Touch bumps the modification time without rewriting content
func (s *FileStore) Touch(ctx context.Context, name string) error {
	if !ValidName(name) {
		return notFound("touch session", name)
	}

	path := s.path(name)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound("touch session", name)
		}
		return failure.Wrap(failure.PersistenceFailure, "touch session", "cannot stat "+name, err)
	}

	prev := info.ModTime()
	next := nextTouch(prev)
	if err := os.Chtimes(path, next, next); err != nil {
		return failure.Wrap(failure.PersistenceFailure, "touch session", "cannot update "+name, err)
	}

	// coarse filesystem clocks can round the bump away
	if after, err := os.Stat(path); err == nil && !after.ModTime().After(prev) {
		next = prev.Add(time.Second)
		if err := os.Chtimes(path, next, next); err != nil {
			return failure.Wrap(failure.PersistenceFailure, "touch session", "cannot update "+name, err)
		}
	}
	return nil
}
