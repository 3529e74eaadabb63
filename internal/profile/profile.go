// Package profile manages durable chromium user-data directories.
package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"
)

// staleLockFiles are left behind by a chromium that did not exit cleanly.
// Any of them blocks the next launch on the same directory.
var staleLockFiles = []string{"SingletonLock", "SingletonSocket", "SingletonCookie"}

const manifestFile = "manifest.json"

// Prepare creates dir and clears stale single-instance locks
func Prepare(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}
	return RemoveStaleLocks(dir)
}

// RemoveStaleLocks deletes leftover single-instance lock files. Missing files are fine.
func RemoveStaleLocks(dir string) error {
	var errs []error
	for _, name := range staleLockFiles {
		path := filepath.Join(dir, name)
		// SingletonLock is usually a dangling symlink, so Lstat rather than Stat
		if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", name, err))
			continue
		}
		slog.Info("removed stale profile lock", "file", path)
	}
	return errors.Join(errs...)
}

// DiscoverExtensions returns every subdirectory of root holding a manifest, sorted.
// A missing root yields no extensions.
func DiscoverExtensions(root string) ([]string, error) {
	if root == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read extensions directory: %w", err)
	}

	dirs := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if info, err := os.Stat(filepath.Join(dir, manifestFile)); err == nil && !info.IsDir() {
			abs, err := filepath.Abs(dir)
			if err != nil {
				abs = dir
			}
			dirs = append(dirs, abs)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// ExtensionArgs builds the launch flags that sideload dirs
func ExtensionArgs(dirs []string) []string {
	if len(dirs) == 0 {
		return nil
	}
	joined := strings.Join(dirs, ",")
	return []string{
		"--disable-extensions-except=" + joined,
		"--load-extension=" + joined,
	}
}

// Guard holds the advisory lock on one profile directory
type Guard struct {
	lock *flock.Flock
}

// ErrProfileInUse means another hub process holds the profile
var ErrProfileInUse = errors.New("profile directory is in use by another process")

// Lock takes an exclusive advisory lock next to dir without blocking
func Lock(dir string) (*Guard, error) {
	if err := os.MkdirAll(filepath.Dir(filepath.Clean(dir)), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fileLock := flock.New(filepath.Clean(dir) + ".hub.lock")
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire profile lock: %w", err)
	}
	if !locked {
		return nil, ErrProfileInUse
	}
	return &Guard{lock: fileLock}, nil
}

// Unlock releases the lock. It is safe on a nil guard.
func (g *Guard) Unlock() error {
	if g == nil || g.lock == nil {
		return nil
	}
	return g.lock.Unlock()
}
