package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHROMIUM_PATH", "")
	t.Setenv("USE_SYSTEM_CHROMIUM", "")
	t.Setenv("SESSION_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, BackendFile, cfg.SessionBackend)
	assert.Equal(t, "./sessions", cfg.SessionsDir)
	assert.Equal(t, "http://localhost:9222", cfg.CDPEndpoint)
	assert.Equal(t, 30*time.Second, cfg.WSHeartbeat)
	assert.Equal(t, 10*time.Minute, cfg.LoginTimeout)
	assert.Empty(t, cfg.ChromiumPath)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHROMIUM_PATH", "")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SESSION_BACKEND", "REDIS")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("WS_HEARTBEAT", "5s")
	t.Setenv("LOGIN_SHARED_PROFILE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, BackendRedis, cfg.SessionBackend)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 5*time.Second, cfg.WSHeartbeat)
	assert.True(t, cfg.LoginSharedProfile)
}

func TestLoadHTTPTimeouts(t *testing.T) {
	t.Setenv("CHROMIUM_PATH", "")
	t.Setenv("USE_SYSTEM_CHROMIUM", "")
	t.Setenv("HTTP_READ_TIMEOUT", "")
	t.Setenv("HTTP_WRITE_TIMEOUT", "2m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 2*time.Minute, cfg.WriteTimeout)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("CHROMIUM_PATH", "")
	t.Setenv("SESSION_BACKEND", "sqlite")

	_, err := Load()
	assert.Error(t, err)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("X_INT", "abc")
	t.Setenv("X_DUR", "soon")
	t.Setenv("X_BOOL", "maybe")

	assert.Equal(t, 7, getEnvAsInt("X_INT", 7))
	assert.Equal(t, time.Second, getEnvAsDuration("X_DUR", time.Second))
	assert.True(t, getEnvAsBool("X_BOOL", true))
}

func TestCustomChromiumPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bits are not used on windows")
	}

	dir := t.TempDir()
	bin := filepath.Join(dir, "chrome")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o644))

	t.Setenv("CHROMIUM_PATH", bin)
	_, err := findChromium()
	assert.Error(t, err, "non executable file must be rejected")

	require.NoError(t, os.Chmod(bin, 0o755))
	path, err := findChromium()
	require.NoError(t, err)
	assert.Equal(t, bin, path)

	t.Setenv("CHROMIUM_PATH", filepath.Join(dir, "missing"))
	_, err = findChromium()
	assert.Error(t, err)
}

func TestGetChromiumPaths(t *testing.T) {
	assert.NotEmpty(t, getChromiumPaths("linux"))
	assert.NotEmpty(t, getChromiumPaths("darwin"))
	assert.Empty(t, getChromiumPaths("plan9"))
}
