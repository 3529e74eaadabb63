package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		value string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelWarn},
		{"loud", slog.LevelWarn},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.value, slog.LevelWarn), tt.value)
	}
}

func TestSetupLoggerProductionIsJSON(t *testing.T) {
	t.Setenv("ENV", "production")

	var out bytes.Buffer
	logger := setupLogger(&out, "")
	logger.Debug("hidden")
	logger.Info("browser launched", "mode", "headless")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), `"msg":"browser launched"`)
	assert.Contains(t, out.String(), `"mode":"headless"`)
}

func TestSetupLoggerDevelopmentHonoursLevel(t *testing.T) {
	t.Setenv("ENV", "")

	var out bytes.Buffer
	logger := setupLogger(&out, "warn")
	logger.Info("quiet")
	logger.Warn("loud")

	assert.NotContains(t, out.String(), "quiet")
	assert.Contains(t, out.String(), "msg=loud")
}
