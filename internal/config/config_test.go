package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no stray .env
	for k := range defaults {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("AIAIO_CONFIG", "")

	cfg := Load()

	assert.Equal(t, "aiaio.db", cfg.DBPath)
	assert.Equal(t, "8000", cfg.ServerPort)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, time.Duration(0), cfg.TurnTimeout)
	assert.Equal(t, 5, cfg.MaxToolRounds)
	assert.False(t, cfg.ResendTools)
	assert.Equal(t, ToolsInProcess, cfg.ToolsTransport)
	assert.Equal(t, 3, cfg.ContextResults)
	assert.False(t, cfg.RetrievalEnabled())
	assert.Equal(t, filepath.Join("./data", "images"), cfg.ImagesDir())
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AIAIO_SERVER_PORT", "9090")
	t.Setenv("AIAIO_LOG_LEVEL", "debug")
	t.Setenv("AIAIO_TURN_TIMEOUT", "90s")
	t.Setenv("AIAIO_RESEND_TOOLS", "true")
	t.Setenv("AIAIO_TOOLS_TRANSPORT", "Streamable")
	t.Setenv("AIAIO_EMBED_MODEL", "all-minilm")

	cfg := Load()

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 90*time.Second, cfg.TurnTimeout)
	assert.True(t, cfg.ResendTools)
	assert.Equal(t, ToolsStreamable, cfg.ToolsTransport)
	assert.True(t, cfg.RetrievalEnabled())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AIAIO_MAX_TOOL_ROUNDS=9\n"), 0o644))
	t.Setenv("AIAIO_MAX_TOOL_ROUNDS", "")
	os.Unsetenv("AIAIO_MAX_TOOL_ROUNDS")
	t.Cleanup(func() { os.Unsetenv("AIAIO_MAX_TOOL_ROUNDS") })

	cfg := Load()
	assert.Equal(t, 9, cfg.MaxToolRounds)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.in))
		})
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var text, js bytes.Buffer
	logger := SetupLoggerWithWriters(&text, &js, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("turn finished", "conversation_id", "c1")

	assert.NotContains(t, text.String(), "hidden")
	assert.Contains(t, text.String(), "turn finished")

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(js.String())), &rec))
	assert.Equal(t, "c1", rec["conversation_id"])
}

func TestSetupLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "aiaio.log")
	logger, cleanup := SetupLogger("test", path, slog.LevelInfo)
	logger.Info("hello")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":"test"`)
}
