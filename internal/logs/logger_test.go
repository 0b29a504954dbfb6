package logs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smart-mcp-proxy/mcpproxy-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuildsConsoleOnlyLoggerByDefault(t *testing.T) {
	logger, err := New(nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Info("hello")
}

func TestNewWritesRotatedFileWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.LogConfig{
		Level:      LevelDebug,
		EnableFile: true,
		LogDir:     dir,
		MaxSizeMB:  1,
		MaxBackups: 2,
		MaxAgeDays: 1,
		Compress:   false,
	}

	logger, err := New(cfg)
	require.NoError(t, err)
	logger.Info("written to file")
	require.NoError(t, logger.Sync())

	path := filepath.Join(dir, logFilename)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestNewFallsBackToStandardLogDirWhenUnset(t *testing.T) {
	cfg := &config.LogConfig{
		Level:      LevelInfo,
		EnableFile: true,
	}
	logger, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestParseLevelFallsBackToInfoForUnknownValues(t *testing.T) {
	assert.Equal(t, "info", parseLevel("bogus").String())
	assert.Equal(t, "info", parseLevel("").String())
	assert.Equal(t, "debug", parseLevel(LevelDebug).String())
}

func TestSecretsAreMaskedThroughTheFileCore(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.LogConfig{
		Level:      LevelInfo,
		EnableFile: true,
		LogDir:     dir,
	}
	logger, err := New(cfg)
	require.NoError(t, err)
	logger.Info(`dumping record {"access_token":"abcdefghijklmnopqrstuvwxyz0123456789","refresh_token":"zyxwvutsrqponmlkjihgfedcba9876543210"}`)
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(filepath.Join(dir, logFilename))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "abcdefghijklmnopqrstuvwxyz0123456789")
	assert.NotContains(t, string(data), "zyxwvutsrqponmlkjihgfedcba9876543210")
}
