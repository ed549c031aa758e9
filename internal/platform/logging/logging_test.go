package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ConsoleOnly(t *testing.T) {
	logger, err := New(Config{Level: "debug"})

	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Slog())
	assert.NoError(t, logger.Close())
}

func TestNew_WithFile(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(Config{Level: "info", Dir: dir, Filename: "test.log"})
	require.NoError(t, err)

	logger.InfoTag("VAD", "speech started at %.3f", 0.042)
	require.NoError(t, logger.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[VAD] speech started at 0.042")
	assert.NotContains(t, string(data), "\x1b[", "file output must not carry color codes")
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Level: "verbose", Dir: dir, Filename: "lvl.log"})
	require.NoError(t, err)

	logger.Debug("should be filtered")
	logger.Info("should appear")
	require.NoError(t, logger.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should be filtered")
	assert.Contains(t, string(data), "should appear")
}

func TestSweepOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().AddDate(0, 0, -10).Format("2006-01-02")
	fresh := time.Now().Format("2006-01-02")

	require.NoError(t, os.WriteFile(filepath.Join(dir, old+"_app.log"), []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, fresh+"_app.log"), []byte("new"), 0o644))

	sweepOldLogs(dir, "app.log")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), fresh))
}
