package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetSink(t *testing.T) func() {
	t.Helper()

	globalSink.mu.Lock()
	prevFile := globalSink.file
	prevBuffer := append([]byte(nil), globalSink.buffer...)
	prevDiscard := globalSink.discard
	globalSink.file = nil
	globalSink.buffer = nil
	globalSink.discard = false
	globalSink.mu.Unlock()

	return func() {
		globalSink.mu.Lock()
		if globalSink.file != nil {
			_ = globalSink.file.Close()
		}
		globalSink.file = prevFile
		globalSink.buffer = prevBuffer
		globalSink.discard = prevDiscard
		globalSink.mu.Unlock()
	}
}

func TestSetFileFailureDiscardsLogs(t *testing.T) {
	t.Cleanup(resetSink(t))

	unwritableDir := t.TempDir()
	require.NoError(t, os.Chmod(unwritableDir, 0o500)) //nolint:gosec
	t.Cleanup(func() {
		_ = os.Chmod(unwritableDir, 0o700) //nolint:gosec
	})
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	logPath := filepath.Join(unwritableDir, "debug.log")
	require.Error(t, SetFile(logPath))

	Printf("should be discarded")

	globalSink.mu.Lock()
	defer globalSink.mu.Unlock()
	assert.True(t, globalSink.discard)
	assert.Empty(t, globalSink.buffer)
}

func TestBufferedLinesFlushToFile(t *testing.T) {
	t.Cleanup(resetSink(t))

	Printf("early %d", 1)

	logPath := filepath.Join(t.TempDir(), "debug.log")
	require.NoError(t, SetFile(logPath))
	Println("late")
	require.NoError(t, Close())

	data, err := os.ReadFile(logPath) //nolint:gosec
	require.NoError(t, err)
	assert.Contains(t, string(data), "early 1")
	assert.Contains(t, string(data), "late")
}

func TestNewLeveledLogger(t *testing.T) {
	t.Cleanup(resetSink(t))

	logPath := filepath.Join(t.TempDir(), "debug.log")
	require.NoError(t, SetFile(logPath))

	logger, err := New("warn")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown")
	_ = logger.Sync()
	require.NoError(t, Close())

	data, err := os.ReadFile(logPath) //nolint:gosec
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "hidden"))
	assert.Contains(t, string(data), "shown")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("loud")
	assert.Error(t, err)
	assert.NotNil(t, MustNew("loud"))
}

func TestNewNoneIsNop(t *testing.T) {
	logger, err := New(LevelNone)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
	assert.NotNil(t, OrNop(nil))
}
