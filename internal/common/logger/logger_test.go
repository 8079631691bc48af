package logger

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func readEntries(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestNewLoggerWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")
	log, err := NewLogger(LoggingConfig{Level: "info", Format: "json", OutputPath: path})
	require.NoError(t, err)

	ctx := context.WithValue(context.Background(), RunIDKey, "run-1")
	log.WithComponent("callback-listener").WithContext(ctx).Info("ready", zap.Int("port", 4242))
	log.Debug("filtered out")
	require.NoError(t, log.Sync())

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "info", e["level"])
	assert.Equal(t, "ready", e["msg"])
	assert.Equal(t, "callback-listener", e["component"])
	assert.Equal(t, "run-1", e["run_id"])
	assert.EqualValues(t, 4242, e["port"])
	assert.Contains(t, e, "timestamp")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")
	log, err := NewLogger(LoggingConfig{Level: "loud", OutputPath: path})
	require.NoError(t, err)

	log.Debug("hidden")
	log.WithError(assert.AnError).Warn("shown")
	require.NoError(t, log.Sync())

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0]["msg"])
	assert.Equal(t, assert.AnError.Error(), entries[0]["error"])
}

func TestWithContextWithoutRunID(t *testing.T) {
	log := Nop()
	assert.Same(t, log, log.WithContext(context.Background()))
}

func TestNewLoggerRejectsUnwritablePath(t *testing.T) {
	_, err := NewLogger(LoggingConfig{OutputPath: filepath.Join(t.TempDir(), "missing", "bridge.log")})
	assert.Error(t, err)
}
