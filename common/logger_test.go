package common

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{" WARN ", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"info", LevelInfo},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.in))
		})
	}
}

func TestAppLogger_LogFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newAppLogger(&buf, LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	assert.Zero(t, buf.Len(), "debug/info should be filtered when level is warn")

	logger.Warn("warn message")
	assert.Contains(t, buf.String(), "level=WARN")

	buf.Reset()
	logger.Error("error message")
	assert.Contains(t, buf.String(), "level=ERROR")
}

func TestAppLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newAppLogger(&buf, LevelInfo)

	logger.Debug("hidden")
	assert.Zero(t, buf.Len())

	logger.SetLevel(LevelDebug)
	logger.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestAppLogger_Attributes(t *testing.T) {
	var buf bytes.Buffer
	logger := newAppLogger(&buf, LevelDebug)

	logger.Slog().With("component", "registry").Info("profile saved", "id", "abc")

	out := buf.String()
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, `msg="profile saved"`)
	assert.Contains(t, out, "component=registry")
	assert.Contains(t, out, "id=abc")
}

func TestDefaultLogConfig(t *testing.T) {
	assert.EqualValues(t, 5*1024*1024, defaultMaxFileSize)
	assert.Equal(t, 5, defaultMaxBackups)
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	dir, err := GetConfigDir()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(dir, ConfigDirName))
	assert.True(t, FileExists(dir))
}

func TestFileExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exists")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))

	assert.True(t, FileExists(path))
	assert.False(t, FileExists("/nonexistent/path/to/file"))
}

func TestGenerateID(t *testing.T) {
	id1 := GenerateID()
	id2 := GenerateID()

	_, err := uuid.Parse(id1)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestWrapError(t *testing.T) {
	wrapped := WrapError(ErrProfileNotFound, "additional context")

	require.Error(t, wrapped)
	assert.Contains(t, wrapped.Error(), "additional context")
	assert.Contains(t, wrapped.Error(), ErrProfileNotFound.Error())
	assert.True(t, errors.Is(wrapped, ErrProfileNotFound))

	assert.NoError(t, WrapError(nil, "context"))
}

func TestLogRotation(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "test.log")

	largeContent := strings.Repeat("x", 1024*1024)
	require.NoError(t, os.WriteFile(logFile, []byte(largeContent), 0600))

	logger := newAppLogger(&bytes.Buffer{}, LevelInfo)
	logger.maxFileSize = 512 * 1024
	logger.maxBackups = 2

	logger.rotateIfNeeded(logFile)

	info, err := os.Stat(logFile)
	if err == nil {
		assert.Zero(t, info.Size(), "original log file should be removed or empty after rotation")
	}

	matches, _ := filepath.Glob(filepath.Join(tempDir, "test.log.*"))
	assert.NotEmpty(t, matches, "backup file should be created after rotation")
}

func TestLogRotation_PrunesBackups(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "test.log")

	for _, suffix := range []string{"1.gz", "2.gz", "3.gz", "4.gz"} {
		require.NoError(t, os.WriteFile(logFile+"."+suffix, []byte("old"), 0600))
	}

	logger := newAppLogger(&bytes.Buffer{}, LevelInfo)
	logger.maxBackups = 2
	logger.cleanupOldBackups(logFile)

	matches, _ := filepath.Glob(logFile + ".*")
	assert.Len(t, matches, 2)
}
