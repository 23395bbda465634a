package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name       string
		logsDir    string
		binaryName string
		want       string
	}{
		{
			name:       "basic path",
			logsDir:    "mocklogs",
			binaryName: "mockloc",
			want:       filepath.Join("mocklogs", "mockloc.20260212_213836.log"),
		},
		{
			name:       "relative path with dot",
			logsDir:    "./mocklogs",
			binaryName: "mockloc",
			want:       filepath.Join(".", "mocklogs", "mockloc.20260212_213836.log"),
		},
		{
			name:       "absolute path",
			logsDir:    filepath.Join("/var", "log", "mockloc"),
			binaryName: "mockloc",
			want:       filepath.Join("/var", "log", "mockloc", "mockloc.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogFilePath(tt.logsDir, tt.binaryName, sessionStart)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenLogFile_RotatesExisting(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	start := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	f, err := OpenLogFile(dir, "mockloc", start)
	require.NoError(t, err)
	_, err = f.WriteString("first run\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = OpenLogFile(dir, "mockloc", start)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	old, err := os.ReadFile(LogFilePath(dir, "mockloc", start) + ".old")
	require.NoError(t, err)
	assert.Equal(t, "first run\n", string(old))
}

func TestNewZerolog_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerolog("warn", &buf)

	logger.Info().Msg("quiet")
	logger.Warn().Str("path", "./mockloc.db").Msg("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}

func TestNewZerolog_DefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerolog("nonsense", &buf)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}
