package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewWithFormat_RenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithFormat(&buf, slog.LevelInfo, "json")
	require.NoError(t, err)

	logger.Info("boom", "error", errors.New("bad"))
	assert.Contains(t, buf.String(), `"err":"bad"`)
}

func TestNewWithFormat_FiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithFormat(&buf, slog.LevelWarn, "text")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewWithFormat_Unknown(t *testing.T) {
	_, err := NewWithFormat(&bytes.Buffer{}, slog.LevelInfo, "xml")
	assert.Error(t, err)
}
