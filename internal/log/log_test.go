package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelDebug, "text").With(String("run_id", "r1"))

	l.Info("key analysed", String("key", "FullName"), Int64("matches", 42))

	out := buf.String()
	assert.Contains(t, out, "run_id=r1")
	assert.Contains(t, out, "key=FullName")
	assert.Contains(t, out, "matches=42")
	assert.True(t, l.DebugEnabled())
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelInfo, "json")

	l.Debug("hidden")
	l.Warn("shown", String("side", "a"))

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"side":"a"`)
	assert.False(t, l.DebugEnabled())
}

func TestParseLogLevel(t *testing.T) {
	level, err := parseLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)

	level, err = parseLogLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = parseLogLevel("loud")
	assert.Error(t, err)
}
