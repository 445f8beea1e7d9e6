package debug

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/record-overlap/internal/log"
)

func TestTiming(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, slog.LevelDebug, "text")

	done := Timing(logger, "staging", log.String("side", "a"))
	done()

	out := buf.String()
	assert.Contains(t, out, "Starting: staging")
	assert.Contains(t, out, "Completed: staging")
	assert.Contains(t, out, "took=")
	assert.Contains(t, out, "side=a")
}

func TestDebugOutputDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, slog.LevelDebug, "text")

	DebugOutput(logger, false, "row %d", 1)
	assert.Empty(t, buf.String())

	DebugOutput(logger, true, "row %d", 2)
	assert.Contains(t, buf.String(), "row 2")
}
