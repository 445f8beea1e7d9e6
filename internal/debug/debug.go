package debug

import (
	"fmt"
	"time"

	"github.com/record-overlap/internal/log"
)

// DebugOutput logs a formatted debug line if debugging is enabled
func DebugOutput(logger *log.Logger, enabled bool, format string, args ...interface{}) {
	if enabled {
		logger.Debug(fmt.Sprintf(format, args...))
	}
}

// Timing measures an operation and logs its duration when the returned
// function is called. Completion is logged at info level so long stages
// are visible without debug output; the start line needs debug.
func Timing(logger *log.Logger, operation string, fields ...log.Field) func() {
	start := time.Now()
	logger.Debug("Starting: "+operation, fields...)

	return func() {
		duration := time.Since(start)
		logger.Info("Completed: "+operation, append(fields, log.Duration("took", duration))...)
	}
}
