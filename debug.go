package federation

import (
	"os"
	"strconv"
	"time"
)

// DebugEnvVar enables structured timing logs for manifest fetches, script
// loads, and prefetch execution. It is an observability aid, not a
// correctness contract.
const DebugEnvVar = "FEDERATION_DEBUG"

// debugEnabled reports whether timing diagnostics are switched on.
func debugEnabled() bool {
	v := os.Getenv(DebugEnvVar)
	if v == "" {
		return false
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		// Any non-empty, non-boolean value counts as enabled.
		return true
	}
	return enabled
}

// debugTimer logs the start of a timed operation and returns a stop
// function logging its duration. When the debug flag is off it is a no-op.
func debugTimer(logger Logger, op string, args ...any) func() {
	if !debugEnabled() {
		return func() {}
	}
	start := time.Now()
	logger.Debug(op+" started", args...)
	return func() {
		logger.Debug(op+" finished", append(args, "duration", time.Since(start).String())...)
	}
}
