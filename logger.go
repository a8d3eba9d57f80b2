package federation

import "log/slog"

// Logger defines the interface for runtime logging.
// The federation runtime uses structured logging with key-value pairs
// so host applications can control how runtime logs appear.
//
// The Logger interface uses variadic arguments in key-value pairs:
//
//	logger.Info("message", "key1", "value1", "key2", "value2")
//
// This approach is compatible with popular structured logging libraries
// like slog, logrus, zap, and others.
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	// Used for normal runtime events like remote registration or container creation.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	// Used for failures that reached the caller or an error hook.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	// Used for reported-not-fatal conditions such as shared-scope
	// singleton conflicts and forced re-registration.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	// Used for detailed diagnostics such as load timing, typically
	// enabled through the FEDERATION_DEBUG flag.
	Debug(msg string, args ...any)
}

// SlogLogger adapts a *slog.Logger to the runtime's Logger interface.
// It is the default logger when a host is built without an explicit one.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps an existing slog logger for use by a host.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: logger}
}

func (l *SlogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *SlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *SlogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
