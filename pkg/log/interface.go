// Package log provides the structured logging layer shared by the training
// workflows, the in-process cloud and the exporters.
//
// The package defines a minimal, slog-compatible Logger interface with two
// backends: the standard log/slog JSON handler (Cloud Logging field names,
// stack traces lifted from cockroachdb/errors) and a zerolog console writer
// for interactive runs. Components obtain a named logger from the active
// provider:
//
//	logger := log.GetLoggerWithName("gbm.trainer").With(
//	    log.ModelKeyKey, "GBMRegression_30_10",
//	)
//	logger.Info("Training started",
//	    log.OperationKey, log.OperationTrain,
//	    log.SamplesKey, 1000,
//	)
package log

import (
	"context"
	"fmt"
	"strings"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are alternating key/value pairs. Error additionally accepts an
// error as its first field; backends attach that error under ErrAttrKey
// together with its stack trace.
type Logger interface {
	// Debug logs a debug-level message with optional structured fields.
	Debug(msg string, fields ...any)

	// Info logs an info-level message with optional structured fields.
	Info(msg string, fields ...any)

	// Warn logs a warning-level message with optional structured fields.
	Warn(msg string, fields ...any)

	// Error logs an error-level message with optional structured fields.
	//
	//	logger.Error("Error training model",
	//	    err,
	//	    log.ModelKeyKey, key,
	//	)
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits log records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4 // Detailed diagnostic information
	LevelInfo  Level = 0  // General operational information
	LevelWarn  Level = 4  // Warning conditions
	LevelError Level = 8  // Error conditions
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps "debug", "info", "warn" and "error" (any case) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %s", s)
	}
}

// LoggerProvider creates and configures loggers. The active provider is
// installed with SetProvider.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum log level for all loggers created by this provider.
	SetLevel(level Level)
}
