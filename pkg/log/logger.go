package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Output formats accepted by SetupLogger.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// SetupLogger configures the process-wide logging for a CLI run.
//
// The "json" format installs a slog JSON handler on os.Stdout with Cloud
// Logging field names and also makes it the slog default; "console" installs
// a zerolog console writer on os.Stderr. Either way the chosen backend
// becomes the active provider and receives library warnings.
func SetupLogger(loglevel, format string) error {
	return SetupLoggerTo(os.Stdout, loglevel, format)
}

// SetupLoggerTo is SetupLogger with an explicit destination.
func SetupLoggerTo(w io.Writer, loglevel, format string) error {
	level, err := ToLogLevel(loglevel)
	if err != nil {
		return err
	}
	switch strings.ToLower(format) {
	case FormatJSON, "":
		levelVar := new(slog.LevelVar)
		levelVar.Set(level)
		handler := NewCloudLoggingHandler(w, levelVar)
		slog.SetDefault(slog.New(handler))
		SetProvider(NewSlogProvider(handler, levelVar))
	case FormatConsole:
		SetProvider(NewZerologProvider(w, fromSlogLevel(level), true))
	default:
		return fmt.Errorf("invalid log format: %s", format)
	}
	return nil
}

// NewCloudLoggingHandler returns a JSON handler that writes "severity",
// "message" and "logging.googleapis.com/sourceLocation" keys and lifts
// error stack traces.
func NewCloudLoggingHandler(w io.Writer, level slog.Leveler) slog.Handler {
	ops := slog.HandlerOptions{
		AddSource: true,
		Level:     level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				attr = slog.Attr{
					Key:   "severity",
					Value: attr.Value,
				}
			case slog.MessageKey:
				attr = slog.Attr{
					Key:   "message",
					Value: attr.Value,
				}
			case slog.SourceKey:
				attr = slog.Attr{
					Key:   "logging.googleapis.com/sourceLocation",
					Value: attr.Value,
				}
			}
			return attr
		},
	}
	return WrapByErrFmtHandler(slog.NewJSONHandler(w, &ops))
}

// ToLogLevel converts a level name to a slog.Level.
func ToLogLevel(level string) (slog.Level, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return slog.LevelInfo, err
	}
	return slog.Level(l), nil
}

func fromSlogLevel(l slog.Level) Level {
	return Level(l)
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}
