package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	mlerrors "github.com/mannetroll/analysis/pkg/errors"
)

var (
	providerMu sync.RWMutex
	provider   LoggerProvider = newDefaultProvider()
)

func newDefaultProvider() LoggerProvider {
	levelVar := new(slog.LevelVar)
	handler := WrapByErrFmtHandler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	return NewSlogProvider(handler, levelVar)
}

// SetProvider installs p as the active provider and routes library
// warnings to it.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	provider = p
	providerMu.Unlock()

	warnLogger := p.GetLoggerWithName("warnings")
	mlerrors.SetWarningHandler(func(w error) {
		warnLogger.Warn(w.Error(), "warning", w)
	})
	if _, ok := p.(*ZerologProvider); ok {
		mlerrors.SetZerologWarnFunc(func(w error) {
			warnLogger.Warn(w.Error(), "warning", w)
		})
	} else {
		mlerrors.SetZerologWarnFunc(nil)
	}
}

// GetProvider returns the active provider.
func GetProvider() LoggerProvider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider
}

// GetLogger returns the default logger of the active provider.
func GetLogger() Logger {
	return GetProvider().GetLogger()
}

// GetLoggerWithName returns a component logger from the active provider.
func GetLoggerWithName(name string) Logger {
	return GetProvider().GetLoggerWithName(name)
}

// ===========================================================================
// slog backend
// ===========================================================================

// SlogProvider hands out loggers backed by a slog.Handler.
type SlogProvider struct {
	handler slog.Handler
	level   *slog.LevelVar
}

// NewSlogProvider creates a provider; level must be the LevelVar the
// handler was configured with for SetLevel to take effect.
func NewSlogProvider(handler slog.Handler, level *slog.LevelVar) *SlogProvider {
	if level == nil {
		level = new(slog.LevelVar)
	}
	return &SlogProvider{handler: handler, level: level}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *SlogProvider) GetLogger() Logger {
	return &slogLogger{l: slog.New(p.handler)}
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *SlogProvider) GetLoggerWithName(name string) Logger {
	return &slogLogger{l: slog.New(p.handler).With(ComponentKey, name)}
}

// SetLevel implements LoggerProvider.SetLevel.
func (p *SlogProvider) SetLevel(level Level) {
	p.level.Set(slog.Level(level))
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, fields ...any) { s.l.Debug(msg, slogArgs(fields)...) }
func (s *slogLogger) Info(msg string, fields ...any)  { s.l.Info(msg, slogArgs(fields)...) }
func (s *slogLogger) Warn(msg string, fields ...any)  { s.l.Warn(msg, slogArgs(fields)...) }
func (s *slogLogger) Error(msg string, fields ...any) { s.l.Error(msg, slogArgs(fields)...) }

func (s *slogLogger) With(fields ...any) Logger {
	return &slogLogger{l: s.l.With(slogArgs(fields)...)}
}

func (s *slogLogger) Enabled(ctx context.Context, level Level) bool {
	return s.l.Enabled(ctx, slog.Level(level))
}

// slogArgs turns a leading error into ErrAttr so ErrFmtHandler sees it.
func slogArgs(fields []any) []any {
	if len(fields) == 0 {
		return fields
	}
	if err, ok := fields[0].(error); ok {
		out := make([]any, 0, len(fields))
		out = append(out, ErrAttr(err))
		return append(out, fields[1:]...)
	}
	return fields
}

// ===========================================================================
// zerolog backend
// ===========================================================================

// ZerologProvider hands out loggers backed by rs/zerolog.
type ZerologProvider struct {
	mu   sync.RWMutex
	base zerolog.Logger
}

// NewZerologProvider creates a provider writing to w. With console set the
// output is the human readable zerolog.ConsoleWriter, otherwise JSON lines.
func NewZerologProvider(w io.Writer, level Level, console bool) *ZerologProvider {
	if console {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
	}
	base := zerolog.New(w).With().Timestamp().Logger().Level(toZerologLevel(level))
	return &ZerologProvider{base: base}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *ZerologProvider) GetLogger() Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &zerologLogger{zl: p.base}
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &zerologLogger{zl: p.base.With().Str(ComponentKey, name).Logger()}
}

// SetLevel implements LoggerProvider.SetLevel. Loggers handed out earlier
// keep their level.
func (p *ZerologProvider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = p.base.Level(toZerologLevel(level))
}

type zerologLogger struct {
	zl zerolog.Logger
}

func (z *zerologLogger) Debug(msg string, fields ...any) { emit(z.zl.Debug(), msg, fields) }
func (z *zerologLogger) Info(msg string, fields ...any)  { emit(z.zl.Info(), msg, fields) }
func (z *zerologLogger) Warn(msg string, fields ...any)  { emit(z.zl.Warn(), msg, fields) }
func (z *zerologLogger) Error(msg string, fields ...any) { emit(z.zl.Error(), msg, fields) }

func (z *zerologLogger) With(fields ...any) Logger {
	ctx := z.zl.With()
	for i := 0; i+1 < len(fields); i += 2 {
		ctx = ctx.Interface(fmt.Sprint(fields[i]), fields[i+1])
	}
	return &zerologLogger{zl: ctx.Logger()}
}

func (z *zerologLogger) Enabled(ctx context.Context, level Level) bool {
	return toZerologLevel(level) >= z.zl.GetLevel()
}

func emit(ev *zerolog.Event, msg string, fields []any) {
	if ev == nil {
		return
	}
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			appendField(ev, ErrAttrKey, err)
			fields = fields[1:]
		}
	}
	for i := 0; i+1 < len(fields); i += 2 {
		appendField(ev, fmt.Sprint(fields[i]), fields[i+1])
	}
	ev.Msg(msg)
}

func appendField(ev *zerolog.Event, key string, value any) {
	switch v := value.(type) {
	case error:
		ev.AnErr(key, v)
		var m zerolog.LogObjectMarshaler
		if errors.As(v, &m) {
			ev.Object(key+"_detail", m)
		}
	case zerolog.LogObjectMarshaler:
		ev.Object(key, v)
	case string:
		ev.Str(key, v)
	case int:
		ev.Int(key, v)
	case int64:
		ev.Int64(key, v)
	case float64:
		ev.Float64(key, v)
	case bool:
		ev.Bool(key, v)
	case time.Duration:
		ev.Dur(key, v)
	case []string:
		ev.Strs(key, v)
	default:
		ev.Interface(key, v)
	}
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)                 {}
func (nopLogger) Info(string, ...any)                  {}
func (nopLogger) Warn(string, ...any)                  {}
func (nopLogger) Error(string, ...any)                 {}
func (n nopLogger) With(...any) Logger                 { return n }
func (nopLogger) Enabled(context.Context, Level) bool { return false }
