package log

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"

	mlerrors "github.com/mannetroll/analysis/pkg/errors"
)

// ErrFmtHandler decorates records that carry an error under ErrAttrKey.
// It adds the cockroachdb/errors stack trace and, for the typed errors of
// pkg/errors, an ErrorCodeKey attribute unless the caller already set one.
type ErrFmtHandler struct {
	handler slog.Handler
}

// WrapByErrFmtHandler wraps handler with an ErrFmtHandler.
func WrapByErrFmtHandler(handler slog.Handler) slog.Handler {
	return &ErrFmtHandler{handler: handler}
}

func (eh *ErrFmtHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return eh.handler.Enabled(ctx, l)
}

func (eh *ErrFmtHandler) Handle(ctx context.Context, r slog.Record) error {
	var logged error
	hasCode := false
	r.Attrs(func(attr slog.Attr) bool {
		switch attr.Key {
		case ErrAttrKey:
			if err, ok := attr.Value.Any().(error); ok {
				logged = err
			}
		case ErrorCodeKey:
			hasCode = true
		}
		return true
	})
	if logged == nil {
		return eh.handler.Handle(ctx, r)
	}

	if st := extractStacktrace(logged); st != "" {
		r.AddAttrs(slog.String(StacktraceAttrKey, st))
	}
	if !hasCode {
		if code := errorCode(logged); code != "" {
			r.AddAttrs(slog.String(ErrorCodeKey, code))
		}
	}
	return eh.handler.Handle(ctx, r)
}

func (eh *ErrFmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithAttrs(attrs)}
}

func (eh *ErrFmtHandler) WithGroup(g string) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithGroup(g)}
}

// extractStacktrace prefers the safe details recorded by errors.WithStack
// and falls back to the verbose %+v rendering.
func extractStacktrace(err error) string {
	if details := errors.GetSafeDetails(err).SafeDetails; len(details) > 0 {
		return details[0]
	}
	if errors.GetReportableStackTrace(err) != nil {
		return fmt.Sprintf("%+v", err)
	}
	return ""
}

func errorCode(err error) string {
	var (
		ingest   *mlerrors.IngestError
		timeout  *mlerrors.CloudTimeoutError
		invalid  *mlerrors.ValidationError
		panicked *mlerrors.PanicError
		unfit    *mlerrors.NotFittedError
	)
	switch {
	case errors.As(err, &timeout):
		return ErrorCloudTimeout
	case errors.As(err, &ingest):
		return ErrorIngest
	case errors.As(err, &invalid):
		return ErrorConfig
	case errors.As(err, &panicked), errors.As(err, &unfit):
		return ErrorTraining
	}
	return ""
}
