package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	mlerrors "github.com/mannetroll/analysis/pkg/errors"
)

// TestLoggerInterface tests the TestLogger implementation of Logger
func TestLoggerInterface(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationParse)
	testLogger.Warn("warning message", ErrorCodeKey, ErrorConfig)
	testLogger.Error("error message", fmt.Errorf("test error"), ErrorCodeKey, ErrorTraining)

	if buffer.String() == "" {
		t.Fatal("Expected log output, got empty string")
	}

	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		if !testLogger.ContainsMessage(msg) {
			t.Errorf("%q not found in output", msg)
		}
	}

	if !testLogger.ContainsField("key1", "value1") {
		t.Error("Expected field key1=value1 not found")
	}
	if !testLogger.ContainsField("number", 42.0) { // JSON numbers are float64
		t.Error("Expected field number=42 not found")
	}
	if !testLogger.ContainsField(ErrAttrKey, "test error") {
		t.Error("Leading error should be recorded under the error key")
	}
	if !testLogger.ContainsField(ErrorCodeKey, ErrorTraining) {
		t.Error("Fields after a leading error should be kept")
	}
}

// TestLoggerWith tests the With method for context-aware logging
func TestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	contextLogger := testLogger.With(
		ModelKeyKey, "GBMRegression_30_10",
		ComponentKey, "gbm.trainer",
	)
	contextLogger.Info("contextual message", OperationKey, OperationTrain)

	if !testLogger.ContainsField(ModelKeyKey, "GBMRegression_30_10") {
		t.Error("Model key context not found")
	}
	if !testLogger.ContainsField(ComponentKey, "gbm.trainer") {
		t.Error("Component context not found")
	}
	if !testLogger.ContainsField(OperationKey, OperationTrain) {
		t.Error("Operation field not found")
	}
}

// TestLoggerEnabled tests the Enabled method and level filtering
func TestLoggerEnabled(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)
	ctx := context.Background()

	if !testLogger.Enabled(ctx, LevelInfo) {
		t.Error("Logger should be enabled for Info level")
	}
	if testLogger.Enabled(ctx, LevelDebug) {
		t.Error("Logger should not be enabled for Debug level")
	}

	testLogger.Debug("this should not appear")
	testLogger.Info("this should appear")

	if testLogger.ContainsMessage("this should not appear") {
		t.Error("Debug message should not appear when level is Info")
	}
	if !testLogger.ContainsMessage("this should appear") {
		t.Error("Info message should appear when level is Info")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: "INFO", want: LevelInfo},
		{in: "", want: LevelInfo},
		{in: "warn", want: LevelWarn},
		{in: "error", want: LevelError},
		{in: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// TestCloudLoggingHandler checks field renaming and stack trace lifting
func TestCloudLoggingHandler(t *testing.T) {
	var buf bytes.Buffer
	provider := NewSlogProvider(NewCloudLoggingHandler(&buf, slog.LevelInfo), nil)
	logger := provider.GetLoggerWithName("export")

	logger.Error("Error exporting model", mlerrors.NewModelError("Export", "write failed", nil))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["severity"] != "ERROR" {
		t.Errorf("severity = %v, want ERROR", entry["severity"])
	}
	if entry["message"] != "Error exporting model" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry[ComponentKey] != "export" {
		t.Errorf("component = %v", entry[ComponentKey])
	}
	if _, ok := entry["logging.googleapis.com/sourceLocation"]; !ok {
		t.Error("source location key missing")
	}
	if s, _ := entry[StacktraceAttrKey].(string); s == "" {
		t.Error("stacktrace attribute missing")
	}
}

// TestErrFmtHandlerErrorCode checks the error code derived from typed errors
func TestErrFmtHandlerErrorCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		fields []any
		want   interface{}
	}{
		{name: "ingest", err: mlerrors.NewIngestError("a.csv", mlerrors.IngestMalformed, nil), want: ErrorIngest},
		{name: "timeout", err: mlerrors.NewCloudTimeoutError(2, 1, 0), want: ErrorCloudTimeout},
		{name: "validation", err: mlerrors.NewValidationError("ntrees", "must be positive", 0), want: ErrorConfig},
		{name: "caller code wins", err: mlerrors.NewValidationError("ntrees", "must be positive", 0),
			fields: []any{ErrorCodeKey, ErrorExport}, want: ErrorExport},
		{name: "plain error", err: fmt.Errorf("boom"), want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewSlogProvider(NewCloudLoggingHandler(&buf, slog.LevelInfo), nil).GetLoggerWithName("test")
			logger.Error("failed", append([]any{tt.err}, tt.fields...)...)

			var entry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("output is not JSON: %v", err)
			}
			if got := entry[ErrorCodeKey]; got != tt.want {
				t.Errorf("%s = %v, want %v", ErrorCodeKey, got, tt.want)
			}
		})
	}
}

// TestZerologProvider checks the zerolog backend including typed error objects
func TestZerologProvider(t *testing.T) {
	var buf bytes.Buffer
	provider := NewZerologProvider(&buf, LevelInfo, false)
	logger := provider.GetLoggerWithName("frame.parser")

	logger.Debug("hidden")
	logger.Error("Error importing file",
		mlerrors.NewIngestError("missing.csv", mlerrors.IngestNotFound, nil),
		PathKey, "missing.csv",
	)

	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, "hidden") {
		t.Error("debug line should be filtered at info level")
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(out), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if entry["level"] != "error" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry[ComponentKey] != "frame.parser" {
		t.Errorf("component = %v", entry[ComponentKey])
	}
	detail, ok := entry[ErrAttrKey+"_detail"].(map[string]interface{})
	if !ok {
		t.Fatalf("typed error detail missing: %s", out)
	}
	if detail["kind"] != "not_found" {
		t.Errorf("detail kind = %v", detail["kind"])
	}

	if !logger.Enabled(context.Background(), LevelWarn) {
		t.Error("warn should be enabled at info level")
	}
	provider.SetLevel(LevelError)
	if provider.GetLogger().Enabled(context.Background(), LevelWarn) {
		t.Error("warn should be disabled after SetLevel(LevelError)")
	}
}

// TestSetProviderRoutesWarnings checks that library warnings reach the active provider
func TestSetProviderRoutesWarnings(t *testing.T) {
	previous := GetProvider()
	defer SetProvider(previous)

	testProvider, _ := NewTestLoggerProvider(LevelDebug)
	SetProvider(testProvider)

	mlerrors.Warn(mlerrors.NewDataConversionWarning("string", "NA", "1 token in column X1"))

	if !testProvider.Logger().ContainsField(ComponentKey, "warnings") {
		t.Error("warning should be logged by the warnings component")
	}
	if !testProvider.Logger().ContainsMessage("data converted from string to NA") {
		t.Error("warning message not found")
	}
}

// TestConcurrentLogging tests thread safety of logging
func TestConcurrentLogging(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)

	numGoroutines := 4
	messagesPerGoroutine := 5
	done := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer func() { done <- true }()
			for j := 0; j < messagesPerGoroutine; j++ {
				testLogger.Info(fmt.Sprintf("goroutine %d message %d", id, j),
					"goroutine_id", id,
				)
			}
		}(i)
	}
	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	entries, err := testLogger.GetLogEntries()
	if err != nil {
		t.Fatalf("Failed to parse log entries: %v", err)
	}
	if len(entries) != numGoroutines*messagesPerGoroutine {
		t.Errorf("Expected %d log entries, got %d", numGoroutines*messagesPerGoroutine, len(entries))
	}
}

func BenchmarkLogging(b *testing.B) {
	testLogger, _ := NewTestLogger(LevelInfo)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		testLogger.Info("benchmark message",
			"iteration", i,
			OperationKey, OperationTrain,
			SamplesKey, 1000,
		)
	}
}
