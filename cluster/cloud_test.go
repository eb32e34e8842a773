package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/mannetroll/analysis/pkg/errors"
	"github.com/mannetroll/analysis/pkg/log"
)

func newTestCloud(t *testing.T) (*Cloud, *log.TestLogger) {
	t.Helper()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	return New(Options{Name: "test-cloud", Logger: logger}), logger
}

func TestStartIsIdempotent(t *testing.T) {
	c, logger := newTestCloud(t)
	ctx := context.Background()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1 after two starts", c.Size())
	}
	if c.State() != StateRunning {
		t.Errorf("State() = %v, want running", c.State())
	}

	started := 0
	for _, m := range logger.Messages() {
		if m == "Cloud started" {
			started++
		}
	}
	if started != 1 {
		t.Errorf("expected one start log line, got %d", started)
	}
}

func TestStartGeneratesName(t *testing.T) {
	c := New(Options{Logger: log.NewNopLogger()})
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.Name() == "" {
		t.Error("Start should generate a cloud name")
	}
}

func TestWaitForCloudSize(t *testing.T) {
	c, _ := newTestCloud(t)
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	c.Store().Put(MakeKey("preloaded"), 1)

	tests := []struct {
		name string
		n    int
	}{
		{name: "size one", n: 1},
		{name: "clamped to one", n: 0},
		{name: "negative clamped", n: -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.WaitForCloudSize(ctx, tt.n, time.Second); err != nil {
				t.Fatalf("WaitForCloudSize(%d) error = %v", tt.n, err)
			}
		})
	}
	if c.InitialKeyCount() != 1 {
		t.Errorf("InitialKeyCount() = %d, want 1", c.InitialKeyCount())
	}
}

func TestWaitForCloudSizeWakesOnJoin(t *testing.T) {
	c, _ := newTestCloud(t)
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		c.Join(Node{Name: "second"})
	}()

	if err := c.WaitForCloudSize(ctx, 2, 5*time.Second); err != nil {
		t.Fatalf("WaitForCloudSize(2) error = %v", err)
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestWaitForCloudSizeTimeout(t *testing.T) {
	c, logger := newTestCloud(t)
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	err := c.WaitForCloudSize(ctx, 3, 30*time.Millisecond)
	var timeoutErr *errors.CloudTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected CloudTimeoutError, got %v", err)
	}
	if timeoutErr.Want != 3 || timeoutErr.Got != 1 {
		t.Errorf("CloudTimeoutError = %+v", timeoutErr)
	}
	if !logger.ContainsField(log.ErrorCodeKey, log.ErrorCloudTimeout) {
		t.Error("timeout should be logged with its error code")
	}
}

func TestWaitForCloudSizeContextCancel(t *testing.T) {
	c, _ := newTestCloud(t)
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.WaitForCloudSize(ctx, 2, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStartServingREST(t *testing.T) {
	c, _ := newTestCloud(t)
	ctx := context.Background()

	if err := c.StartServingREST(""); err == nil {
		t.Fatal("StartServingREST before Start should fail")
	}
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartServingREST(""); err != nil {
		t.Fatalf("StartServingREST() error = %v", err)
	}
	if !c.RESTReady() || c.State() != StateReady {
		t.Errorf("REST should be ready, state = %v", c.State())
	}
	if c.RESTAddr() != "" {
		t.Errorf("RESTAddr() = %q, want empty without an address", c.RESTAddr())
	}
}

func TestStartServingRESTBindsAddress(t *testing.T) {
	c, _ := newTestCloud(t)
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartServingREST("127.0.0.1:0"); err != nil {
		t.Fatalf("StartServingREST() error = %v", err)
	}
	if c.RESTAddr() == "" {
		t.Fatal("RESTAddr() should report the bound address")
	}
	if code := c.Shutdown(ctx, 0); code != 0 {
		t.Errorf("Shutdown() = %d, want 0", code)
	}
}

func TestShutdown(t *testing.T) {
	c, _ := newTestCloud(t)
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	c.Store().Put(MakeKey("frame"), "value")

	if code := c.Shutdown(ctx, 3); code != 3 {
		t.Errorf("Shutdown() = %d, want 3", code)
	}
	if c.State() != StateShutdown {
		t.Errorf("State() = %v, want shutdown", c.State())
	}
	if c.Store().Size() != 0 {
		t.Error("Shutdown should clear the store")
	}
	if err := c.Start(ctx); !errors.Is(err, errors.ErrCloudShutdown) {
		t.Errorf("Start after Shutdown error = %v, want ErrCloudShutdown", err)
	}
	if err := c.WaitForCloudSize(ctx, 1, time.Second); !errors.Is(err, errors.ErrCloudShutdown) {
		t.Errorf("WaitForCloudSize after Shutdown error = %v", err)
	}
	// second shutdown is a no-op
	if code := c.Shutdown(ctx, 0); code != 0 {
		t.Errorf("second Shutdown() = %d", code)
	}
}
