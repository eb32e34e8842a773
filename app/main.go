package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mannetroll/analysis/cluster"
	"github.com/mannetroll/analysis/config"
	"github.com/mannetroll/analysis/pkg/log"
)

const shutdownTimeout = 5 * time.Second

// Main is the body of a training program and returns its exit code.
// Configuration, ingestion, training and export failures exit 0 after
// logging; a cloud that fails to come up exits 1.
func Main(v config.Variant, argv []string) int {
	return mainTo(v, argv, os.Stdout)
}

func mainTo(v config.Variant, argv []string, stdout io.Writer) int {
	cfg, err := config.FromArgs(v, argv)
	if err != nil {
		if config.IsHelp(err) {
			config.WriteHelp(v, stdout)
			return 0
		}
		logger := log.GetLoggerWithName(v.Program)
		logger.Error("Invalid configuration", err)
		logger.Info("Done!")
		return 0
	}

	if err := log.SetupLoggerTo(stdout, cfg.LogLevel, cfg.LogFormat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := log.GetLoggerWithName(v.Program)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cloud := cluster.New(cluster.Options{})
	code := 0
	if _, err := Run(ctx, cloud, cfg, logger); err != nil {
		logger.Error("Cloud bootstrap failed", err)
		code = 1
	}
	logger.Info("Done!")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return cloud.Shutdown(shutdownCtx, code)
}
