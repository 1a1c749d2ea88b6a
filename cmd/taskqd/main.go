package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nilcoder/taskq"
	"github.com/nilcoder/taskq/config"
	"github.com/nilcoder/taskq/internal/health"
	ctxlog "github.com/nilcoder/taskq/internal/log"
	"github.com/nilcoder/taskq/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	q, err := taskq.Open(ctx, cfg.DatabasePath, taskq.Options{
		TaskHandler:             noopHandler,
		ExecutionWorkerInterval: time.Duration(cfg.ExecutionWorkerIntervalSec) * time.Second,
		ExecutionWorkerThreads:  cfg.ExecutionWorkerThreads,
		ScheduleWorkerInterval:  time.Duration(cfg.ScheduleWorkerIntervalSec) * time.Second,
		CleanupWorkerInterval:   time.Duration(cfg.CleanupWorkerIntervalSec) * time.Second,
		CleanupPolicy: taskq.CleanupPolicy{
			DeleteSucceededAfter: time.Duration(cfg.DeleteSucceededAfterSec) * time.Second,
			DeleteFailedAfter:    time.Duration(cfg.DeleteFailedAfterSec) * time.Second,
		},
		Logger:            logger,
		MetricsRegisterer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		stop()
		log.Fatalf("open queue: %v", err)
	}

	logger.Info("database opened", "path", cfg.DatabasePath)

	checker := health.NewChecker(q.ReadPool(), q.AsyncWritePool(), q.SyncWritePool(), logger, prometheus.DefaultRegisterer)

	q.Start()

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, prometheus.DefaultGatherer, checker)
	go func() {
		logger.Info("metrics server started", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("shutting down")
	q.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	if err := q.Close(); err != nil {
		logger.Error("close database", "error", err)
	}

	logger.Info("taskqd shut down")
}

// noopHandler is the default handler for the standalone daemon; embedders
// call taskq.Open directly with their own TaskHandler instead of running
// this binary.
func noopHandler(_ context.Context, task *taskq.Task) error {
	slog.Default().Warn("no task handler configured", "task_id", task.ID)
	return nil
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.WithExecID(inner))
}
