// Package worker holds the three background loops that drive the queue:
// execution, schedule firing, and cleanup. Each wraps base with its own
// per-tick work function.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// base runs work on a fixed interval until Stop is called, running one
// pass immediately on Start rather than waiting out the first tick.
// Stop blocks until the in-flight pass (if any) returns, so a caller can
// rely on the worker being fully quiesced once Stop returns.
type base struct {
	name     string
	interval time.Duration
	logger   *slog.Logger
	work     func(ctx context.Context)

	cancel context.CancelFunc
	done   chan struct{}
}

func newBase(name string, interval time.Duration, logger *slog.Logger, work func(ctx context.Context)) *base {
	return &base{
		name:     name,
		interval: interval,
		logger:   logger.With("component", name),
		work:     work,
	}
}

func (b *base) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.loop(ctx)
}

func (b *base) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
}

func (b *base) loop(ctx context.Context) {
	defer close(b.done)
	b.logger.Info("worker started", "interval", b.interval)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		b.work(ctx)
		select {
		case <-ctx.Done():
			b.logger.Info("worker shut down")
			return
		case <-ticker.C:
		}
	}
}
