package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nilcoder/taskq/internal/domain"
	"github.com/nilcoder/taskq/internal/execid"
	"github.com/nilcoder/taskq/internal/metrics"
	"github.com/nilcoder/taskq/internal/service"
)

// ScheduleWorker fires due schedules sequentially. Firing is a small
// transaction, so unlike ExecutionWorker it needs no goroutine pool of
// its own.
type ScheduleWorker struct {
	*base

	scheduleService *service.ScheduleService
}

func NewScheduleWorker(interval time.Duration, scheduleService *service.ScheduleService, logger *slog.Logger) *ScheduleWorker {
	w := &ScheduleWorker{scheduleService: scheduleService}
	w.base = newBase("schedule_worker", interval, logger, w.work)
	metrics.WorkerStartTime.WithLabelValues("schedule_worker").SetToCurrentTime()
	return w
}

func (w *ScheduleWorker) work(ctx context.Context) {
	for {
		schedules, err := w.scheduleService.FireableSchedules(ctx)
		if err != nil {
			w.logger.Error("list fireable schedules", "error", err)
			return
		}
		if len(schedules) == 0 || ctx.Err() != nil {
			return
		}
		for _, s := range schedules {
			w.fireSchedule(ctx, s.ID)
		}
	}
}

func (w *ScheduleWorker) fireSchedule(ctx context.Context, scheduleID string) {
	ctx = execid.Into(ctx, execid.New())

	w.logger.DebugContext(ctx, "firing schedule", "schedule_id", scheduleID)
	schedule, err := w.scheduleService.FireSchedule(ctx, scheduleID)
	switch {
	case err == nil:
		last := schedule.LastFiring()
		outcome := "success"
		if last.Error != nil {
			outcome = "retry"
		}
		metrics.SchedulesFiredTotal.WithLabelValues(outcome).Inc()
		if last.Duration() != nil {
			metrics.ScheduleFiringDuration.Observe(last.Duration().Seconds())
		}
		w.logger.InfoContext(ctx, "fired schedule", "schedule_id", schedule.ID, "duration", last.Duration(), "error", last.Error)
	case errors.Is(err, domain.ErrScheduleNotFound),
		errors.Is(err, domain.ErrScheduleNotEnabled),
		errors.Is(err, domain.ErrScheduleNotReady),
		errors.Is(err, domain.ErrScheduleUpdatedConcurrently),
		errors.Is(err, domain.ErrScheduleFiringNotEnded),
		errors.Is(err, domain.ErrScheduleFiringAlreadyEnded),
		errors.Is(err, domain.ErrScheduleFiringNotBegun):
		w.logger.DebugContext(ctx, "failed to fire schedule", "schedule_id", scheduleID, "error", err)
	default:
		metrics.SchedulesFiredTotal.WithLabelValues("error").Inc()
		w.logger.ErrorContext(ctx, "failed to fire schedule", "schedule_id", scheduleID, "error", err)
	}
}
