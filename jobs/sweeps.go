package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/malimina/internal/jobs"
)

// OverdueMarker is the credit engine surface used by the overdue sweep.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, after time.Duration) (int, error)
}

// OverdueJob moves approved credits past their window to overdue.
type OverdueJob struct {
	Credits OverdueMarker
	After   time.Duration
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle executes TaskCreditOverdueSweep.
func (j *OverdueJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Credits == nil {
		return errors.New("credit overdue sweep: handler not configured")
	}
	if j.After <= 0 {
		return errors.New("credit overdue sweep: window must be positive")
	}
	tracker := j.Metrics.Track(TaskCreditOverdueSweep)
	moved, err := j.Credits.MarkOverdue(ctx, j.After)
	j.Metrics.AddProcessed(TaskCreditOverdueSweep, moved)
	if err != nil {
		return tracker.End(err)
	}
	if moved > 0 && j.Logger != nil {
		j.Logger.Info("credits marked overdue", slog.Int("count", moved), slog.Duration("after", j.After))
	}
	return tracker.End(nil)
}

// KeyCleaner purges expired idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob handles TaskIdempotencyCleanup.
type IdempotencyCleanupJob struct {
	Keys      KeyCleaner
	Retention time.Duration
	Metrics   *jobmetrics.Metrics
}

// Handle executes the cleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Keys == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	retention := j.Retention
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	return tracker.End(j.Keys.Cleanup(ctx, retention))
}
