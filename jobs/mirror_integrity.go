package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/malimina/internal/jobs"
	"github.com/odyssey-erp/malimina/internal/shared"
)

const defaultSweepLimit = 100

// MirrorRepairer is the credit engine surface used by the integrity jobs.
type MirrorRepairer interface {
	EnsureMirror(ctx context.Context, creditID uuid.UUID) (bool, error)
	ListMissingMirrors(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// MirrorJob repairs paid credits whose Master mirror entry is missing.
type MirrorJob struct {
	Repairer MirrorRepairer
	Enqueuer Enqueuer
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	MaxRetry int

	retries func(ctx context.Context) (retried, max int)
}

// NewMirrorJob initialises the mirror integrity handlers.
func NewMirrorJob(repairer MirrorRepairer, enqueuer Enqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics, maxRetry int) *MirrorJob {
	return &MirrorJob{
		Repairer: repairer,
		Enqueuer: enqueuer,
		Logger:   logger,
		Metrics:  metrics,
		MaxRetry: maxRetry,
	}
}

// HandleRepair executes TaskCreditMirror for a single credit.
func (j *MirrorJob) HandleRepair(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Repairer == nil {
		return errors.New("credit mirror: handler not configured")
	}
	var payload MirrorPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.CreditID == uuid.Nil {
		return fmt.Errorf("credit mirror: invalid payload: %w", asynq.SkipRetry)
	}
	logger := j.logger().With(slog.String("credit_id", payload.CreditID.String()))
	tracker := j.Metrics.Track(TaskCreditMirror)

	written, err := j.Repairer.EnsureMirror(ctx, payload.CreditID)
	switch {
	case err == nil:
		if written {
			logger.Warn("mirror entry repaired")
		}
		return tracker.End(nil)
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrStateConflict):
		logger.Warn("mirror repair dropped", slog.Any("error", err))
		return tracker.End(nil)
	}

	retried, max := j.retryInfo(ctx)
	if retried >= max {
		j.Metrics.Escalate(TaskCreditMirror)
		logger.Error("mirror repair exhausted, archiving", slog.Int("attempts", retried+1), slog.Any("error", err))
	} else {
		logger.Warn("mirror repair failed", slog.Int("attempt", retried+1), slog.Any("error", err))
	}
	return tracker.End(err)
}

// HandleSweep executes TaskCreditMirrorSweep, enqueueing one repair per credit.
func (j *MirrorJob) HandleSweep(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Repairer == nil || j.Enqueuer == nil {
		return errors.New("credit mirror sweep: handler not configured")
	}
	var payload SweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("credit mirror sweep: invalid payload: %w", asynq.SkipRetry)
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultSweepLimit
	}
	tracker := j.Metrics.Track(TaskCreditMirrorSweep)

	ids, err := j.Repairer.ListMissingMirrors(ctx, payload.Limit)
	if err != nil {
		return tracker.End(err)
	}
	enqueued := 0
	for _, id := range ids {
		task, err := NewCreditMirrorTask(id)
		if err != nil {
			return tracker.End(err)
		}
		_, err = j.Enqueuer.EnqueueContext(ctx, task,
			asynq.Queue(QueueCritical),
			asynq.MaxRetry(j.MaxRetry),
			asynq.TaskID(mirrorTaskID(id)),
		)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			continue
		}
		if err != nil {
			return tracker.End(fmt.Errorf("credit mirror sweep: enqueue %s: %w", id, err))
		}
		enqueued++
	}
	j.Metrics.AddProcessed(TaskCreditMirrorSweep, enqueued)
	if len(ids) > 0 {
		j.logger().Warn("paid credits missing mirror", slog.Int("found", len(ids)), slog.Int("enqueued", enqueued))
	}
	return tracker.End(nil)
}

func (j *MirrorJob) retryInfo(ctx context.Context) (int, int) {
	if j.retries != nil {
		return j.retries(ctx)
	}
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return 0, 0
	}
	max, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return retried, j.MaxRetry
	}
	return retried, max
}

func (j *MirrorJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
