package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/malimina/internal/finance/credit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries ledger repair work and holds its archived failures.
	QueueCritical = "critical"

	// TaskCreditNotify delivers a committed credit event.
	TaskCreditNotify = "credit:notify"
	// TaskCreditMirror repairs the Master mirror of one paid credit.
	TaskCreditMirror = "credit:mirror"
	// TaskCreditMirrorSweep finds paid credits without a mirror.
	TaskCreditMirrorSweep = "credit:mirror_sweep"
	// TaskCreditOverdueSweep moves stale approved credits to overdue.
	TaskCreditOverdueSweep = "credit:overdue_sweep"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// MirrorPayload identifies the credit whose mirror must exist.
type MirrorPayload struct {
	CreditID uuid.UUID `json:"credit_id"`
}

// SweepPayload bounds a sweep run.
type SweepPayload struct {
	Limit int `json:"limit"`
}

// NewCreditNotifyTask wraps a credit event.
func NewCreditNotifyTask(event credit.Event) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCreditNotify, data), nil
}

// NewCreditMirrorTask builds a per-credit repair task.
func NewCreditMirrorTask(creditID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(MirrorPayload{CreditID: creditID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCreditMirror, data), nil
}

// NewMirrorSweepTask builds the mirror sweep task.
func NewMirrorSweepTask(limit int) (*asynq.Task, error) {
	data, err := json.Marshal(SweepPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCreditMirrorSweep, data), nil
}

// NewOverdueSweepTask builds the overdue sweep task.
func NewOverdueSweepTask() *asynq.Task {
	return asynq.NewTask(TaskCreditOverdueSweep, nil)
}

// NewIdempotencyCleanupTask builds the idempotency cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// mirrorTaskID deduplicates repair tasks for the same credit.
func mirrorTaskID(creditID uuid.UUID) string {
	return TaskCreditMirror + ":" + creditID.String()
}
