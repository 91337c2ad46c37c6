package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/malimina/internal/finance/credit"
	jobmetrics "github.com/odyssey-erp/malimina/internal/jobs"
)

// Enqueuer is the subset of asynq.Client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier publishes credit events onto the queue.
type Notifier struct {
	enqueuer Enqueuer
	maxRetry int
}

// NewNotifier constructs a Notifier.
func NewNotifier(enqueuer Enqueuer, maxRetry int) *Notifier {
	return &Notifier{enqueuer: enqueuer, maxRetry: maxRetry}
}

// Notify enqueues the event for delivery.
func (n *Notifier) Notify(ctx context.Context, event credit.Event) error {
	if n == nil || n.enqueuer == nil {
		return errors.New("notifier: enqueuer not configured")
	}
	task, err := NewCreditNotifyTask(event)
	if err != nil {
		return err
	}
	if _, err := n.enqueuer.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(n.maxRetry)); err != nil {
		return fmt.Errorf("notifier: enqueue %s: %w", event.Type, err)
	}
	return nil
}

// Sink delivers a credit event to its recipients.
type Sink interface {
	Deliver(ctx context.Context, event credit.Event) error
}

// LogSink records events in the structured log.
type LogSink struct {
	Logger *slog.Logger
}

// Deliver implements Sink.
func (s LogSink) Deliver(_ context.Context, event credit.Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("credit event",
		slog.String("type", string(event.Type)),
		slog.String("credit_id", event.CreditID.String()),
		slog.String("account_id", event.AccountID.String()),
		slog.String("amount", event.Amount.StringFixed(2)),
	)
	return nil
}

// NotifyJob handles TaskCreditNotify.
type NotifyJob struct {
	Sink    Sink
	Metrics *jobmetrics.Metrics
}

// Handle decodes the event and hands it to the sink.
func (j *NotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sink == nil {
		return errors.New("credit notify: handler not configured")
	}
	var event credit.Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("credit notify: decode: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskCreditNotify)
	return tracker.End(j.Sink.Deliver(ctx, event))
}
