package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/windward-ops/windward/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeAuditRecord is the task type for persisting audit events.
	TaskTypeAuditRecord = "audit:record"
)

// NewAuditRecordTask constructs an Asynq task carrying one audit event.
func NewAuditRecordTask(event audit.Event) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditRecord, data), nil
}

// AuditSink persists audit events on the worker side.
type AuditSink interface {
	Record(ctx context.Context, event audit.Event) error
}

// AuditJob handles TaskTypeAuditRecord tasks.
type AuditJob struct {
	sink   AuditSink
	logger *slog.Logger
}

// NewAuditJob constructs the audit task handler.
func NewAuditJob(sink AuditSink, logger *slog.Logger) *AuditJob {
	return &AuditJob{sink: sink, logger: logger}
}

// Handle processes one audit record task.
func (j *AuditJob) Handle(ctx context.Context, t *asynq.Task) error {
	var event audit.Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return asynq.SkipRetry
	}
	if err := j.sink.Record(ctx, event); err != nil {
		if j.logger != nil {
			j.logger.Error("persist audit event", slog.String("event_id", event.ID), slog.Any("error", err))
		}
		return err
	}
	return nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt, logger *slog.Logger) *Client {
	return &Client{client: asynq.NewClient(redisOpts), logger: logger}
}

// Record enqueues an audit event. Enqueue failures are logged and swallowed:
// the audit sink is fire-and-forget and must never fail the triggering
// operation.
func (c *Client) Record(ctx context.Context, event audit.Event) {
	if c == nil || c.client == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	task, err := NewAuditRecordTask(event)
	if err != nil {
		c.warn("build audit task", err)
		return
	}
	if _, err := c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(5)); err != nil {
		c.warn("enqueue audit task", err)
	}
}

func (c *Client) warn(msg string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, slog.Any("error", err))
	}
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
