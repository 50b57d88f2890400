// Package jobs defines the asynq task types and the worker that processes
// them. Notification delivery runs here, outside any workflow transaction.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for workflow notification emails.
	TaskTypeSendEmail = "notify:email"
	// TaskTypeIdempotencyCleanup prunes expired idempotency keys.
	TaskTypeIdempotencyCleanup = "maintenance:idempotency-cleanup"
)

// SendEmailPayload describes one notification email.
type SendEmailPayload struct {
	To           string `json:"to"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	RelatedModel string `json:"related_model,omitempty"`
	RelatedID    string `json:"related_id,omitempty"`
}

// NewSendEmailTask constructs an asynq task for one recipient.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// EmailSender delivers one message. The SMTP implementation lives behind
// this interface; delivery is out of scope for the engine itself.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewSendEmailHandler returns the handler processing TaskTypeSendEmail.
func NewSendEmailHandler(sender EmailSender, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if err := sender.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
			logger.Warn("send notification email",
				slog.String("to", payload.To),
				slog.String("related_model", payload.RelatedModel),
				slog.String("related_id", payload.RelatedID),
				slog.Any("error", err))
			return err
		}
		return nil
	}
}

// NewIdempotencyCleanupTask constructs the maintenance task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeIdempotencyCleanup, nil, asynq.Queue(QueueDefault))
}
