// Package notify dispatches workflow notifications. Dispatch is
// best-effort and happens after the owning transaction commits: a failed
// enqueue is logged, never surfaced to the transition's caller.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/freightbill/freightbill/internal/workflow"
	"github.com/freightbill/freightbill/jobs"
)

// Event is a structured notification request from the workflow engine.
type Event struct {
	Title        string
	Body         string
	RelatedModel string
	RelatedID    string
	Roles        []workflow.Role // resolved to recipient emails
	Vendors      []uuid.UUID     // resolved to the vendor's registered emails
	Emails       []string        // direct recipients
}

// DeliveryResult reports the enqueue outcome per recipient.
type DeliveryResult struct {
	Recipient string
	Err       error
}

// RecipientDirectory resolves a role to the emails of its actors. User
// management is an external collaborator; only this lookup crosses the
// boundary.
type RecipientDirectory interface {
	EmailsForRole(ctx context.Context, role workflow.Role) ([]string, error)
	EmailsForVendor(ctx context.Context, vendorID uuid.UUID) ([]string, error)
}

// TaskEnqueuer matches asynq.Client's Enqueue method.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher fans an event out to one email task per recipient. The
// engine does not retry failed recipients; asynq retries delivery of
// successfully enqueued tasks.
type Dispatcher struct {
	enqueuer  TaskEnqueuer
	directory RecipientDirectory
	logger    *slog.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(enqueuer TaskEnqueuer, directory RecipientDirectory, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{enqueuer: enqueuer, directory: directory, logger: logger}
}

// Notify enqueues the event for every resolved recipient and returns the
// per-recipient outcome. It never returns an error: notification failure
// must not fail the parent transition.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) []DeliveryResult {
	recipients := append([]string(nil), ev.Emails...)
	for _, role := range ev.Roles {
		emails, err := d.directory.EmailsForRole(ctx, role)
		if err != nil {
			d.logger.Warn("resolve notification recipients",
				slog.String("role", string(role)),
				slog.Any("error", err))
			continue
		}
		recipients = append(recipients, emails...)
	}
	for _, vendorID := range ev.Vendors {
		emails, err := d.directory.EmailsForVendor(ctx, vendorID)
		if err != nil {
			d.logger.Warn("resolve vendor recipients",
				slog.String("vendor_id", vendorID.String()),
				slog.Any("error", err))
			continue
		}
		recipients = append(recipients, emails...)
	}

	results := make([]DeliveryResult, 0, len(recipients))
	for _, to := range dedupe(recipients) {
		task, err := jobs.NewSendEmailTask(jobs.SendEmailPayload{
			To:           to,
			Subject:      ev.Title,
			Body:         ev.Body,
			RelatedModel: ev.RelatedModel,
			RelatedID:    ev.RelatedID,
		})
		if err == nil {
			_, err = d.enqueuer.EnqueueContext(ctx, task)
		}
		if err != nil {
			d.logger.Warn("enqueue notification",
				slog.String("to", to),
				slog.String("related_model", ev.RelatedModel),
				slog.String("related_id", ev.RelatedID),
				slog.Any("error", err))
		}
		results = append(results, DeliveryResult{Recipient: to, Err: err})
	}
	return results
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

var inr = message.NewPrinter(language.MustParse("en-IN"))

// FormatINR renders a money amount with Indian digit grouping for
// notification bodies.
func FormatINR(amount float64) string {
	return inr.Sprintf("₹%.2f", amount)
}
