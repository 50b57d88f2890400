package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs. OldData/NewData carry
// before/after snapshots of the mutated row where the caller has them.
type AuditLog struct {
	ActorID     string
	Action      string
	Model       string
	RecordID    string
	OldData     map[string]any
	NewData     map[string]any
	Description string
	At          time.Time
}

// AuditLogger writes records into audit_logs. Recording is write-once and
// best-effort from the engine's perspective: callers log failures and move
// on, a committed transition is never rolled back over an audit miss.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Model == "" || log.RecordID == "" {
		return errors.New("audit log requires action/model/record_id")
	}
	oldJSON, err := json.Marshal(log.OldData)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(log.NewData)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, model, record_id, old_data, new_data, description, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		log.ActorID, log.Action, log.Model, log.RecordID, oldJSON, newJSON, log.Description, log.At)
	return err
}
