package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/freightbill/freightbill/internal/workflow"
)

// Querier is satisfied by both pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Execer is satisfied by both pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AppendHistory inserts one status history row, filling id and timestamp
// when absent. History rows are append-only.
func AppendHistory(ctx context.Context, db Execer, entry workflow.StatusHistoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	_, err := db.Exec(ctx, `INSERT INTO status_history (id, entity_kind, entity_id, from_status, to_status, changed_by, notes, at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.EntityKind, entry.EntityID, entry.FromStatus, entry.ToStatus, entry.ChangedBy, entry.Notes, entry.At)
	return err
}

// CreateRejection inserts one rejection record, filling id and timestamp
// when absent.
func CreateRejection(ctx context.Context, db Execer, rec workflow.RejectionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	_, err := db.Exec(ctx, `INSERT INTO rejection_records (id, entity_kind, entity_id, rejected_by, reason, status, at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.EntityKind, rec.EntityID, rec.RejectedBy, rec.Reason, rec.Status, rec.At)
	return err
}

// ListHistory returns an entity's status history, oldest first.
func ListHistory(ctx context.Context, db Querier, kind workflow.EntityKind, id uuid.UUID) ([]workflow.StatusHistoryEntry, error) {
	rows, err := db.Query(ctx, `SELECT id, entity_kind, entity_id, from_status, to_status, changed_by, notes, at
FROM status_history WHERE entity_kind=$1 AND entity_id=$2 ORDER BY at ASC`, kind, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []workflow.StatusHistoryEntry
	for rows.Next() {
		var e workflow.StatusHistoryEntry
		if err := rows.Scan(&e.ID, &e.EntityKind, &e.EntityID, &e.FromStatus, &e.ToStatus, &e.ChangedBy, &e.Notes, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListRejections returns an entity's rejection records, oldest first.
func ListRejections(ctx context.Context, db Querier, kind workflow.EntityKind, id uuid.UUID) ([]workflow.RejectionRecord, error) {
	rows, err := db.Query(ctx, `SELECT id, entity_kind, entity_id, rejected_by, reason, status, at
FROM rejection_records WHERE entity_kind=$1 AND entity_id=$2 ORDER BY at ASC`, kind, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []workflow.RejectionRecord
	for rows.Next() {
		var rec workflow.RejectionRecord
		if err := rows.Scan(&rec.ID, &rec.EntityKind, &rec.EntityID, &rec.RejectedBy, &rec.Reason, &rec.Status, &rec.At); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
