package annexure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightbill/freightbill/internal/lr"
	"github.com/freightbill/freightbill/internal/platform/db"
	"github.com/freightbill/freightbill/internal/shared"
	"github.com/freightbill/freightbill/internal/workflow"
)

// Repository defines annexure data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetAnnexure(ctx context.Context, id uuid.UUID) (Annexure, error)
	GetAnnexureWithGroups(ctx context.Context, id uuid.UUID) (AnnexureWithGroups, error)
	ListAnnexures(ctx context.Context, req ListAnnexuresRequest) ([]Annexure, error)
	ListHistory(ctx context.Context, id uuid.UUID) ([]workflow.StatusHistoryEntry, error)
	ListRejections(ctx context.Context, id uuid.UUID) ([]workflow.RejectionRecord, error)
}

// TxRepository defines operations within a transition transaction. Reads
// named ForUpdate lock the row so racing transitions serialise on current
// stored state.
type TxRepository interface {
	GetAnnexureForUpdate(ctx context.Context, id uuid.UUID) (Annexure, error)
	GetFileGroupForUpdate(ctx context.Context, id uuid.UUID) (FileGroup, error)
	LRsForGrouping(ctx context.Context, vendorID uuid.UUID, lrIDs []uuid.UUID) ([]lr.LRRequest, error)

	CreateAnnexure(ctx context.Context, input CreateAnnexureInput, status workflow.Status) (Annexure, error)
	CreateFileGroup(ctx context.Context, annexureID uuid.UUID, fileNumber string, totalPrice, extraCost float64) (FileGroup, error)
	AssignLRs(ctx context.Context, annexureID, groupID uuid.UUID, lrIDs []uuid.UUID) error

	UpdateAnnexureStatus(ctx context.Context, id uuid.UUID, status workflow.Status, patch StatusPatch) error
	UpdateFileGroupStatus(ctx context.Context, id uuid.UUID, status workflow.Status) error
	GroupStatusCounts(ctx context.Context, annexureID uuid.UUID) (GroupStatusCounts, error)

	AppendHistory(ctx context.Context, entry workflow.StatusHistoryEntry) error
	CreateRejection(ctx context.Context, rec workflow.RejectionRecord) error
}

var (
	_ Repository   = (*pgRepository)(nil)
	_ TxRepository = (*pgTxRepository)(nil)
)

type pgRepository struct {
	pool *pgxpool.Pool
}

type pgTxRepository struct {
	tx pgx.Tx
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const annexureColumns = `id, name, from_date, to_date, vendor_id, status, invoice_id,
tadmin_completed_at, boss_approved_at, created_at, updated_at`

func scanAnnexure(row pgx.Row) (Annexure, error) {
	var a Annexure
	err := row.Scan(&a.ID, &a.Name, &a.FromDate, &a.ToDate, &a.VendorID, &a.Status,
		&a.InvoiceID, &a.TadminCompletedAt, &a.BossApprovedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Annexure{}, workflow.ErrNotFound
		}
		return Annexure{}, err
	}
	return a, nil
}

func (r *pgRepository) GetAnnexure(ctx context.Context, id uuid.UUID) (Annexure, error) {
	return scanAnnexure(r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM annexures WHERE id=$1`, annexureColumns), id))
}

func (r *pgRepository) GetAnnexureWithGroups(ctx context.Context, id uuid.UUID) (AnnexureWithGroups, error) {
	a, err := r.GetAnnexure(ctx, id)
	if err != nil {
		return AnnexureWithGroups{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, annexure_id, file_number, total_price, extra_cost, status, created_at, updated_at
FROM annexure_file_groups WHERE annexure_id=$1 ORDER BY file_number`, id)
	if err != nil {
		return AnnexureWithGroups{}, err
	}
	defer rows.Close()
	out := AnnexureWithGroups{Annexure: a}
	for rows.Next() {
		var g FileGroup
		if err := rows.Scan(&g.ID, &g.AnnexureID, &g.FileNumber, &g.TotalPrice, &g.ExtraCost, &g.Status, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return AnnexureWithGroups{}, err
		}
		out.Groups = append(out.Groups, g)
	}
	return out, rows.Err()
}

func (r *pgRepository) ListAnnexures(ctx context.Context, req ListAnnexuresRequest) ([]Annexure, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM annexures
WHERE ($1::uuid IS NULL OR vendor_id=$1)
AND ($2::text IS NULL OR status=$2)
ORDER BY created_at DESC LIMIT $3 OFFSET $4`, annexureColumns),
		nilUUID(req.VendorID), nilStatus(req.Status), limit, req.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Annexure
	for rows.Next() {
		var a Annexure
		if err := rows.Scan(&a.ID, &a.Name, &a.FromDate, &a.ToDate, &a.VendorID, &a.Status,
			&a.InvoiceID, &a.TadminCompletedAt, &a.BossApprovedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *pgRepository) ListHistory(ctx context.Context, id uuid.UUID) ([]workflow.StatusHistoryEntry, error) {
	return shared.ListHistory(ctx, r.pool, workflow.KindAnnexure, id)
}

func (r *pgRepository) ListRejections(ctx context.Context, id uuid.UUID) ([]workflow.RejectionRecord, error) {
	return shared.ListRejections(ctx, r.pool, workflow.KindAnnexure, id)
}

func nilUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func nilStatus(s workflow.Status) *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}

// --- transaction-scoped operations ---

func (r *pgTxRepository) GetAnnexureForUpdate(ctx context.Context, id uuid.UUID) (Annexure, error) {
	return scanAnnexure(r.tx.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM annexures WHERE id=$1 FOR UPDATE`, annexureColumns), id))
}

func (r *pgTxRepository) GetFileGroupForUpdate(ctx context.Context, id uuid.UUID) (FileGroup, error) {
	var g FileGroup
	err := r.tx.QueryRow(ctx, `SELECT id, annexure_id, file_number, total_price, extra_cost, status, created_at, updated_at
FROM annexure_file_groups WHERE id=$1 FOR UPDATE`, id).
		Scan(&g.ID, &g.AnnexureID, &g.FileNumber, &g.TotalPrice, &g.ExtraCost, &g.Status, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FileGroup{}, workflow.ErrNotFound
		}
		return FileGroup{}, err
	}
	return g, nil
}

func (r *pgTxRepository) LRsForGrouping(ctx context.Context, vendorID uuid.UUID, lrIDs []uuid.UUID) ([]lr.LRRequest, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, lr_number, file_number, price_offered, lr_price, price_settled,
extra_cost, modified_price, is_invoiced, pod_link, tvendor_id, annexure_id, group_id, invoice_id, created_at, updated_at
FROM lr_requests WHERE tvendor_id=$1 AND id = ANY($2) ORDER BY file_number, lr_number FOR UPDATE`, vendorID, lrIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []lr.LRRequest
	for rows.Next() {
		var l lr.LRRequest
		if err := rows.Scan(&l.ID, &l.LRNumber, &l.FileNumber, &l.PriceOffered, &l.LRPrice,
			&l.PriceSettled, &l.ExtraCost, &l.ModifiedPrice, &l.IsInvoiced, &l.PODLink,
			&l.TVendorID, &l.AnnexureID, &l.GroupID, &l.InvoiceID, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *pgTxRepository) CreateAnnexure(ctx context.Context, input CreateAnnexureInput, status workflow.Status) (Annexure, error) {
	id := uuid.New()
	now := time.Now()
	_, err := r.tx.Exec(ctx, `INSERT INTO annexures (id, name, from_date, to_date, vendor_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		id, input.Name, input.FromDate, input.ToDate, input.VendorID, status, now)
	if err != nil {
		return Annexure{}, err
	}
	return scanAnnexure(r.tx.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM annexures WHERE id=$1`, annexureColumns), id))
}

func (r *pgTxRepository) CreateFileGroup(ctx context.Context, annexureID uuid.UUID, fileNumber string, totalPrice, extraCost float64) (FileGroup, error) {
	id := uuid.New()
	now := time.Now()
	_, err := r.tx.Exec(ctx, `INSERT INTO annexure_file_groups (id, annexure_id, file_number, total_price, extra_cost, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		id, annexureID, fileNumber, totalPrice, extraCost, workflow.FileGroupPending, now)
	if err != nil {
		return FileGroup{}, err
	}
	return FileGroup{
		ID: id, AnnexureID: annexureID, FileNumber: fileNumber,
		TotalPrice: totalPrice, ExtraCost: extraCost,
		Status: workflow.FileGroupPending, CreatedAt: now, UpdatedAt: now,
	}, nil
}

func (r *pgTxRepository) AssignLRs(ctx context.Context, annexureID, groupID uuid.UUID, lrIDs []uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `UPDATE lr_requests SET annexure_id=$1, group_id=$2, updated_at=NOW() WHERE id = ANY($3)`,
		annexureID, groupID, lrIDs)
	return err
}

func (r *pgTxRepository) UpdateAnnexureStatus(ctx context.Context, id uuid.UUID, status workflow.Status, patch StatusPatch) error {
	tag, err := r.tx.Exec(ctx, `UPDATE annexures SET status=$2,
tadmin_completed_at=COALESCE($3, tadmin_completed_at),
boss_approved_at=COALESCE($4, boss_approved_at),
updated_at=NOW() WHERE id=$1`,
		id, status, patch.TadminCompletedAt, patch.BossApprovedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *pgTxRepository) UpdateFileGroupStatus(ctx context.Context, id uuid.UUID, status workflow.Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE annexure_file_groups SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *pgTxRepository) GroupStatusCounts(ctx context.Context, annexureID uuid.UUID) (GroupStatusCounts, error) {
	var c GroupStatusCounts
	err := r.tx.QueryRow(ctx, `SELECT
COUNT(*) FILTER (WHERE status='PENDING'),
COUNT(*) FILTER (WHERE status='APPROVED'),
COUNT(*) FILTER (WHERE status='REJECTED')
FROM annexure_file_groups WHERE annexure_id=$1`, annexureID).
		Scan(&c.Pending, &c.Approved, &c.Rejected)
	return c, err
}

func (r *pgTxRepository) AppendHistory(ctx context.Context, entry workflow.StatusHistoryEntry) error {
	return shared.AppendHistory(ctx, r.tx, entry)
}

func (r *pgTxRepository) CreateRejection(ctx context.Context, rec workflow.RejectionRecord) error {
	return shared.CreateRejection(ctx, r.tx, rec)
}
