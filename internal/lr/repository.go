package lr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightbill/freightbill/internal/workflow"
)

// ErrDuplicateLRNumber indicates the import feed offered an LR number the
// portal already holds.
var ErrDuplicateLRNumber = errors.New("duplicate LR number")

// Repository defines LR data access.
type Repository interface {
	GetLR(ctx context.Context, id uuid.UUID) (LRRequest, error)
	GetLRByNumber(ctx context.Context, lrNumber string) (LRRequest, error)
	ListLRs(ctx context.Context, req ListLRsRequest) ([]LRRequest, error)
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]LRRequest, error)
	ListByAnnexure(ctx context.Context, annexureID uuid.UUID) ([]LRRequest, error)
	CreateLR(ctx context.Context, input ImportLRInput) (LRRequest, error)
	UpdateLR(ctx context.Context, id uuid.UUID, input UpdateLRInput) (LRRequest, error)
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const lrColumns = `id, lr_number, file_number, price_offered, lr_price, price_settled,
extra_cost, modified_price, is_invoiced, pod_link, tvendor_id, annexure_id, group_id,
invoice_id, created_at, updated_at`

func scanLR(row pgx.Row) (LRRequest, error) {
	var l LRRequest
	err := row.Scan(&l.ID, &l.LRNumber, &l.FileNumber, &l.PriceOffered, &l.LRPrice,
		&l.PriceSettled, &l.ExtraCost, &l.ModifiedPrice, &l.IsInvoiced, &l.PODLink,
		&l.TVendorID, &l.AnnexureID, &l.GroupID, &l.InvoiceID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LRRequest{}, workflow.ErrNotFound
		}
		return LRRequest{}, err
	}
	return l, nil
}

func (r *pgRepository) GetLR(ctx context.Context, id uuid.UUID) (LRRequest, error) {
	return scanLR(r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM lr_requests WHERE id=$1`, lrColumns), id))
}

func (r *pgRepository) GetLRByNumber(ctx context.Context, lrNumber string) (LRRequest, error) {
	return scanLR(r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM lr_requests WHERE lr_number=$1`, lrColumns), lrNumber))
}

func (r *pgRepository) ListLRs(ctx context.Context, req ListLRsRequest) ([]LRRequest, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if req.TVendorID != uuid.Nil {
		add("tvendor_id=$%d", req.TVendorID)
	}
	if req.FileNumber != "" {
		add("file_number=$%d", req.FileNumber)
	}
	if req.Unassigned {
		conds = append(conds, "annexure_id IS NULL")
	}
	if req.Uninvoiced {
		conds = append(conds, "is_invoiced=false")
	}
	query := fmt.Sprintf(`SELECT %s FROM lr_requests`, lrColumns)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY lr_number"
	limit := req.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, req.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	return r.queryLRs(ctx, query, args...)
}

func (r *pgRepository) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]LRRequest, error) {
	return r.queryLRs(ctx, fmt.Sprintf(`SELECT %s FROM lr_requests WHERE invoice_id=$1 ORDER BY file_number, lr_number`, lrColumns), invoiceID)
}

func (r *pgRepository) ListByAnnexure(ctx context.Context, annexureID uuid.UUID) ([]LRRequest, error) {
	return r.queryLRs(ctx, fmt.Sprintf(`SELECT %s FROM lr_requests WHERE annexure_id=$1 ORDER BY file_number, lr_number`, lrColumns), annexureID)
}

func (r *pgRepository) queryLRs(ctx context.Context, query string, args ...any) ([]LRRequest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LRRequest
	for rows.Next() {
		var l LRRequest
		if err := rows.Scan(&l.ID, &l.LRNumber, &l.FileNumber, &l.PriceOffered, &l.LRPrice,
			&l.PriceSettled, &l.ExtraCost, &l.ModifiedPrice, &l.IsInvoiced, &l.PODLink,
			&l.TVendorID, &l.AnnexureID, &l.GroupID, &l.InvoiceID, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *pgRepository) CreateLR(ctx context.Context, input ImportLRInput) (LRRequest, error) {
	id := uuid.New()
	now := time.Now()
	_, err := r.pool.Exec(ctx, `INSERT INTO lr_requests
(id, lr_number, file_number, price_offered, lr_price, price_settled, extra_cost, pod_link, tvendor_id, is_invoiced, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10, $10)`,
		id, input.LRNumber, input.FileNumber, input.PriceOffered, input.LRPrice,
		input.PriceSettled, input.ExtraCost, input.PODLink, input.TVendorID, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return LRRequest{}, ErrDuplicateLRNumber
		}
		return LRRequest{}, err
	}
	return r.GetLR(ctx, id)
}

func (r *pgRepository) UpdateLR(ctx context.Context, id uuid.UUID, input UpdateLRInput) (LRRequest, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE lr_requests SET
lr_price=COALESCE($2, lr_price),
price_settled=COALESCE($3, price_settled),
extra_cost=COALESCE($4, extra_cost),
modified_price=COALESCE($5, modified_price),
pod_link=COALESCE($6, pod_link),
updated_at=NOW()
WHERE id=$1`,
		id, input.LRPrice, input.PriceSettled, input.ExtraCost, input.ModifiedPrice, input.PODLink)
	if err != nil {
		return LRRequest{}, err
	}
	if tag.RowsAffected() == 0 {
		return LRRequest{}, workflow.ErrNotFound
	}
	return r.GetLR(ctx, id)
}
