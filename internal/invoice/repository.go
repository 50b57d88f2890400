package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightbill/freightbill/internal/lr"
	"github.com/freightbill/freightbill/internal/platform/db"
	"github.com/freightbill/freightbill/internal/shared"
	"github.com/freightbill/freightbill/internal/workflow"
)

// ErrDuplicateInvoiceNumber maps the per-vendor unique constraint on
// invoice_number.
var ErrDuplicateInvoiceNumber = errors.New("invoice number already used by this vendor")

// LinkedAnnexure is the slice of the annexure row the invoice cascade
// needs. The invoice engine never touches other annexure columns.
type LinkedAnnexure struct {
	ID     uuid.UUID
	Status workflow.Status
}

// Repository defines invoice data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error)
	ListHistory(ctx context.Context, id uuid.UUID) ([]workflow.StatusHistoryEntry, error)
	ListRejections(ctx context.Context, id uuid.UUID) ([]workflow.RejectionRecord, error)
	ListComments(ctx context.Context, invoiceID uuid.UUID) ([]Comment, error)
}

// TxRepository defines operations within a transition transaction. The
// annexure rows touched by cascades are read FOR UPDATE so an invoice
// transition and a direct annexure transition serialise.
type TxRepository interface {
	GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (Invoice, error)
	CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	UpdateDetails(ctx context.Context, id uuid.UUID, input UpdateInvoiceInput) error
	UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status workflow.Status, patch StatusPatch) error
	SetDeletionRequested(ctx context.Context, id uuid.UUID, requested bool) error
	NextReferenceSeq(ctx context.Context) (int64, error)

	AnnexureForUpdate(ctx context.Context, id uuid.UUID) (LinkedAnnexure, error)
	UpdateAnnexureStatus(ctx context.Context, id uuid.UUID, status workflow.Status) error
	CountUnapprovedFileGroups(ctx context.Context, annexureID uuid.UUID) (int, error)
	LinkAnnexureInvoice(ctx context.Context, annexureID, invoiceID uuid.UUID) error

	LRsByAnnexure(ctx context.Context, annexureID uuid.UUID) ([]lr.LRRequest, error)
	MarkLRsInvoiced(ctx context.Context, invoiceID uuid.UUID, lrIDs []uuid.UUID) error

	ResetLRs(ctx context.Context, invoiceID uuid.UUID) error
	UnlinkAnnexure(ctx context.Context, invoiceID uuid.UUID) error
	DeleteComments(ctx context.Context, invoiceID uuid.UUID) error
	DeleteDocuments(ctx context.Context, invoiceID uuid.UUID) error
	DeleteLineItems(ctx context.Context, invoiceID uuid.UUID) error
	DeleteReferences(ctx context.Context, invoiceID uuid.UUID) error
	DeleteInvoice(ctx context.Context, id uuid.UUID) error

	AppendHistory(ctx context.Context, entry workflow.StatusHistoryEntry) error
	CreateRejection(ctx context.Context, rec workflow.RejectionRecord) error
	InsertComment(ctx context.Context, c Comment) error
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

const invoiceColumns = `id, reference_number, invoice_number, invoice_date, bill_to_id, bill_to, bill_to_gstin,
tax_rate, subtotal, tax_amount, grand_total, file_uri, status,
submitted_at, tadmin_approved_at, boss_approved_at, rejected_at, payment_approved_at,
deletion_requested, vendor_id, annexure_id, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.ReferenceNumber, &inv.InvoiceNumber, &inv.InvoiceDate,
		&inv.BillToID, &inv.BillTo, &inv.BillToGSTIN,
		&inv.TaxRate, &inv.Subtotal, &inv.TaxAmount, &inv.GrandTotal, &inv.FileURI, &inv.Status,
		&inv.SubmittedAt, &inv.TadminApprovedAt, &inv.BossApprovedAt, &inv.RejectedAt, &inv.PaymentApprovedAt,
		&inv.DeletionRequested, &inv.VendorID, &inv.AnnexureID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, workflow.ErrNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *pgRepository) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM invoices WHERE id=$1`, invoiceColumns), id))
}

func (r *pgRepository) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM invoices
WHERE ($1::uuid IS NULL OR vendor_id=$1)
AND ($2::text IS NULL OR status=$2)
ORDER BY created_at DESC LIMIT $3 OFFSET $4`, invoiceColumns),
		nilUUID(req.VendorID), nilStatus(req.Status), limit, req.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *pgRepository) ListHistory(ctx context.Context, id uuid.UUID) ([]workflow.StatusHistoryEntry, error) {
	return shared.ListHistory(ctx, r.pool, workflow.KindInvoice, id)
}

func (r *pgRepository) ListRejections(ctx context.Context, id uuid.UUID) ([]workflow.RejectionRecord, error) {
	return shared.ListRejections(ctx, r.pool, workflow.KindInvoice, id)
}

func (r *pgRepository) ListComments(ctx context.Context, invoiceID uuid.UUID) ([]Comment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, author_id, body, created_at
FROM invoice_comments WHERE invoice_id=$1 ORDER BY created_at ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.InvoiceID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- transaction-scoped operations ---

func (r *pgTxRepository) GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return scanInvoice(r.tx.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM invoices WHERE id=$1 FOR UPDATE`, invoiceColumns), id))
}

func (r *pgTxRepository) CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	now := time.Now()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	_, err := r.tx.Exec(ctx, `INSERT INTO invoices (id, reference_number, invoice_number, invoice_date,
bill_to_id, bill_to, bill_to_gstin, tax_rate, subtotal, tax_amount, grand_total, file_uri, status,
deletion_requested, vendor_id, annexure_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)`,
		inv.ID, inv.ReferenceNumber, inv.InvoiceNumber, inv.InvoiceDate,
		inv.BillToID, inv.BillTo, inv.BillToGSTIN, inv.TaxRate, inv.Subtotal, inv.TaxAmount, inv.GrandTotal,
		inv.FileURI, inv.Status, inv.DeletionRequested, inv.VendorID, inv.AnnexureID, now)
	if err != nil {
		if isUniqueViolation(err) {
			return Invoice{}, ErrDuplicateInvoiceNumber
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *pgTxRepository) UpdateDetails(ctx context.Context, id uuid.UUID, input UpdateInvoiceInput) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET
invoice_number=COALESCE($2, invoice_number),
invoice_date=COALESCE($3, invoice_date),
bill_to_id=COALESCE($4, bill_to_id),
bill_to=COALESCE($5, bill_to),
bill_to_gstin=COALESCE($6, bill_to_gstin),
file_uri=COALESCE($7, file_uri),
tax_rate=COALESCE($8, tax_rate),
updated_at=NOW() WHERE id=$1`,
		id, input.InvoiceNumber, input.InvoiceDate, input.BillToID, input.BillTo, input.BillToGSTIN,
		input.FileURI, input.TaxRate)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateInvoiceNumber
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *pgTxRepository) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status workflow.Status, patch StatusPatch) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET status=$2,
submitted_at=COALESCE($3, submitted_at),
tadmin_approved_at=COALESCE($4, tadmin_approved_at),
boss_approved_at=COALESCE($5, boss_approved_at),
rejected_at=COALESCE($6, rejected_at),
payment_approved_at=COALESCE($7, payment_approved_at),
updated_at=NOW() WHERE id=$1`,
		id, status, patch.SubmittedAt, patch.TadminApprovedAt, patch.BossApprovedAt,
		patch.RejectedAt, patch.PaymentApprovedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *pgTxRepository) SetDeletionRequested(ctx context.Context, id uuid.UUID, requested bool) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET deletion_requested=$2, updated_at=NOW() WHERE id=$1`, id, requested)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *pgTxRepository) NextReferenceSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `SELECT nextval('invoice_reference_seq')`).Scan(&seq)
	return seq, err
}

func (r *pgTxRepository) AnnexureForUpdate(ctx context.Context, id uuid.UUID) (LinkedAnnexure, error) {
	var a LinkedAnnexure
	err := r.tx.QueryRow(ctx, `SELECT id, status FROM annexures WHERE id=$1 FOR UPDATE`, id).
		Scan(&a.ID, &a.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LinkedAnnexure{}, workflow.ErrNotFound
		}
		return LinkedAnnexure{}, err
	}
	return a, nil
}

func (r *pgTxRepository) UpdateAnnexureStatus(ctx context.Context, id uuid.UUID, status workflow.Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE annexures SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *pgTxRepository) CountUnapprovedFileGroups(ctx context.Context, annexureID uuid.UUID) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM annexure_file_groups WHERE annexure_id=$1 AND status <> 'APPROVED'`, annexureID).Scan(&n)
	return n, err
}

func (r *pgTxRepository) LinkAnnexureInvoice(ctx context.Context, annexureID, invoiceID uuid.UUID) error {
	tag, err := r.tx.Exec(ctx, `UPDATE annexures SET invoice_id=$2, updated_at=NOW() WHERE id=$1 AND invoice_id IS NULL`, annexureID, invoiceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &workflow.PreconditionFailedError{Reason: "annexure is already linked to an invoice"}
	}
	return nil
}

func (r *pgTxRepository) LRsByAnnexure(ctx context.Context, annexureID uuid.UUID) ([]lr.LRRequest, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, lr_number, file_number, price_offered, lr_price, price_settled,
extra_cost, modified_price, is_invoiced, pod_link, tvendor_id, annexure_id, group_id, invoice_id, created_at, updated_at
FROM lr_requests WHERE annexure_id=$1 ORDER BY file_number, lr_number FOR UPDATE`, annexureID)
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

func (r *pgTxRepository) MarkLRsInvoiced(ctx context.Context, invoiceID uuid.UUID, lrIDs []uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `UPDATE lr_requests SET invoice_id=$1, is_invoiced=TRUE, updated_at=NOW() WHERE id = ANY($2)`,
		invoiceID, lrIDs)
	return err
}

func (r *pgTxRepository) ResetLRs(ctx context.Context, invoiceID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `UPDATE lr_requests SET
invoice_id=NULL, annexure_id=NULL, group_id=NULL, is_invoiced=FALSE,
lr_price=NULL, price_settled=NULL, extra_cost=NULL, modified_price=NULL,
updated_at=NOW() WHERE invoice_id=$1`, invoiceID)
	return err
}

func (r *pgTxRepository) UnlinkAnnexure(ctx context.Context, invoiceID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `UPDATE annexures SET invoice_id=NULL, updated_at=NOW() WHERE invoice_id=$1`, invoiceID)
	return err
}

func (r *pgTxRepository) DeleteComments(ctx context.Context, invoiceID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM invoice_comments WHERE invoice_id=$1`, invoiceID)
	return err
}

func (r *pgTxRepository) DeleteDocuments(ctx context.Context, invoiceID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM invoice_documents WHERE invoice_id=$1`, invoiceID)
	return err
}

func (r *pgTxRepository) DeleteLineItems(ctx context.Context, invoiceID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM invoice_line_items WHERE invoice_id=$1`, invoiceID)
	return err
}

func (r *pgTxRepository) DeleteReferences(ctx context.Context, invoiceID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM invoice_references WHERE invoice_id=$1`, invoiceID)
	return err
}

func (r *pgTxRepository) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM invoices WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *pgTxRepository) AppendHistory(ctx context.Context, entry workflow.StatusHistoryEntry) error {
	return shared.AppendHistory(ctx, r.tx, entry)
}

func (r *pgTxRepository) CreateRejection(ctx context.Context, rec workflow.RejectionRecord) error {
	return shared.CreateRejection(ctx, r.tx, rec)
}

func (r *pgTxRepository) InsertComment(ctx context.Context, c Comment) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO invoice_comments (id, invoice_id, author_id, body, created_at)
VALUES ($1, $2, $3, $4, $5)`, c.ID, c.InvoiceID, c.AuthorID, c.Body, c.CreatedAt)
	return err
}
