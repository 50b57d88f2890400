package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightbill/freightbill/internal/workflow"
)

// PGDirectory resolves roles against the portal_users table maintained by
// the external identity system.
type PGDirectory struct {
	pool *pgxpool.Pool
}

// NewPGDirectory constructs the directory.
func NewPGDirectory(pool *pgxpool.Pool) *PGDirectory {
	return &PGDirectory{pool: pool}
}

var _ RecipientDirectory = (*PGDirectory)(nil)

// EmailsForRole returns the active emails registered under role.
func (d *PGDirectory) EmailsForRole(ctx context.Context, role workflow.Role) ([]string, error) {
	return d.emails(ctx, `SELECT email FROM portal_users WHERE role=$1 AND active`, string(role))
}

// EmailsForVendor returns the active emails of one vendor's users.
func (d *PGDirectory) EmailsForVendor(ctx context.Context, vendorID uuid.UUID) ([]string, error) {
	return d.emails(ctx, `SELECT email FROM portal_users WHERE vendor_id=$1 AND active`, vendorID)
}

func (d *PGDirectory) emails(ctx context.Context, query string, arg any) ([]string, error) {
	rows, err := d.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		out = append(out, email)
	}
	return out, rows.Err()
}
