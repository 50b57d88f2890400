package recon

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CostingRepository reads the external finance-costing feed. The engine
// never writes these rows.
type CostingRepository interface {
	RowsForLRs(ctx context.Context, lrNumbers []string) ([]CostingRow, error)
}

type pgCostingRepository struct {
	pool *pgxpool.Pool
}

// NewCostingRepository constructs the pgx-backed costing reader.
func NewCostingRepository(pool *pgxpool.Pool) CostingRepository {
	return &pgCostingRepository{pool: pool}
}

func (r *pgCostingRepository) RowsForLRs(ctx context.Context, lrNumbers []string) ([]CostingRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT lr_no, charge_code, allocated_cost, revenue, revgl_code, costgl_code
FROM fins_costing WHERE lr_no = ANY($1) ORDER BY lr_no, charge_code`, lrNumbers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CostingRow
	for rows.Next() {
		var row CostingRow
		if err := rows.Scan(&row.LRNumber, &row.ChargeCode, &row.AllocatedCost, &row.Revenue, &row.RevGLCode, &row.CostGLCode); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
