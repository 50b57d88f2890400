package recon

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightbill/freightbill/internal/invoice"
	"github.com/freightbill/freightbill/internal/lr"
	"github.com/freightbill/freightbill/internal/workflow"
)

type fakeSource struct {
	inv          invoice.Invoice
	lrs          []lr.LRRequest
	costing      []CostingRow
	costingCalls int
}

func (f *fakeSource) GetInvoice(ctx context.Context, id uuid.UUID) (invoice.Invoice, error) {
	if id != f.inv.ID {
		return invoice.Invoice{}, workflow.ErrNotFound
	}
	return f.inv, nil
}

func (f *fakeSource) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]lr.LRRequest, error) {
	return f.lrs, nil
}

func (f *fakeSource) RowsForLRs(ctx context.Context, lrNumbers []string) ([]CostingRow, error) {
	f.costingCalls++
	return f.costing, nil
}

func newCachedService(t *testing.T, src *fakeSource) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewService(src, src, src, client, time.Minute, slog.Default())
}

func TestReportCachesInRedis(t *testing.T) {
	inv, lrs, costing := fixtureInputs()
	src := &fakeSource{inv: inv, lrs: lrs, costing: costing}
	svc := newCachedService(t, src)

	first, err := svc.Report(context.Background(), inv.ID)
	require.NoError(t, err)
	second, err := svc.Report(context.Background(), inv.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, src.costingCalls)
	assert.Equal(t, first.TotalVariance, second.TotalVariance)
	assert.Equal(t, first.FileVarianceSum, second.FileVarianceSum)
}

func TestInvalidateForcesRebuild(t *testing.T) {
	inv, lrs, costing := fixtureInputs()
	src := &fakeSource{inv: inv, lrs: lrs, costing: costing}
	svc := newCachedService(t, src)

	_, err := svc.Report(context.Background(), inv.ID)
	require.NoError(t, err)
	svc.Invalidate(context.Background(), inv.ID)
	_, err = svc.Report(context.Background(), inv.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, src.costingCalls)
}

func TestReportUnknownInvoice(t *testing.T) {
	inv, lrs, costing := fixtureInputs()
	src := &fakeSource{inv: inv, lrs: lrs, costing: costing}
	svc := NewService(src, src, src, nil, time.Minute, slog.Default())

	_, err := svc.Report(context.Background(), uuid.New())
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}
