package lr

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightbill/freightbill/internal/workflow"
)

type memoryRepo struct {
	byID     map[uuid.UUID]LRRequest
	byNumber map[string]uuid.UUID
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{byID: make(map[uuid.UUID]LRRequest), byNumber: make(map[string]uuid.UUID)}
}

func (m *memoryRepo) GetLR(ctx context.Context, id uuid.UUID) (LRRequest, error) {
	l, ok := m.byID[id]
	if !ok {
		return LRRequest{}, workflow.ErrNotFound
	}
	return l, nil
}

func (m *memoryRepo) GetLRByNumber(ctx context.Context, lrNumber string) (LRRequest, error) {
	id, ok := m.byNumber[lrNumber]
	if !ok {
		return LRRequest{}, workflow.ErrNotFound
	}
	return m.byID[id], nil
}

func (m *memoryRepo) ListLRs(ctx context.Context, req ListLRsRequest) ([]LRRequest, error) {
	var out []LRRequest
	for _, l := range m.byID {
		if req.TVendorID != uuid.Nil && l.TVendorID != req.TVendorID {
			continue
		}
		if req.Unassigned && l.AnnexureID != nil {
			continue
		}
		if req.Uninvoiced && l.IsInvoiced {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (m *memoryRepo) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]LRRequest, error) {
	var out []LRRequest
	for _, l := range m.byID {
		if l.InvoiceID != nil && *l.InvoiceID == invoiceID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListByAnnexure(ctx context.Context, annexureID uuid.UUID) ([]LRRequest, error) {
	var out []LRRequest
	for _, l := range m.byID {
		if l.AnnexureID != nil && *l.AnnexureID == annexureID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryRepo) CreateLR(ctx context.Context, input ImportLRInput) (LRRequest, error) {
	if _, taken := m.byNumber[input.LRNumber]; taken {
		return LRRequest{}, ErrDuplicateLRNumber
	}
	l := LRRequest{
		ID:           uuid.New(),
		LRNumber:     input.LRNumber,
		FileNumber:   input.FileNumber,
		PriceOffered: input.PriceOffered,
		LRPrice:      input.LRPrice,
		PriceSettled: input.PriceSettled,
		ExtraCost:    input.ExtraCost,
		PODLink:      input.PODLink,
		TVendorID:    input.TVendorID,
	}
	m.byID[l.ID] = l
	m.byNumber[l.LRNumber] = l.ID
	return l, nil
}

func (m *memoryRepo) UpdateLR(ctx context.Context, id uuid.UUID, input UpdateLRInput) (LRRequest, error) {
	l, ok := m.byID[id]
	if !ok {
		return LRRequest{}, workflow.ErrNotFound
	}
	if input.LRPrice != nil {
		l.LRPrice = input.LRPrice
	}
	if input.PriceSettled != nil {
		l.PriceSettled = input.PriceSettled
	}
	if input.ExtraCost != nil {
		l.ExtraCost = input.ExtraCost
	}
	if input.ModifiedPrice != nil {
		l.ModifiedPrice = input.ModifiedPrice
	}
	if input.PODLink != nil {
		l.PODLink = input.PODLink
	}
	m.byID[id] = l
	return l, nil
}

func fptr(v float64) *float64 { return &v }

func TestImportSkipsDuplicates(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, slog.Default())
	vendorID := uuid.New()

	first, err := svc.Import(context.Background(), "", []ImportLRInput{
		{LRNumber: "LR-1", FileNumber: "FILE-A", LRPrice: fptr(100), TVendorID: vendorID},
		{LRNumber: "LR-2", FileNumber: "FILE-A", TVendorID: vendorID},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Imported)

	second, err := svc.Import(context.Background(), "", []ImportLRInput{
		{LRNumber: "LR-2", FileNumber: "FILE-A", TVendorID: vendorID},
		{LRNumber: "LR-3", FileNumber: "FILE-B", TVendorID: vendorID},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Imported)
	assert.Equal(t, []string{"LR-2"}, second.Skipped)
}

func TestImportValidatesRows(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, slog.Default())

	_, err := svc.Import(context.Background(), "", []ImportLRInput{{FileNumber: "FILE-A", TVendorID: uuid.New()}})
	require.True(t, workflow.IsValidation(err))
	assert.EqualError(t, err, "missing required field: lrNumber")

	_, err = svc.Import(context.Background(), "", []ImportLRInput{{LRNumber: "LR-1", FileNumber: "FILE-A"}})
	require.True(t, workflow.IsValidation(err))
	assert.EqualError(t, err, "missing required field: tvendorId")

	// validation happens before any row is written
	assert.Empty(t, repo.byID)
}

func TestUpdateFrozenWhenInvoiced(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, slog.Default())
	vendorID := uuid.New()

	created, err := repo.CreateLR(context.Background(), ImportLRInput{LRNumber: "LR-1", FileNumber: "FILE-A", TVendorID: vendorID})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), created.ID, UpdateLRInput{LRPrice: fptr(120)})
	require.NoError(t, err)
	assert.Equal(t, 120.0, Amount(updated.LRPrice))

	frozen := repo.byID[created.ID]
	frozen.IsInvoiced = true
	repo.byID[created.ID] = frozen

	_, err = svc.Update(context.Background(), created.ID, UpdateLRInput{LRPrice: fptr(130)})
	assert.True(t, workflow.IsPreconditionFailed(err))
}

func TestAmountZeroDefault(t *testing.T) {
	assert.Zero(t, Amount(nil))
	assert.Equal(t, 42.5, Amount(fptr(42.5)))
}
