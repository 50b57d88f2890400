package lr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/freightbill/freightbill/internal/shared"
	"github.com/freightbill/freightbill/internal/workflow"
)

// Service coordinates LR imports and manual edits.
type Service struct {
	repo        Repository
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
}

// NewService constructs the LR service.
func NewService(repo Repository, idem *shared.IdempotencyStore, logger *slog.Logger) *Service {
	return &Service{repo: repo, idempotency: idem, logger: logger}
}

// ImportResult summarises one import batch.
type ImportResult struct {
	Imported int
	Skipped  []string // LR numbers already present
	LRs      []LRRequest
}

// Import ingests a batch of WMS rows. Rows whose LR number already exists
// are skipped, not overwritten; the sync owns conflict resolution. A
// non-empty idempotencyKey dedupes a retried batch as a whole.
func (s *Service) Import(ctx context.Context, idempotencyKey string, rows []ImportLRInput) (ImportResult, error) {
	var result ImportResult
	for _, row := range rows {
		if strings.TrimSpace(row.LRNumber) == "" {
			return ImportResult{}, &workflow.ValidationError{Field: "lrNumber"}
		}
		if strings.TrimSpace(row.FileNumber) == "" {
			return ImportResult{}, &workflow.ValidationError{Field: "fileNumber"}
		}
		if row.TVendorID == uuid.Nil {
			return ImportResult{}, &workflow.ValidationError{Field: "tvendorId"}
		}
	}
	if s.idempotency != nil && idempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, idempotencyKey, "lr-import"); err != nil {
			return ImportResult{}, err
		}
	}
	for _, row := range rows {
		created, err := s.repo.CreateLR(ctx, row)
		if err != nil {
			if errors.Is(err, ErrDuplicateLRNumber) {
				result.Skipped = append(result.Skipped, row.LRNumber)
				continue
			}
			if s.idempotency != nil && idempotencyKey != "" {
				_ = s.idempotency.Delete(ctx, idempotencyKey)
			}
			return ImportResult{}, fmt.Errorf("import LR %s: %w", row.LRNumber, err)
		}
		result.Imported++
		result.LRs = append(result.LRs, created)
	}
	if len(result.Skipped) > 0 {
		s.logger.Info("lr import skipped duplicates",
			slog.Int("count", len(result.Skipped)),
			slog.String("first", result.Skipped[0]))
	}
	return result, nil
}

// Update applies a manual edit. Invoiced LRs are frozen: their money
// fields feed committed invoice totals.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateLRInput) (LRRequest, error) {
	current, err := s.repo.GetLR(ctx, id)
	if err != nil {
		return LRRequest{}, err
	}
	if current.IsInvoiced {
		return LRRequest{}, &workflow.PreconditionFailedError{
			Reason: fmt.Sprintf("LR %s is invoiced and cannot be edited", current.LRNumber),
		}
	}
	return s.repo.UpdateLR(ctx, id, input)
}

// Get fetches one LR by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (LRRequest, error) {
	return s.repo.GetLR(ctx, id)
}

// List returns LRs matching the filter.
func (s *Service) List(ctx context.Context, req ListLRsRequest) ([]LRRequest, error) {
	return s.repo.ListLRs(ctx, req)
}
