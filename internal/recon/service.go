package recon

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/freightbill/freightbill/internal/invoice"
	"github.com/freightbill/freightbill/internal/lr"
)

// InvoiceGetter reads one invoice.
type InvoiceGetter interface {
	GetInvoice(ctx context.Context, id uuid.UUID) (invoice.Invoice, error)
}

// LRLister reads an invoice's LRs.
type LRLister interface {
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]lr.LRRequest, error)
}

// Service builds reconciliation reports on demand. Reports are cached in
// redis with a short TTL and built under singleflight so concurrent
// requests for the same invoice share one computation.
type Service struct {
	invoices InvoiceGetter
	lrs      LRLister
	costing  CostingRepository
	cache    *redis.Client
	ttl      time.Duration
	sf       singleflight.Group
	logger   *slog.Logger
}

// NewService constructs the reconciliation service. cache may be nil, in
// which case every request recomputes.
func NewService(invoices InvoiceGetter, lrs LRLister, costing CostingRepository, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{invoices: invoices, lrs: lrs, costing: costing, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(id uuid.UUID) string { return "recon:invoice:" + id.String() }

// Report returns the reconciliation view for one invoice.
func (s *Service) Report(ctx context.Context, invoiceID uuid.UUID) (InvoiceReconciliation, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, cacheKey(invoiceID)).Bytes()
		if err == nil {
			var cached InvoiceReconciliation
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn("recon cache read", slog.Any("error", err))
		}
	}

	v, err, _ := s.sf.Do(cacheKey(invoiceID), func() (any, error) {
		return s.build(ctx, invoiceID)
	})
	if err != nil {
		return InvoiceReconciliation{}, err
	}
	return v.(InvoiceReconciliation), nil
}

// Invalidate drops the cached report, used after transitions that change
// invoice totals.
func (s *Service) Invalidate(ctx context.Context, invoiceID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKey(invoiceID)).Err(); err != nil {
		s.logger.Warn("recon cache invalidate", slog.Any("error", err))
	}
}

func (s *Service) build(ctx context.Context, invoiceID uuid.UUID) (InvoiceReconciliation, error) {
	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return InvoiceReconciliation{}, err
	}
	lrs, err := s.lrs.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return InvoiceReconciliation{}, err
	}
	lrNumbers := make([]string, 0, len(lrs))
	for _, l := range lrs {
		lrNumbers = append(lrNumbers, l.LRNumber)
	}
	var costing []CostingRow
	if len(lrNumbers) > 0 {
		costing, err = s.costing.RowsForLRs(ctx, lrNumbers)
		if err != nil {
			return InvoiceReconciliation{}, err
		}
	}

	report := BuildReport(inv, lrs, costing, time.Now())

	if s.cache != nil {
		if raw, err := json.Marshal(report); err == nil {
			if err := s.cache.Set(ctx, cacheKey(invoiceID), raw, s.ttl).Err(); err != nil {
				s.logger.Warn("recon cache write", slog.Any("error", err))
			}
		}
	}
	return report, nil
}
