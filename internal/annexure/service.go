package annexure

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/freightbill/freightbill/internal/lr"
	"github.com/freightbill/freightbill/internal/notify"
	"github.com/freightbill/freightbill/internal/observability"
	"github.com/freightbill/freightbill/internal/shared"
	"github.com/freightbill/freightbill/internal/workflow"
)

// Notifier dispatches workflow events. Failures never propagate.
type Notifier interface {
	Notify(ctx context.Context, ev notify.Event) []notify.DeliveryResult
}

// Auditor records audit entries post-commit.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates annexure workflow transitions. Every transition
// runs as one transaction: re-read current state under lock, guard via
// the transition table, write status + history (+ rejection), commit.
type Service struct {
	repo     Repository
	notifier Notifier
	auditor  Auditor
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewService constructs the annexure service.
func NewService(repo Repository, notifier Notifier, auditor Auditor, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, auditor: auditor, metrics: metrics, logger: logger}
}

// Create builds a DRAFT annexure from the vendor's unassigned LRs,
// grouping them by file number into file groups.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateAnnexureInput) (AnnexureWithGroups, error) {
	if actor.Role != workflow.RoleTVendor {
		return AnnexureWithGroups{}, &workflow.UnauthorizedTransitionError{
			Kind: workflow.KindAnnexure, Role: actor.Role, From: "", To: workflow.AnnexureDraft,
		}
	}
	if strings.TrimSpace(input.Name) == "" {
		return AnnexureWithGroups{}, &workflow.ValidationError{Field: "name"}
	}
	if input.VendorID == uuid.Nil {
		return AnnexureWithGroups{}, &workflow.ValidationError{Field: "vendorId"}
	}
	if len(input.LRIDs) == 0 {
		return AnnexureWithGroups{}, &workflow.ValidationError{Field: "lrIds"}
	}

	var created Annexure
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lrs, err := tx.LRsForGrouping(ctx, input.VendorID, input.LRIDs)
		if err != nil {
			return err
		}
		if len(lrs) != len(input.LRIDs) {
			return &workflow.PreconditionFailedError{
				Reason: fmt.Sprintf("%d of %d LRs not found for vendor", len(input.LRIDs)-len(lrs), len(input.LRIDs)),
			}
		}
		type bucket struct {
			ids        []uuid.UUID
			totalPrice float64
			extraCost  float64
		}
		buckets := make(map[string]*bucket)
		var order []string
		for _, l := range lrs {
			if l.AnnexureID != nil {
				return &workflow.PreconditionFailedError{Reason: fmt.Sprintf("LR %s already belongs to an annexure", l.LRNumber)}
			}
			if l.IsInvoiced {
				return &workflow.PreconditionFailedError{Reason: fmt.Sprintf("LR %s is already invoiced", l.LRNumber)}
			}
			b, ok := buckets[l.FileNumber]
			if !ok {
				b = &bucket{}
				buckets[l.FileNumber] = b
				order = append(order, l.FileNumber)
			}
			b.ids = append(b.ids, l.ID)
			b.totalPrice += lr.Amount(l.LRPrice)
			b.extraCost += lr.Amount(l.ExtraCost)
		}

		created, err = tx.CreateAnnexure(ctx, input, workflow.AnnexureDraft)
		if err != nil {
			return err
		}
		for _, fileNumber := range order {
			b := buckets[fileNumber]
			group, err := tx.CreateFileGroup(ctx, created.ID, fileNumber, b.totalPrice, b.extraCost)
			if err != nil {
				return err
			}
			if err := tx.AssignLRs(ctx, created.ID, group.ID, b.ids); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return AnnexureWithGroups{}, err
	}

	s.audit(ctx, actor, "CREATE", created.ID, fmt.Sprintf("annexure %s created with %d LRs", created.Name, len(input.LRIDs)))
	return s.repo.GetAnnexureWithGroups(ctx, created.ID)
}

// Submit moves the annexure to traffic-admin review. Resubmission after a
// rejection follows the same edge; the result carries the linked invoice
// id so the caller can navigate back to the invoice.
func (s *Service) Submit(ctx context.Context, actor shared.Actor, id uuid.UUID, notes string) (SubmitResult, error) {
	var result SubmitResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.GetAnnexureForUpdate(ctx, id)
		if err != nil {
			return err
		}
		to := workflow.AnnexurePendingTadminReview
		if !workflow.CanTransition(workflow.KindAnnexure, actor.Role, a.Status, to) {
			return &workflow.UnauthorizedTransitionError{Kind: workflow.KindAnnexure, Role: actor.Role, From: a.Status, To: to}
		}
		if err := tx.UpdateAnnexureStatus(ctx, id, to, StatusPatch{}); err != nil {
			return err
		}
		if notes == "" {
			notes = "submitted for review"
		}
		if err := tx.AppendHistory(ctx, workflow.StatusHistoryEntry{
			EntityKind: workflow.KindAnnexure, EntityID: id,
			FromStatus: a.Status, ToStatus: to, ChangedBy: actor.ID, Notes: notes,
		}); err != nil {
			return err
		}
		a.Status = to
		result = SubmitResult{Annexure: a, LinkedInvoiceID: a.InvoiceID}
		return nil
	})
	s.metrics.ObserveTransition("annexure", "submit", err)
	if err != nil {
		return SubmitResult{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Title:        fmt.Sprintf("Annexure %s submitted for review", result.Annexure.Name),
		Body:         fmt.Sprintf("Vendor submitted annexure %s covering %s to %s.", result.Annexure.Name, result.Annexure.FromDate.Format("02 Jan 2006"), result.Annexure.ToDate.Format("02 Jan 2006")),
		RelatedModel: "annexure",
		RelatedID:    id.String(),
		Roles:        []workflow.Role{workflow.RoleTAdmin},
	})
	s.audit(ctx, actor, "SUBMIT", id, "annexure submitted for traffic-admin review")
	return result, nil
}

// ReviewFileGroup approves or rejects one file group. Review is only
// permitted while the annexure is in a reviewable status. A rejection
// with some approvals moves the annexure to PARTIALLY_APPROVED; the
// HAS_REJECTIONS status is reserved for the invoice-rejection cascade.
func (s *Service) ReviewFileGroup(ctx context.Context, actor shared.Actor, groupID uuid.UUID, approve bool, reason string) (ReviewResult, error) {
	if !approve && strings.TrimSpace(reason) == "" {
		return ReviewResult{}, &workflow.ValidationError{Field: "reason"}
	}
	action := "reject_group"
	if approve {
		action = "approve_group"
	}

	var result ReviewResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		g, err := tx.GetFileGroupForUpdate(ctx, groupID)
		if err != nil {
			return err
		}
		a, err := tx.GetAnnexureForUpdate(ctx, g.AnnexureID)
		if err != nil {
			return err
		}
		if a.Status != workflow.AnnexurePendingTadminReview && a.Status != workflow.AnnexurePartiallyApproved {
			return &workflow.PreconditionFailedError{
				Reason: fmt.Sprintf("annexure is %s; file groups can only be reviewed while pending traffic-admin review", a.Status),
			}
		}
		to := workflow.FileGroupApproved
		if !approve {
			to = workflow.FileGroupRejected
		}
		if !workflow.CanTransition(workflow.KindFileGroup, actor.Role, g.Status, to) {
			return &workflow.UnauthorizedTransitionError{Kind: workflow.KindFileGroup, Role: actor.Role, From: g.Status, To: to}
		}
		if err := tx.UpdateFileGroupStatus(ctx, groupID, to); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, workflow.StatusHistoryEntry{
			EntityKind: workflow.KindFileGroup, EntityID: groupID,
			FromStatus: g.Status, ToStatus: to, ChangedBy: actor.ID, Notes: reason,
		}); err != nil {
			return err
		}
		if !approve {
			if err := tx.CreateRejection(ctx, workflow.RejectionRecord{
				EntityKind: workflow.KindFileGroup, EntityID: groupID,
				RejectedBy: actor.ID, Reason: reason, Status: to,
			}); err != nil {
				return err
			}
		}

		counts, err := tx.GroupStatusCounts(ctx, g.AnnexureID)
		if err != nil {
			return err
		}
		annexureStatus := workflow.AnnexurePendingTadminReview
		if counts.Rejected > 0 && counts.Approved > 0 {
			annexureStatus = workflow.AnnexurePartiallyApproved
		}
		if annexureStatus != a.Status {
			if err := tx.UpdateAnnexureStatus(ctx, g.AnnexureID, annexureStatus, StatusPatch{}); err != nil {
				return err
			}
			if err := tx.AppendHistory(ctx, workflow.StatusHistoryEntry{
				EntityKind: workflow.KindAnnexure, EntityID: g.AnnexureID,
				FromStatus: a.Status, ToStatus: annexureStatus, ChangedBy: actor.ID,
				Notes: "file group review",
			}); err != nil {
				return err
			}
		}

		g.Status = to
		result = ReviewResult{Group: g, AnnexureStatus: annexureStatus, Counts: counts}
		return nil
	})
	s.metrics.ObserveTransition("filegroup", action, err)
	if err != nil {
		return ReviewResult{}, err
	}

	s.audit(ctx, actor, strings.ToUpper(action), groupID, reason)
	return result, nil
}

// ForwardToBoss moves a fully approved annexure to boss review.
func (s *Service) ForwardToBoss(ctx context.Context, actor shared.Actor, id uuid.UUID) (Annexure, error) {
	var forwarded Annexure
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.GetAnnexureForUpdate(ctx, id)
		if err != nil {
			return err
		}
		to := workflow.AnnexurePendingBossReview
		if !workflow.CanTransition(workflow.KindAnnexure, actor.Role, a.Status, to) {
			return &workflow.UnauthorizedTransitionError{Kind: workflow.KindAnnexure, Role: actor.Role, From: a.Status, To: to}
		}
		counts, err := tx.GroupStatusCounts(ctx, id)
		if err != nil {
			return err
		}
		if n := counts.Unapproved(); n > 0 {
			return &workflow.PreconditionFailedError{Reason: fmt.Sprintf("%d file groups are not approved", n)}
		}
		now := time.Now()
		if err := tx.UpdateAnnexureStatus(ctx, id, to, StatusPatch{TadminCompletedAt: &now}); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, workflow.StatusHistoryEntry{
			EntityKind: workflow.KindAnnexure, EntityID: id,
			FromStatus: a.Status, ToStatus: to, ChangedBy: actor.ID,
			Notes: "forwarded to boss review",
		}); err != nil {
			return err
		}
		a.Status = to
		a.TadminCompletedAt = &now
		forwarded = a
		return nil
	})
	s.metrics.ObserveTransition("annexure", "forward", err)
	if err != nil {
		return Annexure{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Title:        fmt.Sprintf("Annexure %s awaiting final approval", forwarded.Name),
		Body:         fmt.Sprintf("All file groups of annexure %s are approved by traffic admin.", forwarded.Name),
		RelatedModel: "annexure",
		RelatedID:    id.String(),
		Roles:        []workflow.Role{workflow.RoleBoss},
	})
	s.audit(ctx, actor, "FORWARD", id, "annexure forwarded to boss review")
	return forwarded, nil
}

// ApproveByBoss gives final approval.
func (s *Service) ApproveByBoss(ctx context.Context, actor shared.Actor, id uuid.UUID, notes string) (Annexure, error) {
	var approved Annexure
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.GetAnnexureForUpdate(ctx, id)
		if err != nil {
			return err
		}
		to := workflow.AnnexureApproved
		if !workflow.CanTransition(workflow.KindAnnexure, actor.Role, a.Status, to) {
			return &workflow.UnauthorizedTransitionError{Kind: workflow.KindAnnexure, Role: actor.Role, From: a.Status, To: to}
		}
		now := time.Now()
		if err := tx.UpdateAnnexureStatus(ctx, id, to, StatusPatch{BossApprovedAt: &now}); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, workflow.StatusHistoryEntry{
			EntityKind: workflow.KindAnnexure, EntityID: id,
			FromStatus: a.Status, ToStatus: to, ChangedBy: actor.ID, Notes: notes,
		}); err != nil {
			return err
		}
		a.Status = to
		a.BossApprovedAt = &now
		approved = a
		return nil
	})
	s.metrics.ObserveTransition("annexure", "approve", err)
	if err != nil {
		return Annexure{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Title:        fmt.Sprintf("Annexure %s approved", approved.Name),
		Body:         fmt.Sprintf("Annexure %s received final approval.", approved.Name),
		RelatedModel: "annexure",
		RelatedID:    id.String(),
		Vendors:      []uuid.UUID{approved.VendorID},
	})
	s.audit(ctx, actor, "APPROVE", id, "annexure approved by boss")
	return approved, nil
}

// RejectByBoss returns the annexure to the vendor with a reason.
func (s *Service) RejectByBoss(ctx context.Context, actor shared.Actor, id uuid.UUID, reason string) (Annexure, error) {
	if strings.TrimSpace(reason) == "" {
		return Annexure{}, &workflow.ValidationError{Field: "reason"}
	}
	var rejected Annexure
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.GetAnnexureForUpdate(ctx, id)
		if err != nil {
			return err
		}
		to := workflow.AnnexureRejectedByBoss
		if !workflow.CanTransition(workflow.KindAnnexure, actor.Role, a.Status, to) {
			return &workflow.UnauthorizedTransitionError{Kind: workflow.KindAnnexure, Role: actor.Role, From: a.Status, To: to}
		}
		if err := tx.UpdateAnnexureStatus(ctx, id, to, StatusPatch{}); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, workflow.StatusHistoryEntry{
			EntityKind: workflow.KindAnnexure, EntityID: id,
			FromStatus: a.Status, ToStatus: to, ChangedBy: actor.ID, Notes: reason,
		}); err != nil {
			return err
		}
		if err := tx.CreateRejection(ctx, workflow.RejectionRecord{
			EntityKind: workflow.KindAnnexure, EntityID: id,
			RejectedBy: actor.ID, Reason: reason, Status: to,
		}); err != nil {
			return err
		}
		a.Status = to
		rejected = a
		return nil
	})
	s.metrics.ObserveTransition("annexure", "reject", err)
	if err != nil {
		return Annexure{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Title:        fmt.Sprintf("Annexure %s rejected", rejected.Name),
		Body:         fmt.Sprintf("Annexure %s was rejected: %s", rejected.Name, reason),
		RelatedModel: "annexure",
		RelatedID:    id.String(),
		Vendors:      []uuid.UUID{rejected.VendorID},
		Roles:        []workflow.Role{workflow.RoleTAdmin},
	})
	s.audit(ctx, actor, "REJECT", id, reason)
	return rejected, nil
}

// Get fetches an annexure with its file groups.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (AnnexureWithGroups, error) {
	return s.repo.GetAnnexureWithGroups(ctx, id)
}

// List returns annexures matching the filter.
func (s *Service) List(ctx context.Context, req ListAnnexuresRequest) ([]Annexure, error) {
	return s.repo.ListAnnexures(ctx, req)
}

// History returns the annexure's status history, oldest first.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]workflow.StatusHistoryEntry, error) {
	return s.repo.ListHistory(ctx, id)
}

// Rejections returns the annexure's rejection records.
func (s *Service) Rejections(ctx context.Context, id uuid.UUID) ([]workflow.RejectionRecord, error) {
	return s.repo.ListRejections(ctx, id)
}

func (s *Service) audit(ctx context.Context, actor shared.Actor, action string, id uuid.UUID, description string) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, shared.AuditLog{
		ActorID:     actor.ID.String(),
		Action:      action,
		Model:       "annexure",
		RecordID:    id.String(),
		Description: description,
	}); err != nil {
		s.logger.Warn("record audit entry", slog.String("action", action), slog.Any("error", err))
	}
}
