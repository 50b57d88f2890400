package invoice

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

// Service orchestrates the invoice approval chain and its cascade onto
// the linked annexure. Each transition runs as one transaction: re-read
// the invoice under lock, guard via the transition table, write status,
// history and the cascade row, commit. Notification and audit dispatch
// happen after commit and are best-effort.
type Service struct {
	repo     Repository
	notifier Notifier
	auditor  Auditor
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewService constructs the invoice service.
func NewService(repo Repository, notifier Notifier, auditor Auditor, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, auditor: auditor, metrics: metrics, logger: logger}
}

// CreateFromAnnexure derives a DRAFT invoice from an annexure's LRs:
// subtotal over lrPrice plus extraCost, tax on top, every LR marked
// invoiced, annexure linked one to one.
func (s *Service) CreateFromAnnexure(ctx context.Context, actor shared.Actor, input CreateFromAnnexureInput) (Invoice, error) {
	if actor.Role != workflow.RoleTVendor {
		return Invoice{}, &workflow.UnauthorizedTransitionError{
			Kind: workflow.KindInvoice, Role: actor.Role, From: "", To: workflow.InvoiceDraft,
		}
	}
	if input.AnnexureID == uuid.Nil {
		return Invoice{}, &workflow.ValidationError{Field: "annexureId"}
	}

	var created Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.AnnexureForUpdate(ctx, input.AnnexureID); err != nil {
			return err
		}
		lrs, err := tx.LRsByAnnexure(ctx, input.AnnexureID)
		if err != nil {
			return err
		}
		if len(lrs) == 0 {
			return &workflow.PreconditionFailedError{Reason: "annexure has no LRs"}
		}
		var subtotal float64
		lrIDs := make([]uuid.UUID, 0, len(lrs))
		vendorID := lrs[0].TVendorID
		for _, l := range lrs {
			if l.IsInvoiced {
				return &workflow.PreconditionFailedError{Reason: fmt.Sprintf("LR %s is already invoiced", l.LRNumber)}
			}
			subtotal += lr.Amount(l.LRPrice) + lr.Amount(l.ExtraCost)
			lrIDs = append(lrIDs, l.ID)
		}

		seq, err := tx.NextReferenceSeq(ctx)
		if err != nil {
			return err
		}
		taxAmount := subtotal * input.TaxRate
		created, err = tx.CreateInvoice(ctx, Invoice{
			ReferenceNumber: fmt.Sprintf("INV-%d", seq),
			InvoiceNumber:   input.InvoiceNumber,
			InvoiceDate:     input.InvoiceDate,
			BillToID:        input.BillToID,
			BillTo:          input.BillTo,
			BillToGSTIN:     input.BillToGSTIN,
			TaxRate:         input.TaxRate,
			Subtotal:        subtotal,
			TaxAmount:       taxAmount,
			GrandTotal:      subtotal + taxAmount,
			Status:          workflow.InvoiceDraft,
			VendorID:        vendorID,
			AnnexureID:      &input.AnnexureID,
		})
		if err != nil {
			return err
		}
		if err := tx.MarkLRsInvoiced(ctx, created.ID, lrIDs); err != nil {
			return err
		}
		return tx.LinkAnnexureInvoice(ctx, input.AnnexureID, created.ID)
	})
	if err != nil {
		return Invoice{}, err
	}

	s.audit(ctx, actor, "CREATE", created.ID, fmt.Sprintf("invoice %s created from annexure", created.ReferenceNumber))
	return created, nil
}

// Update patches document fields while the invoice is still editable.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id uuid.UUID, input UpdateInvoiceInput) (Invoice, error) {
	if actor.Role != workflow.RoleTVendor {
		return Invoice{}, &workflow.UnauthorizedTransitionError{
			Kind: workflow.KindInvoice, Role: actor.Role, From: "", To: "",
		}
	}
	var updated Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !inv.Editable() {
			return &workflow.PreconditionFailedError{Reason: fmt.Sprintf("invoice is %s and can no longer be edited", inv.Status)}
		}
		if err := tx.UpdateDetails(ctx, id, input); err != nil {
			return err
		}
		updated, err = tx.GetInvoiceForUpdate(ctx, id)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	return updated, nil
}

// SubmitForReview moves the invoice to traffic-admin review. The vendor
// must have supplied the document number, date and file first.
func (s *Service) SubmitForReview(ctx context.Context, actor shared.Actor, id uuid.UUID) (TransitionResult, error) {
	var result TransitionResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch {
		case inv.InvoiceNumber == nil || strings.TrimSpace(*inv.InvoiceNumber) == "":
			return &workflow.ValidationError{Field: "invoiceNumber"}
		case inv.InvoiceDate == nil:
			return &workflow.ValidationError{Field: "invoiceDate"}
		case inv.FileURI == nil || strings.TrimSpace(*inv.FileURI) == "":
			return &workflow.ValidationError{Field: "file"}
		}
		to := workflow.InvoicePendingTadminReview
		if !workflow.CanTransition(workflow.KindInvoice, actor.Role, inv.Status, to) {
			return &workflow.UnauthorizedTransitionError{Kind: workflow.KindInvoice, Role: actor.Role, From: inv.Status, To: to}
		}
		now := time.Now()
		if err := tx.UpdateInvoiceStatus(ctx, id, to, StatusPatch{SubmittedAt: &now}); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, workflow.StatusHistoryEntry{
			EntityKind: workflow.KindInvoice, EntityID: id,
			FromStatus: inv.Status, ToStatus: to, ChangedBy: actor.ID,
			Notes: "submitted for review",
		}); err != nil {
			return err
		}
		if err := tx.InsertComment(ctx, Comment{
			InvoiceID: id,
			AuthorID:  actor.ID,
			Body:      fmt.Sprintf("Invoice %s submitted for review.", inv.ReferenceNumber),
		}); err != nil {
			return err
		}
		inv.Status = to
		inv.SubmittedAt = &now
		result = TransitionResult{Invoice: inv}
		return nil
	})
	s.metrics.ObserveTransition("invoice", "submit", err)
	if err != nil {
		return TransitionResult{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Title:        fmt.Sprintf("Invoice %s submitted for review", result.Invoice.ReferenceNumber),
		Body:         fmt.Sprintf("Vendor submitted invoice %s for %s.", result.Invoice.ReferenceNumber, notify.FormatINR(result.Invoice.GrandTotal)),
		RelatedModel: "invoice",
		RelatedID:    id.String(),
		Roles:        []workflow.Role{workflow.RoleTAdmin},
	})
	s.audit(ctx, actor, "SUBMIT", id, "invoice submitted for traffic-admin review")
	return result, nil
}

// ApproveByTadmin forwards the invoice to boss review. A linked annexure
// must have every file group approved; it is auto-forwarded alongside.
func (s *Service) ApproveByTadmin(ctx context.Context, actor shared.Actor, id uuid.UUID) (TransitionResult, error) {
	var result TransitionResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		to := workflow.InvoicePendingBossReview
		if !workflow.CanTransition(workflow.KindInvoice, actor.Role, inv.Status, to) {
			return &workflow.UnauthorizedTransitionError{Kind: workflow.KindInvoice, Role: actor.Role, From: inv.Status, To: to}
		}
		if inv.AnnexureID != nil {
			n, err := tx.CountUnapprovedFileGroups(ctx, *inv.AnnexureID)
			if err != nil {
				return err
			}
			if n > 0 {
				return &workflow.PreconditionFailedError{Reason: fmt.Sprintf("%d file groups are not approved", n)}
			}
		}
		now := time.Now()
		if err := tx.UpdateInvoiceStatus(ctx, id, to, StatusPatch{TadminApprovedAt: &now}); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, workflow.StatusHistoryEntry{
			EntityKind: workflow.KindInvoice, EntityID: id,
			FromStatus: inv.Status, ToStatus: to, ChangedBy: actor.ID,
			Notes: "approved by traffic admin",
		}); err != nil {
			return err
		}
		cascaded, err := s.cascade(ctx, tx, inv, to, actor, "auto-forwarded")
		if err != nil {
			return err
		}
		inv.Status = to
		inv.TadminApprovedAt = &now
		result = TransitionResult{Invoice: inv, CascadedAnnexure: cascaded}
		return nil
	})
	s.metrics.ObserveTransition("invoice", "tadmin_approve", err)
	if err != nil {
		return TransitionResult{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Title:        fmt.Sprintf("Invoice %s awaiting final approval", result.Invoice.ReferenceNumber),
		Body:         fmt.Sprintf("Invoice %s for %s passed traffic-admin review.", result.Invoice.ReferenceNumber, notify.FormatINR(result.Invoice.GrandTotal)),
		RelatedModel: "invoice",
		RelatedID:    id.String(),
		Roles:        []workflow.Role{workflow.RoleBoss},
	})
	s.audit(ctx, actor, "APPROVE", id, "invoice approved by traffic admin")
	return result, nil
}

// Reject moves the invoice to the rejection status matching the actor's
// role and drags the linked annexure into an editable state. A boss
// rejection also alerts traffic admins since it reverses their approval.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, id uuid.UUID, reason string) (TransitionResult, error) {
	if strings.TrimSpace(reason) == "" {
		return TransitionResult{}, &workflow.ValidationError{Field: "reason"}
	}
	var to workflow.Status
	switch actor.Role {
	case workflow.RoleTAdmin:
		to = workflow.InvoiceRejectedByTadmin
	case workflow.RoleBoss:
		to = workflow.InvoiceRejectedByBoss
	default:
		return TransitionResult{}, &workflow.UnauthorizedTransitionError{
			Kind: workflow.KindInvoice, Role: actor.Role, From: "", To: workflow.InvoiceRejectedByTadmin,
		}
	}

	var result TransitionResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !workflow.CanTransition(workflow.KindInvoice, actor.Role, inv.Status, to) {
			return &workflow.UnauthorizedTransitionError{Kind: workflow.KindInvoice, Role: actor.Role, From: inv.Status, To: to}
		}
		now := time.Now()
		if err := tx.UpdateInvoiceStatus(ctx, id, to, StatusPatch{RejectedAt: &now}); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, workflow.StatusHistoryEntry{
			EntityKind: workflow.KindInvoice, EntityID: id,
			FromStatus: inv.Status, ToStatus: to, ChangedBy: actor.ID, Notes: reason,
		}); err != nil {
			return err
		}
		if err := tx.CreateRejection(ctx, workflow.RejectionRecord{
			EntityKind: workflow.KindInvoice, EntityID: id,
			RejectedBy: actor.ID, Reason: reason, Status: to,
		}); err != nil {
			return err
		}
		cascaded, err := s.cascade(ctx, tx, inv, to, actor, "cascaded from invoice rejection")
		if err != nil {
			return err
		}
		inv.Status = to
		inv.RejectedAt = &now
		result = TransitionResult{Invoice: inv, CascadedAnnexure: cascaded}
		return nil
	})
	s.metrics.ObserveTransition("invoice", "reject", err)
	if err != nil {
		return TransitionResult{}, err
	}

	ev := notify.Event{
		Title:        fmt.Sprintf("Invoice %s rejected", result.Invoice.ReferenceNumber),
		Body:         fmt.Sprintf("Invoice %s was rejected: %s", result.Invoice.ReferenceNumber, reason),
		RelatedModel: "invoice",
		RelatedID:    id.String(),
		Vendors:      []uuid.UUID{result.Invoice.VendorID},
	}
	if actor.Role == workflow.RoleBoss {
		ev.Roles = []workflow.Role{workflow.RoleTAdmin}
	}
	s.notifier.Notify(ctx, ev)
	s.audit(ctx, actor, "REJECT", id, reason)
	return result, nil
}

// ApproveByBoss gives final approval, auto-approving the linked annexure.
func (s *Service) ApproveByBoss(ctx context.Context, actor shared.Actor, id uuid.UUID) (TransitionResult, error) {
	var result TransitionResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		to := workflow.InvoiceApproved
		if !workflow.CanTransition(workflow.KindInvoice, actor.Role, inv.Status, to) {
			return &workflow.UnauthorizedTransitionError{Kind: workflow.KindInvoice, Role: actor.Role, From: inv.Status, To: to}
		}
		now := time.Now()
		if err := tx.UpdateInvoiceStatus(ctx, id, to, StatusPatch{BossApprovedAt: &now}); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, workflow.StatusHistoryEntry{
			EntityKind: workflow.KindInvoice, EntityID: id,
			FromStatus: inv.Status, ToStatus: to, ChangedBy: actor.ID,
			Notes: "approved by boss",
		}); err != nil {
			return err
		}
		cascaded, err := s.cascade(ctx, tx, inv, to, actor, "auto-approved")
		if err != nil {
			return err
		}
		inv.Status = to
		inv.BossApprovedAt = &now
		result = TransitionResult{Invoice: inv, CascadedAnnexure: cascaded}
		return nil
	})
	s.metrics.ObserveTransition("invoice", "boss_approve", err)
	if err != nil {
		return TransitionResult{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Title:        fmt.Sprintf("Invoice %s approved", result.Invoice.ReferenceNumber),
		Body:         fmt.Sprintf("Invoice %s for %s received final approval.", result.Invoice.ReferenceNumber, notify.FormatINR(result.Invoice.GrandTotal)),
		RelatedModel: "invoice",
		RelatedID:    id.String(),
		Vendors:      []uuid.UUID{result.Invoice.VendorID},
	})
	s.audit(ctx, actor, "APPROVE", id, "invoice approved by boss")
	return result, nil
}

// AuthorizePayment releases the approved invoice for payment. No cascade.
func (s *Service) AuthorizePayment(ctx context.Context, actor shared.Actor, id uuid.UUID) (Invoice, error) {
	var authorized Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		to := workflow.InvoicePaymentApproved
		if !workflow.CanTransition(workflow.KindInvoice, actor.Role, inv.Status, to) {
			return &workflow.UnauthorizedTransitionError{Kind: workflow.KindInvoice, Role: actor.Role, From: inv.Status, To: to}
		}
		now := time.Now()
		if err := tx.UpdateInvoiceStatus(ctx, id, to, StatusPatch{PaymentApprovedAt: &now}); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, workflow.StatusHistoryEntry{
			EntityKind: workflow.KindInvoice, EntityID: id,
			FromStatus: inv.Status, ToStatus: to, ChangedBy: actor.ID,
			Notes: "payment authorised",
		}); err != nil {
			return err
		}
		inv.Status = to
		inv.PaymentApprovedAt = &now
		authorized = inv
		return nil
	})
	s.metrics.ObserveTransition("invoice", "authorize_payment", err)
	if err != nil {
		return Invoice{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Title:        fmt.Sprintf("Payment authorised for invoice %s", authorized.ReferenceNumber),
		Body:         fmt.Sprintf("Payment of %s was authorised for invoice %s.", notify.FormatINR(authorized.GrandTotal), authorized.ReferenceNumber),
		RelatedModel: "invoice",
		RelatedID:    id.String(),
		Vendors:      []uuid.UUID{authorized.VendorID},
	})
	s.audit(ctx, actor, "AUTHORIZE_PAYMENT", id, "invoice payment authorised")
	return authorized, nil
}

// RequestDeletion flags the invoice for deletion by a traffic admin. Once
// the invoice is visible to the boss or finance the request is refused.
func (s *Service) RequestDeletion(ctx context.Context, actor shared.Actor, id uuid.UUID) (Invoice, error) {
	if actor.Role != workflow.RoleTVendor {
		return Invoice{}, &workflow.UnauthorizedTransitionError{
			Kind: workflow.KindInvoice, Role: actor.Role, From: "", To: "",
		}
	}
	var flagged Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch inv.Status {
		case workflow.InvoicePendingBossReview, workflow.InvoiceRejectedByBoss,
			workflow.InvoiceApproved, workflow.InvoicePaymentApproved:
			return &workflow.PreconditionFailedError{Reason: fmt.Sprintf("invoice is %s and can no longer be deleted", inv.Status)}
		}
		if err := tx.SetDeletionRequested(ctx, id, true); err != nil {
			return err
		}
		inv.DeletionRequested = true
		flagged = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Title:        fmt.Sprintf("Deletion requested for invoice %s", flagged.ReferenceNumber),
		Body:         fmt.Sprintf("Vendor requested deletion of invoice %s.", flagged.ReferenceNumber),
		RelatedModel: "invoice",
		RelatedID:    id.String(),
		Roles:        []workflow.Role{workflow.RoleTAdmin},
	})
	s.audit(ctx, actor, "REQUEST_DELETION", id, "invoice deletion requested")
	return flagged, nil
}

// Delete purges the invoice and everything hanging off it in one
// transaction. A vendor may purge only a never-submitted draft; a traffic
// admin only after the vendor requested deletion.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch actor.Role {
		case workflow.RoleTVendor:
			if inv.Status != workflow.InvoiceDraft || inv.SubmittedAt != nil {
				return &workflow.PreconditionFailedError{Reason: "vendor may only delete a never-submitted draft invoice"}
			}
		case workflow.RoleTAdmin:
			if !inv.DeletionRequested {
				return &workflow.PreconditionFailedError{Reason: "deletion was not requested for this invoice"}
			}
		default:
			return &workflow.UnauthorizedTransitionError{
				Kind: workflow.KindInvoice, Role: actor.Role, From: inv.Status, To: "",
			}
		}

		if err := tx.ResetLRs(ctx, id); err != nil {
			return err
		}
		if err := tx.UnlinkAnnexure(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteComments(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteDocuments(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteLineItems(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteReferences(ctx, id); err != nil {
			return err
		}
		return tx.DeleteInvoice(ctx, id)
	})
	s.metrics.ObserveTransition("invoice", "delete", err)
	if err != nil {
		return err
	}

	s.audit(ctx, actor, "DELETE", id, "invoice purged")
	return nil
}

// Get fetches one invoice.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// List returns invoices matching the filter.
func (s *Service) List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, req)
}

// History returns the invoice's status history, oldest first.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]workflow.StatusHistoryEntry, error) {
	return s.repo.ListHistory(ctx, id)
}

// Rejections returns the invoice's rejection records.
func (s *Service) Rejections(ctx context.Context, id uuid.UUID) ([]workflow.RejectionRecord, error) {
	return s.repo.ListRejections(ctx, id)
}

// Comments returns the invoice's discussion thread, oldest first.
func (s *Service) Comments(ctx context.Context, id uuid.UUID) ([]Comment, error) {
	return s.repo.ListComments(ctx, id)
}

// cascade applies the annexure move implied by an invoice transition,
// with its own history row. Returns the annexure status it landed on, or
// nil when no cascade applied.
func (s *Service) cascade(ctx context.Context, tx TxRepository, inv Invoice, invoiceTo workflow.Status, actor shared.Actor, notes string) (*workflow.Status, error) {
	if inv.AnnexureID == nil {
		return nil, nil
	}
	a, err := tx.AnnexureForUpdate(ctx, *inv.AnnexureID)
	if err != nil {
		return nil, err
	}
	target, ok := workflow.CascadeOnInvoice(invoiceTo, a.Status)
	if !ok {
		return nil, nil
	}
	if err := tx.UpdateAnnexureStatus(ctx, a.ID, target); err != nil {
		return nil, err
	}
	if err := tx.AppendHistory(ctx, workflow.StatusHistoryEntry{
		EntityKind: workflow.KindAnnexure, EntityID: a.ID,
		FromStatus: a.Status, ToStatus: target, ChangedBy: actor.ID, Notes: notes,
	}); err != nil {
		return nil, err
	}
	return &target, nil
}

func (s *Service) audit(ctx context.Context, actor shared.Actor, action string, id uuid.UUID, description string) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, shared.AuditLog{
		ActorID:     actor.ID.String(),
		Action:      action,
		Model:       "invoice",
		RecordID:    id.String(),
		Description: description,
	}); err != nil {
		s.logger.Warn("record audit entry", slog.String("action", action), slog.Any("error", err))
	}
}
