// Package invoice implements the invoice side of the approval workflow
// and its cascade onto the linked annexure. Invoices are derived from an
// annexure's LRs, carry the vendor's billing document, and move through
// vendor submission, traffic-admin review, boss approval and payment
// authorisation.
package invoice

import (
	"time"

	"github.com/google/uuid"

	"github.com/freightbill/freightbill/internal/workflow"
)

// Invoice is the billable document derived from an annexure's LRs.
// ReferenceNumber is internal and generated when absent; InvoiceNumber is
// the vendor's own document number, unique per vendor.
type Invoice struct {
	ID                uuid.UUID
	ReferenceNumber   string
	InvoiceNumber     *string
	InvoiceDate       *time.Time
	BillToID          *uuid.UUID
	BillTo            *string
	BillToGSTIN       *string
	TaxRate           float64
	Subtotal          float64
	TaxAmount         float64
	GrandTotal        float64
	FileURI           *string
	Status            workflow.Status
	SubmittedAt       *time.Time
	TadminApprovedAt  *time.Time
	BossApprovedAt    *time.Time
	RejectedAt        *time.Time
	PaymentApprovedAt *time.Time
	DeletionRequested bool
	VendorID          uuid.UUID
	AnnexureID        *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Editable reports whether the vendor may still change document fields.
func (i Invoice) Editable() bool {
	switch i.Status {
	case workflow.InvoiceDraft, workflow.InvoiceRejectedByTadmin, workflow.InvoiceRejectedByBoss:
		return true
	}
	return false
}

// CreateFromAnnexureInput derives a new invoice from an approved batch of
// LRs. InvoiceNumber and billing details may arrive later via Update; they
// become mandatory at submission.
type CreateFromAnnexureInput struct {
	AnnexureID    uuid.UUID
	TaxRate       float64
	InvoiceNumber *string
	InvoiceDate   *time.Time
	BillToID      *uuid.UUID
	BillTo        *string
	BillToGSTIN   *string
}

// UpdateInvoiceInput patches document fields while the invoice is still
// editable. Nil fields are left untouched.
type UpdateInvoiceInput struct {
	InvoiceNumber *string
	InvoiceDate   *time.Time
	BillToID      *uuid.UUID
	BillTo        *string
	BillToGSTIN   *string
	FileURI       *string
	TaxRate       *float64
}

// StatusPatch carries the timestamp and flag columns a transition may set.
type StatusPatch struct {
	SubmittedAt       *time.Time
	TadminApprovedAt  *time.Time
	BossApprovedAt    *time.Time
	RejectedAt        *time.Time
	PaymentApprovedAt *time.Time
}

// ListInvoicesRequest filters invoice listings.
type ListInvoicesRequest struct {
	VendorID uuid.UUID
	Status   workflow.Status
	Limit    int
	Offset   int
}

// TransitionResult reports a committed invoice transition together with
// the annexure status the cascade produced, when one applied.
type TransitionResult struct {
	Invoice          Invoice
	CascadedAnnexure *workflow.Status
}

// Comment is one entry on an invoice's discussion thread. Submission
// writes a system comment; reviewers may add their own.
type Comment struct {
	ID        uuid.UUID `json:"id"`
	InvoiceID uuid.UUID `json:"invoiceId"`
	AuthorID  uuid.UUID `json:"authorId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}
