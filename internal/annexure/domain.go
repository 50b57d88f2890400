// Package annexure implements the annexure and file group side of the
// approval workflow: vendors batch LRs into an annexure, traffic admins
// review each file group, the boss gives final approval.
package annexure

import (
	"time"

	"github.com/google/uuid"

	"github.com/freightbill/freightbill/internal/workflow"
)

// Annexure is a batch of LRs submitted for review, grouped by shipment
// file. At most one invoice links to an annexure.
type Annexure struct {
	ID                uuid.UUID
	Name              string
	FromDate          time.Time
	ToDate            time.Time
	VendorID          uuid.UUID
	Status            workflow.Status
	InvoiceID         *uuid.UUID
	TadminCompletedAt *time.Time
	BossApprovedAt    *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FileGroup is the unit of traffic-admin approval: all LRs sharing one
// file number inside an annexure.
type FileGroup struct {
	ID         uuid.UUID
	AnnexureID uuid.UUID
	FileNumber string
	TotalPrice float64
	ExtraCost  float64
	Status     workflow.Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AnnexureWithGroups bundles an annexure with its file groups.
type AnnexureWithGroups struct {
	Annexure
	Groups []FileGroup
}

// GroupStatusCounts summarises the review progress of an annexure.
type GroupStatusCounts struct {
	Pending  int
	Approved int
	Rejected int
}

// Unapproved returns the number of groups blocking a forward to boss.
func (c GroupStatusCounts) Unapproved() int { return c.Pending + c.Rejected }

// StatusPatch carries the timestamp columns a transition may set.
type StatusPatch struct {
	TadminCompletedAt *time.Time
	BossApprovedAt    *time.Time
}

// CreateAnnexureInput builds a new annexure from vendor LRs.
type CreateAnnexureInput struct {
	Name     string
	FromDate time.Time
	ToDate   time.Time
	VendorID uuid.UUID
	LRIDs    []uuid.UUID
}

// SubmitResult reports a submission. LinkedInvoiceID is set when the
// annexure already belongs to an invoice so the caller can navigate back
// to the invoice (resubmission is invoice-centric).
type SubmitResult struct {
	Annexure        Annexure
	LinkedInvoiceID *uuid.UUID
}

// ReviewResult reports a file group review action and the annexure status
// it produced.
type ReviewResult struct {
	Group          FileGroup
	AnnexureStatus workflow.Status
	Counts         GroupStatusCounts
}

// ListAnnexuresRequest filters annexure listings.
type ListAnnexuresRequest struct {
	VendorID uuid.UUID
	Status   workflow.Status
	Limit    int
	Offset   int
}
