// Package workflow holds the declarative transition tables shared by the
// invoice and annexure approval chains.
package workflow

// Role identifies the acting party on an engine call.
type Role string

const (
	// RoleTVendor is the transport vendor submitting documents.
	RoleTVendor Role = "TVENDOR"
	// RoleTAdmin is the traffic admin performing first-line review.
	RoleTAdmin Role = "TADMIN"
	// RoleBoss is the final approver.
	RoleBoss Role = "BOSS"

	// RoleAdmin and RoleVendor exist for the non-traffic variant of the
	// portal and do not appear in the transition tables.
	RoleAdmin  Role = "ADMIN"
	RoleVendor Role = "VENDOR"
)

// EntityKind distinguishes the state machines governed by the tables.
type EntityKind string

const (
	KindInvoice   EntityKind = "invoice"
	KindAnnexure  EntityKind = "annexure"
	KindFileGroup EntityKind = "filegroup"
)

// Status is a lifecycle state of an invoice, annexure or file group.
type Status string

// Invoice statuses.
const (
	InvoiceDraft               Status = "DRAFT"
	InvoicePendingTadminReview Status = "PENDING_TADMIN_REVIEW"
	InvoicePendingBossReview   Status = "PENDING_BOSS_REVIEW"
	InvoiceApproved            Status = "APPROVED"
	InvoicePaymentApproved     Status = "PAYMENT_APPROVED"
	InvoiceRejectedByTadmin    Status = "REJECTED_BY_TADMIN"
	InvoiceRejectedByBoss      Status = "REJECTED_BY_BOSS"
)

// Annexure statuses.
const (
	AnnexureDraft               Status = "DRAFT"
	AnnexurePendingTadminReview Status = "PENDING_TADMIN_REVIEW"
	AnnexurePartiallyApproved   Status = "PARTIALLY_APPROVED"
	AnnexureHasRejections       Status = "HAS_REJECTIONS"
	AnnexurePendingBossReview   Status = "PENDING_BOSS_REVIEW"
	AnnexureRejectedByBoss      Status = "REJECTED_BY_BOSS"
	AnnexureApproved            Status = "APPROVED"
)

// File group statuses.
const (
	FileGroupPending  Status = "PENDING"
	FileGroupApproved Status = "APPROVED"
	FileGroupRejected Status = "REJECTED"
)

// String returns the raw status value.
func (s Status) String() string { return string(s) }

// InvoiceStatuses lists every invoice status, used by the exhaustive
// table tests and by handlers validating filters.
func InvoiceStatuses() []Status {
	return []Status{
		InvoiceDraft,
		InvoicePendingTadminReview,
		InvoicePendingBossReview,
		InvoiceApproved,
		InvoicePaymentApproved,
		InvoiceRejectedByTadmin,
		InvoiceRejectedByBoss,
	}
}

// AnnexureStatuses lists every annexure status.
func AnnexureStatuses() []Status {
	return []Status{
		AnnexureDraft,
		AnnexurePendingTadminReview,
		AnnexurePartiallyApproved,
		AnnexureHasRejections,
		AnnexurePendingBossReview,
		AnnexureRejectedByBoss,
		AnnexureApproved,
	}
}

// FileGroupStatuses lists every file group status.
func FileGroupStatuses() []Status {
	return []Status{FileGroupPending, FileGroupApproved, FileGroupRejected}
}

// WorkflowRoles lists the roles that participate in the approval chain.
func WorkflowRoles() []Role {
	return []Role{RoleTVendor, RoleTAdmin, RoleBoss}
}
