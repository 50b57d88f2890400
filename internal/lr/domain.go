// Package lr holds the lorry receipt data model and its import/edit
// operations. LRs are created by the external WMS sync, grouped into
// annexure file groups, and billed through invoices.
package lr

import (
	"time"

	"github.com/google/uuid"
)

// LRRequest is one lorry-receipt line. Money fields are optional: the WMS
// feed frequently delivers partial rows and linkage fills them in later.
// The zero-default policy is defined once by Amount below; callers never
// re-decide nil handling ad hoc.
type LRRequest struct {
	ID            uuid.UUID
	LRNumber      string // unique across the portal
	FileNumber    string // groups LRs from one shipment job
	PriceOffered  *float64
	LRPrice       *float64 // vendor-quoted/actual cost
	PriceSettled  *float64
	ExtraCost     *float64
	ModifiedPrice *float64
	IsInvoiced    bool
	PODLink       *string // proof of delivery
	TVendorID     uuid.UUID
	AnnexureID    *uuid.UUID
	GroupID       *uuid.UUID
	InvoiceID     *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Amount resolves an optional money field to its value, defaulting nil to
// zero. This is the single zero-default policy for LR money fields.
func Amount(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// ImportLRInput is one row from the WMS import feed.
type ImportLRInput struct {
	LRNumber     string
	FileNumber   string
	PriceOffered *float64
	LRPrice      *float64
	PriceSettled *float64
	ExtraCost    *float64
	PODLink      *string
	TVendorID    uuid.UUID
}

// UpdateLRInput is a manual price/POD edit. Nil fields are left untouched.
type UpdateLRInput struct {
	LRPrice       *float64
	PriceSettled  *float64
	ExtraCost     *float64
	ModifiedPrice *float64
	PODLink       *string
}

// ListLRsRequest filters vendor LR listings.
type ListLRsRequest struct {
	TVendorID  uuid.UUID
	FileNumber string
	Unassigned bool // only LRs not yet attached to an annexure
	Uninvoiced bool
	Limit      int
	Offset     int
}
