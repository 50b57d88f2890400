package workflow

import (
	"time"

	"github.com/google/uuid"
)

// StatusHistoryEntry is one immutable record of a status change. Exactly
// one entry is written per transition per affected entity; entries are
// never updated or deleted.
type StatusHistoryEntry struct {
	ID         uuid.UUID
	EntityKind EntityKind
	EntityID   uuid.UUID
	FromStatus Status
	ToStatus   Status
	ChangedBy  uuid.UUID
	Notes      string
	At         time.Time
}

// RejectionRecord is created alongside every rejecting transition.
type RejectionRecord struct {
	ID         uuid.UUID
	EntityKind EntityKind
	EntityID   uuid.UUID
	RejectedBy uuid.UUID
	Reason     string
	Status     Status
	At         time.Time
}
