package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an entity id could not be resolved.
	ErrNotFound = errors.New("not found")
	// ErrTransactionFailure wraps store-level failures during an atomic
	// transition. The engine does not retry; callers may resubmit.
	ErrTransactionFailure = errors.New("transaction failure")
)

// ValidationError reports a missing mandatory field ahead of a transition.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// UnauthorizedTransitionError reports a role/state combination outside the
// legal transition table.
type UnauthorizedTransitionError struct {
	Kind EntityKind
	Role Role
	From Status
	To   Status
}

func (e *UnauthorizedTransitionError) Error() string {
	return fmt.Sprintf("%s transition %s -> %s not permitted for role %s", e.Kind, e.From, e.To, e.Role)
}

// PreconditionFailedError reports a transition whose guard beyond the role
// table failed, e.g. pending file groups blocking an approval.
type PreconditionFailedError struct {
	Reason string
}

func (e *PreconditionFailedError) Error() string { return e.Reason }

// IsUnauthorized reports whether err is an UnauthorizedTransitionError.
func IsUnauthorized(err error) bool {
	var ute *UnauthorizedTransitionError
	return errors.As(err, &ute)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPreconditionFailed reports whether err is a PreconditionFailedError.
func IsPreconditionFailed(err error) bool {
	var pfe *PreconditionFailedError
	return errors.As(err, &pfe)
}
