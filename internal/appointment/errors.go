package appointment

import (
	"fmt"
	"strings"
)

// The four error kinds every operation can surface. All of them abort the
// surrounding transaction before any write is committed, so a failed
// operation never changes observable state.

// ValidationError reports malformed or missing caller input, naming the
// offending field. It is raised before any ledger access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports a contested identifier or calendar slot: a duplicate
// appointment or record ID at creation, or an overlapping slot at creation
// or reschedule. For overlaps AppointmentIDs enumerates the appointments
// already holding the slot; for duplicates it carries the contested id.
type ConflictError struct {
	AppointmentIDs []string
	Duplicate      bool
}

func (e *ConflictError) Error() string {
	ids := strings.Join(e.AppointmentIDs, ", ")
	if e.Duplicate {
		return fmt.Sprintf("id %s already exists", ids)
	}
	return fmt.Sprintf("slot overlaps existing appointment(s): %s", ids)
}

// NotFoundError reports an operation targeting an entity that is not on the
// ledger.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.EntityType, e.ID)
}

// InvalidStateError reports an operation that is not legal from the
// entity's current status. The entity is left unchanged.
type InvalidStateError struct {
	Status    Status
	Operation string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s appointment in status %q", e.Operation, e.Status)
}
