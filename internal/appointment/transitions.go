package appointment

// Operation names as they appear in InvalidStateError messages and history
// entries.
const (
	OpSchedule    = "schedule"
	OpConfirm     = "confirm"
	OpComplete    = "complete"
	OpCancel      = "cancel"
	OpReschedule  = "reschedule"
	OpMarkNoShow  = "mark-no-show"
	OpAddReminder = "add-reminder"
)

// transitions is the authoritative status graph. Terminal statuses have no
// outgoing edges, so once an appointment completes, cancels, no-shows or
// reschedules it can never move again. Reminders are recorded regardless of
// status and therefore do not appear here.
var transitions = map[Status]map[string]Status{
	StatusScheduled: {
		OpConfirm:    StatusConfirmed,
		OpComplete:   StatusCompleted,
		OpCancel:     StatusCancelled,
		OpReschedule: StatusRescheduled,
		OpMarkNoShow: StatusNoShow,
	},
	StatusConfirmed: {
		OpComplete:   StatusCompleted,
		OpCancel:     StatusCancelled,
		OpReschedule: StatusRescheduled,
		OpMarkNoShow: StatusNoShow,
	},
}

// ensureTransition resolves the target status for applying op to an
// appointment currently in from, or fails with InvalidStateError.
func ensureTransition(from Status, op string) (Status, error) {
	if to, ok := transitions[from][op]; ok {
		return to, nil
	}
	return "", &InvalidStateError{Status: from, Operation: op}
}
