package appointment

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// The validation layer turns raw boundary input into typed, canonical
// parameters or fails with a ValidationError naming the offending field.
// It performs no ledger access and has no side effects.

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// idPattern is the caller-defined identifier charset. Keeping ledger key
// separators out of identifiers keeps composite reservation keys unambiguous.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func validateID(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", &ValidationError{Field: field, Reason: "required"}
	}
	if !idPattern.MatchString(value) {
		return "", &ValidationError{Field: field, Reason: "must contain only letters, digits, '.', '_' or '-'"}
	}
	return value, nil
}

// parseDate validates a calendar date and returns its canonical YYYY-MM-DD
// rendering.
func parseDate(field, value string) (string, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return "", &ValidationError{Field: field, Reason: "must be a calendar date in YYYY-MM-DD form"}
	}
	return t.Format(dateLayout), nil
}

// parseClock validates an HH:MM time of day and returns the canonical
// zero-padded rendering plus minutes since midnight. Canonical renderings
// order lexicographically, which the overlap test relies on.
func parseClock(field, value string) (string, int, error) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(value))
	if err != nil {
		return "", 0, &ValidationError{Field: field, Reason: "must be a time of day in HH:MM form"}
	}
	return t.Format(clockLayout), t.Hour()*60 + t.Minute(), nil
}

// parseInterval validates a same-day [start, end) pair.
func parseInterval(startField, startValue, endField, endValue string) (start, end string, startMin, endMin int, err error) {
	start, startMin, err = parseClock(startField, startValue)
	if err != nil {
		return "", "", 0, 0, err
	}
	end, endMin, err = parseClock(endField, endValue)
	if err != nil {
		return "", "", 0, 0, err
	}
	if startMin >= endMin {
		return "", "", 0, 0, &ValidationError{Field: endField, Reason: "must be after " + startField}
	}
	return start, end, startMin, endMin, nil
}

func parseUrgency(field string, value Urgency) (Urgency, error) {
	switch value {
	case "":
		return UrgencyNormal, nil
	case UrgencyNormal, UrgencyUrgent, UrgencyEmergency:
		return value, nil
	}
	return "", &ValidationError{Field: field, Reason: "must be one of normal, urgent, emergency"}
}

// parseReason decodes the reason payload and enforces its schema.
func parseReason(raw string) (Reason, error) {
	if strings.TrimSpace(raw) == "" {
		return Reason{}, &ValidationError{Field: "reason", Reason: "required"}
	}
	var r Reason
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Reason{}, &ValidationError{Field: "reason", Reason: "malformed JSON payload"}
	}
	r.Purpose = strings.TrimSpace(r.Purpose)
	if r.Purpose == "" {
		return Reason{}, &ValidationError{Field: "reason.purpose", Reason: "required"}
	}
	urgency, err := parseUrgency("reason.urgency", r.Urgency)
	if err != nil {
		return Reason{}, err
	}
	r.Urgency = urgency
	return r, nil
}

// parseCompletionNotes decodes the completion payload. An empty payload is
// legal and yields empty notes.
func parseCompletionNotes(raw string) (CompletionNotes, error) {
	var n CompletionNotes
	if strings.TrimSpace(raw) == "" {
		return n, nil
	}
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return CompletionNotes{}, &ValidationError{Field: "completionNotes", Reason: "malformed JSON payload"}
	}
	if n.FollowUpDate != "" {
		date, err := parseDate("completionNotes.followUpDate", n.FollowUpDate)
		if err != nil {
			return CompletionNotes{}, err
		}
		n.FollowUpDate = date
	}
	if n.FollowUpRequired && n.FollowUpDate == "" {
		return CompletionNotes{}, &ValidationError{Field: "completionNotes.followUpDate", Reason: "required when follow-up is requested"}
	}
	return n, nil
}

// ScheduleRequest carries raw scheduling input exactly as it crosses the
// gateway boundary.
type ScheduleRequest struct {
	AppointmentID string
	PatientID     string
	DoctorID      string
	Date          string
	StartTime     string
	EndTime       string
	ReasonJSON    string
}

type scheduleParams struct {
	id        string
	patientID string
	doctorID  string
	date      string
	start     string
	end       string
	startMin  int
	endMin    int
	reason    Reason
}

func parseScheduleRequest(req ScheduleRequest) (*scheduleParams, error) {
	var (
		p   scheduleParams
		err error
	)
	if p.id, err = validateID("appointmentId", req.AppointmentID); err != nil {
		return nil, err
	}
	if p.patientID, err = validateID("patientId", req.PatientID); err != nil {
		return nil, err
	}
	if p.doctorID, err = validateID("doctorId", req.DoctorID); err != nil {
		return nil, err
	}
	if p.date, err = parseDate("appointmentDate", req.Date); err != nil {
		return nil, err
	}
	p.start, p.end, p.startMin, p.endMin, err = parseInterval("startTime", req.StartTime, "endTime", req.EndTime)
	if err != nil {
		return nil, err
	}
	if p.reason, err = parseReason(req.ReasonJSON); err != nil {
		return nil, err
	}
	return &p, nil
}

// SearchFilters are the optional filters of the search projection. Zero
// values mean "not filtered".
type SearchFilters struct {
	PatientID string `json:"patientId,omitempty"`
	DoctorID  string `json:"doctorId,omitempty"`
	Status    string `json:"status,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Urgency   string `json:"urgency,omitempty"`
}

// ParseSearchFilters decodes and normalizes a filters payload. An empty
// payload selects everything.
func ParseSearchFilters(raw string) (SearchFilters, error) {
	var f SearchFilters
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return SearchFilters{}, &ValidationError{Field: "filters", Reason: "malformed JSON payload"}
		}
	}
	return normalizeSearchFilters(f)
}

func normalizeSearchFilters(f SearchFilters) (SearchFilters, error) {
	var err error
	if f.PatientID != "" {
		if f.PatientID, err = validateID("patientId", f.PatientID); err != nil {
			return SearchFilters{}, err
		}
	}
	if f.DoctorID != "" {
		if f.DoctorID, err = validateID("doctorId", f.DoctorID); err != nil {
			return SearchFilters{}, err
		}
	}
	if f.Status != "" {
		switch Status(f.Status) {
		case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		default:
			return SearchFilters{}, &ValidationError{Field: "status", Reason: "unknown status"}
		}
	}
	if f.From != "" {
		if f.From, err = parseDate("from", f.From); err != nil {
			return SearchFilters{}, err
		}
	}
	if f.To != "" {
		if f.To, err = parseDate("to", f.To); err != nil {
			return SearchFilters{}, err
		}
	}
	if f.From != "" && f.To != "" && f.From > f.To {
		return SearchFilters{}, &ValidationError{Field: "to", Reason: "must not precede from"}
	}
	if f.Urgency != "" {
		urgency, uerr := parseUrgency("urgency", Urgency(f.Urgency))
		if uerr != nil {
			return SearchFilters{}, uerr
		}
		f.Urgency = string(urgency)
	}
	return f, nil
}
