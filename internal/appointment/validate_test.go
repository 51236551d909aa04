package appointment

import (
	"errors"
	"testing"
)

func assertValidationError(t *testing.T, err error, field string) {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != field {
		t.Errorf("expected error on field %q, got %q (%s)", field, verr.Field, verr.Reason)
	}
}

func TestValidateID(t *testing.T) {
	cases := []struct {
		in    string
		want  string
		valid bool
	}{
		{"APT-001", "APT-001", true},
		{"  APT-001  ", "APT-001", true},
		{"doc_7.b", "doc_7.b", true},
		{"", "", false},
		{"   ", "", false},
		{"has space", "", false},
		{"has:colon", "", false},
		{"has/slash", "", false},
		{"héllo", "", false},
	}
	for _, c := range cases {
		got, err := validateID("appointmentId", c.in)
		if c.valid {
			if err != nil {
				t.Errorf("validateID(%q): unexpected error %v", c.in, err)
			}
			if got != c.want {
				t.Errorf("validateID(%q) = %q, want %q", c.in, got, c.want)
			}
			continue
		}
		if err == nil {
			t.Errorf("validateID(%q): expected error", c.in)
			continue
		}
		assertValidationError(t, err, "appointmentId")
	}
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("appointmentDate", "2025-06-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2025-06-10" {
		t.Errorf("expected 2025-06-10, got %q", got)
	}

	for _, bad := range []string{"", "tomorrow", "2025-13-01", "2025-02-30", "2025-6-1", "10-06-2025"} {
		if _, err := parseDate("appointmentDate", bad); err == nil {
			t.Errorf("parseDate(%q): expected error", bad)
		}
	}
}

func TestParseClockCanonicalizes(t *testing.T) {
	got, minutes, err := parseClock("startTime", "9:05")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "09:05" {
		t.Errorf("expected canonical 09:05, got %q", got)
	}
	if minutes != 9*60+5 {
		t.Errorf("expected 545 minutes, got %d", minutes)
	}

	for _, bad := range []string{"", "25:00", "10:60", "10.30", "noon"} {
		if _, _, err := parseClock("startTime", bad); err == nil {
			t.Errorf("parseClock(%q): expected error", bad)
		}
	}
}

func TestParseInterval(t *testing.T) {
	start, end, startMin, endMin, err := parseInterval("startTime", "09:00", "endTime", "09:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start != "09:00" || end != "09:30" {
		t.Errorf("expected canonical interval, got %s-%s", start, end)
	}
	if endMin-startMin != 30 {
		t.Errorf("expected 30 minute span, got %d", endMin-startMin)
	}

	_, _, _, _, err = parseInterval("startTime", "10:00", "endTime", "09:30")
	assertValidationError(t, err, "endTime")

	// Zero-length intervals are rejected too.
	_, _, _, _, err = parseInterval("startTime", "10:00", "endTime", "10:00")
	assertValidationError(t, err, "endTime")
}

func TestParseReason(t *testing.T) {
	r, err := parseReason(`{"purpose":"Annual checkup","symptoms":["cough"],"urgency":"urgent"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Purpose != "Annual checkup" {
		t.Errorf("expected purpose, got %q", r.Purpose)
	}
	if r.Urgency != UrgencyUrgent {
		t.Errorf("expected urgent, got %q", r.Urgency)
	}
	if len(r.Symptoms) != 1 || r.Symptoms[0] != "cough" {
		t.Errorf("expected symptoms carried through, got %v", r.Symptoms)
	}
}

func TestParseReasonDefaultsUrgency(t *testing.T) {
	r, err := parseReason(`{"purpose":"Checkup"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Urgency != UrgencyNormal {
		t.Errorf("expected urgency to default to normal, got %q", r.Urgency)
	}
}

func TestParseReasonRejections(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		field string
	}{
		{"empty", "", "reason"},
		{"malformed", `{"purpose":`, "reason"},
		{"missing purpose", `{"urgency":"normal"}`, "reason.purpose"},
		{"blank purpose", `{"purpose":"   "}`, "reason.purpose"},
		{"bad urgency", `{"purpose":"x","urgency":"asap"}`, "reason.urgency"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := parseReason(c.raw)
			assertValidationError(t, err, c.field)
		})
	}
}

func TestParseCompletionNotes(t *testing.T) {
	n, err := parseCompletionNotes(`{"diagnosis":"Flu","treatment":"Rest","prescriptionIds":["RX-1"]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Diagnosis != "Flu" || n.Treatment != "Rest" {
		t.Errorf("expected notes carried through, got %+v", n)
	}
	if len(n.PrescriptionIDs) != 1 || n.PrescriptionIDs[0] != "RX-1" {
		t.Errorf("expected prescription ids, got %v", n.PrescriptionIDs)
	}
}

func TestParseCompletionNotesEmptyIsLegal(t *testing.T) {
	n, err := parseCompletionNotes("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Diagnosis != "" || n.FollowUpRequired {
		t.Errorf("expected zero-value notes, got %+v", n)
	}
}

func TestParseCompletionNotesFollowUp(t *testing.T) {
	n, err := parseCompletionNotes(`{"followUpRequired":true,"followUpDate":"2025-07-01"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !n.FollowUpRequired || n.FollowUpDate != "2025-07-01" {
		t.Errorf("expected follow-up carried through, got %+v", n)
	}

	_, err = parseCompletionNotes(`{"followUpRequired":true}`)
	assertValidationError(t, err, "completionNotes.followUpDate")

	_, err = parseCompletionNotes(`{"followUpDate":"not-a-date"}`)
	assertValidationError(t, err, "completionNotes.followUpDate")

	_, err = parseCompletionNotes(`{"diagnosis":`)
	assertValidationError(t, err, "completionNotes")
}

func TestParseScheduleRequest(t *testing.T) {
	p, err := parseScheduleRequest(ScheduleRequest{
		AppointmentID: " APT-001 ",
		PatientID:     "PAT-001",
		DoctorID:      "DOC-001",
		Date:          "2025-06-10",
		StartTime:     "9:00",
		EndTime:       "9:45",
		ReasonJSON:    `{"purpose":"Checkup"}`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.id != "APT-001" || p.start != "09:00" || p.end != "09:45" {
		t.Errorf("expected canonical params, got %+v", p)
	}
	if p.endMin-p.startMin != 45 {
		t.Errorf("expected 45 minute span, got %d", p.endMin-p.startMin)
	}
}

func TestParseScheduleRequestFieldOrder(t *testing.T) {
	// Each missing field is reported under its own name.
	cases := []struct {
		mutate func(*ScheduleRequest)
		field  string
	}{
		{func(r *ScheduleRequest) { r.AppointmentID = "" }, "appointmentId"},
		{func(r *ScheduleRequest) { r.PatientID = "bad id" }, "patientId"},
		{func(r *ScheduleRequest) { r.DoctorID = "" }, "doctorId"},
		{func(r *ScheduleRequest) { r.Date = "June 10" }, "appointmentDate"},
		{func(r *ScheduleRequest) { r.StartTime = "late" }, "startTime"},
		{func(r *ScheduleRequest) { r.EndTime = "08:00" }, "endTime"},
		{func(r *ScheduleRequest) { r.ReasonJSON = "" }, "reason"},
	}
	for _, c := range cases {
		req := ScheduleRequest{
			AppointmentID: "APT-001",
			PatientID:     "PAT-001",
			DoctorID:      "DOC-001",
			Date:          "2025-06-10",
			StartTime:     "09:00",
			EndTime:       "09:30",
			ReasonJSON:    `{"purpose":"Checkup"}`,
		}
		c.mutate(&req)
		_, err := parseScheduleRequest(req)
		assertValidationError(t, err, c.field)
	}
}

func TestParseSearchFilters(t *testing.T) {
	f, err := ParseSearchFilters(`{"patientId":"PAT-1","status":"scheduled","from":"2025-06-01","to":"2025-06-30","urgency":"urgent"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.PatientID != "PAT-1" || f.Status != "scheduled" || f.Urgency != "urgent" {
		t.Errorf("expected filters carried through, got %+v", f)
	}

	// An empty payload selects everything.
	f, err = ParseSearchFilters("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f != (SearchFilters{}) {
		t.Errorf("expected zero filters, got %+v", f)
	}
}

func TestParseSearchFiltersRejections(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		field string
	}{
		{"malformed", `{`, "filters"},
		{"bad status", `{"status":"booked"}`, "status"},
		{"bad from", `{"from":"June"}`, "from"},
		{"inverted window", `{"from":"2025-06-30","to":"2025-06-01"}`, "to"},
		{"bad urgency", `{"urgency":"now"}`, "urgency"},
		{"bad patient id", `{"patientId":"a b"}`, "patientId"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := ParseSearchFilters(c.raw)
			assertValidationError(t, err, c.field)
		})
	}
}
