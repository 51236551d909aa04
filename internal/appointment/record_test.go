package appointment

import (
	"context"
	"errors"
	"testing"

	"github.com/careledger/careledger/internal/identity"
)

func mustAddRecord(t *testing.T, svc *Service, id, patientID, recordType, date, title string) *MedicalRecord {
	t.Helper()
	rec, err := svc.AddRecord(context.Background(), RecordRequest{
		RecordID:   id,
		PatientID:  patientID,
		DoctorID:   "DOC-1",
		RecordType: recordType,
		RecordDate: date,
		Title:      title,
	})
	if err != nil {
		t.Fatalf("add record %s: %v", id, err)
	}
	return rec
}

func TestAddRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := identity.WithPrincipal(context.Background(), identity.Principal{ID: "dr-lee", Role: "doctor"})

	rec, err := env.svc.AddRecord(ctx, RecordRequest{
		RecordID:   "REC-1",
		PatientID:  "PAT-1",
		DoctorID:   "DOC-1",
		RecordType: "ConsultationNote",
		RecordDate: "2025-06-10",
		Title:      "  Annual checkup  ",
		Department: "General Medicine",
		Summary:    "Patient in good health.",
		Details:    "BP 120/80, pulse 64.",
	})
	if err != nil {
		t.Fatalf("add record: %v", err)
	}
	if rec.DocType != "medical_record" {
		t.Errorf("expected docType medical_record, got %s", rec.DocType)
	}
	if rec.RecordType != RecordTypeConsultation {
		t.Errorf("expected ConsultationNote, got %s", rec.RecordType)
	}
	if rec.Title != "Annual checkup" {
		t.Errorf("expected the title trimmed, got %q", rec.Title)
	}
	if rec.CreatedBy != "dr-lee" {
		t.Errorf("expected creator dr-lee, got %s", rec.CreatedBy)
	}
	if !rec.UpdatedAt.Equal(rec.CreatedAt) {
		t.Error("expected updatedAt to equal createdAt on creation")
	}
	if len(rec.Amendments) != 0 {
		t.Errorf("expected no amendments on a fresh record, got %d", len(rec.Amendments))
	}

	stored, err := env.svc.GetRecord(ctx, "REC-1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if stored.Summary != "Patient in good health." || stored.Details != "BP 120/80, pulse 64." {
		t.Errorf("stored record differs: %+v", stored)
	}
}

func TestAddRecordValidations(t *testing.T) {
	env := newTestEnv(t)
	base := RecordRequest{
		RecordID:   "REC-1",
		PatientID:  "PAT-1",
		DoctorID:   "DOC-1",
		RecordType: "LabResult",
		RecordDate: "2025-06-10",
		Title:      "CBC panel",
	}

	t.Run("unknown record type", func(t *testing.T) {
		req := base
		req.RecordType = "Horoscope"
		_, err := env.svc.AddRecord(context.Background(), req)
		assertValidationError(t, err, "recordType")
	})
	t.Run("malformed date", func(t *testing.T) {
		req := base
		req.RecordDate = "10/06/2025"
		_, err := env.svc.AddRecord(context.Background(), req)
		assertValidationError(t, err, "recordDate")
	})
	t.Run("blank title", func(t *testing.T) {
		req := base
		req.Title = "   "
		_, err := env.svc.AddRecord(context.Background(), req)
		assertValidationError(t, err, "title")
	})
	t.Run("malformed patient id", func(t *testing.T) {
		req := base
		req.PatientID = "PAT 1"
		_, err := env.svc.AddRecord(context.Background(), req)
		assertValidationError(t, err, "patientId")
	})
}

func TestAddRecordDuplicateID(t *testing.T) {
	env := newTestEnv(t)
	mustAddRecord(t, env.svc, "REC-1", "PAT-1", "Prescription", "2025-06-10", "Amoxicillin 500mg")

	_, err := env.svc.AddRecord(context.Background(), RecordRequest{
		RecordID:   "REC-1",
		PatientID:  "PAT-2",
		DoctorID:   "DOC-2",
		RecordType: "LabResult",
		RecordDate: "2025-06-11",
		Title:      "Lipid panel",
	})
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if !cerr.Duplicate {
		t.Error("expected a duplicate-id conflict")
	}
	// The message must fit records too, not just appointments.
	if got := cerr.Error(); got != "id REC-1 already exists" {
		t.Errorf("unexpected duplicate message: %q", got)
	}
}

func TestAddRecordAppointmentLink(t *testing.T) {
	env := newTestEnv(t)
	mustSchedule(t, env.svc, "APT-1", "PAT-1", "DOC-1", "2025-06-10", "09:00", "09:30")

	rec, err := env.svc.AddRecord(context.Background(), RecordRequest{
		RecordID:      "REC-1",
		PatientID:     "PAT-1",
		DoctorID:      "DOC-1",
		AppointmentID: "APT-1",
		RecordType:    "ConsultationNote",
		RecordDate:    "2025-06-10",
		Title:         "Visit notes",
	})
	if err != nil {
		t.Fatalf("add linked record: %v", err)
	}
	if rec.AppointmentID != "APT-1" {
		t.Errorf("expected the appointment link stored, got %q", rec.AppointmentID)
	}

	t.Run("missing appointment", func(t *testing.T) {
		_, err := env.svc.AddRecord(context.Background(), RecordRequest{
			RecordID:      "REC-2",
			PatientID:     "PAT-1",
			DoctorID:      "DOC-1",
			AppointmentID: "APT-404",
			RecordType:    "ConsultationNote",
			RecordDate:    "2025-06-10",
			Title:         "Visit notes",
		})
		var nerr *NotFoundError
		if !errors.As(err, &nerr) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})

	t.Run("appointment of another patient", func(t *testing.T) {
		_, err := env.svc.AddRecord(context.Background(), RecordRequest{
			RecordID:      "REC-3",
			PatientID:     "PAT-2",
			DoctorID:      "DOC-1",
			AppointmentID: "APT-1",
			RecordType:    "ConsultationNote",
			RecordDate:    "2025-06-10",
			Title:         "Visit notes",
		})
		assertValidationError(t, err, "appointmentId")
	})
}

func TestAmendRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := identity.WithPrincipal(context.Background(), identity.Principal{ID: "dr-lee", Role: "doctor"})
	original := mustAddRecord(t, env.svc, "REC-1", "PAT-1", "Prescription", "2025-06-10", "Amoxicillin 500mg")

	_, err := env.svc.AmendRecord(ctx, "REC-1", "   ", "")
	assertValidationError(t, err, "note")

	rec, err := env.svc.AmendRecord(ctx, "REC-1", "Dosage corrected", "250mg twice daily")
	if err != nil {
		t.Fatalf("amend: %v", err)
	}
	if len(rec.Amendments) != 1 {
		t.Fatalf("expected 1 amendment, got %d", len(rec.Amendments))
	}
	a := rec.Amendments[0]
	if a.Note != "Dosage corrected" || a.Details != "250mg twice daily" || a.Actor != "dr-lee" {
		t.Errorf("unexpected amendment: %+v", a)
	}
	if a.Timestamp.IsZero() {
		t.Error("expected an amendment timestamp")
	}
	if !rec.UpdatedAt.After(original.UpdatedAt) {
		t.Error("expected updatedAt to advance")
	}

	// The original content stays untouched, corrections only accumulate.
	if rec.Title != original.Title || rec.Summary != original.Summary || rec.Details != original.Details {
		t.Errorf("amendment must not rewrite the record: %+v", rec)
	}
	rec, err = env.svc.AmendRecord(ctx, "REC-1", "Allergy noted", "")
	if err != nil {
		t.Fatalf("second amend: %v", err)
	}
	if len(rec.Amendments) != 2 || rec.Amendments[0].Note != "Dosage corrected" {
		t.Errorf("expected amendments to append in order, got %+v", rec.Amendments)
	}

	_, err = env.svc.AmendRecord(ctx, "REC-404", "note", "")
	var nerr *NotFoundError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestListPatientRecords(t *testing.T) {
	env := newTestEnv(t)
	mustAddRecord(t, env.svc, "REC-1", "PAT-1", "ConsultationNote", "2025-06-10", "First visit")
	mustAddRecord(t, env.svc, "REC-2", "PAT-1", "LabResult", "2025-06-14", "Blood work")
	mustAddRecord(t, env.svc, "REC-3", "PAT-1", "Prescription", "2025-06-12", "Antibiotics")
	mustAddRecord(t, env.svc, "REC-4", "PAT-2", "ConsultationNote", "2025-06-13", "Intake")

	recs, err := env.svc.ListPatientRecords(context.Background(), "PAT-1")
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	want := []string{"REC-2", "REC-3", "REC-1"}
	for i, rec := range recs {
		if rec.RecordID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], rec.RecordID)
		}
	}

	recs, err = env.svc.ListPatientRecords(context.Background(), "PAT-9")
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected no records for an unknown patient, got %d", len(recs))
	}
}

func TestGetRecordNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.GetRecord(context.Background(), "REC-404")
	var nerr *NotFoundError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nerr.EntityType != "medical record" || nerr.ID != "REC-404" {
		t.Errorf("unexpected not-found error: %+v", nerr)
	}
}
