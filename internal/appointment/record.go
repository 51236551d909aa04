package appointment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/careledger/careledger/internal/ledger"
)

// RecordType classifies a medical record.
type RecordType string

const (
	RecordTypeConsultation     RecordType = "ConsultationNote"
	RecordTypeLabResult        RecordType = "LabResult"
	RecordTypePrescription     RecordType = "Prescription"
	RecordTypeImagingReport    RecordType = "ImagingReport"
	RecordTypeVaccination      RecordType = "VaccinationRecord"
	RecordTypeAllergy          RecordType = "AllergyRecord"
	RecordTypeDischargeSummary RecordType = "DischargeSummary"
)

func parseRecordType(value string) (RecordType, error) {
	switch t := RecordType(strings.TrimSpace(value)); t {
	case RecordTypeConsultation, RecordTypeLabResult, RecordTypePrescription,
		RecordTypeImagingReport, RecordTypeVaccination, RecordTypeAllergy,
		RecordTypeDischargeSummary:
		return t, nil
	}
	return "", &ValidationError{Field: "recordType", Reason: "unknown record type"}
}

// Amendment is an addendum to a medical record. The original content is
// never rewritten, corrections are appended.
type Amendment struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Note      string    `json:"note"`
	Details   string    `json:"details,omitempty"`
}

// MedicalRecord is a clinical document tied to a patient and optionally to
// the appointment it originated from.
type MedicalRecord struct {
	DocType       string     `json:"docType"`
	RecordID      string     `json:"recordId"`
	PatientID     string     `json:"patientId"`
	DoctorID      string     `json:"doctorId"`
	AppointmentID string     `json:"appointmentId,omitempty"`
	RecordType    RecordType `json:"recordType"`
	RecordDate    string     `json:"recordDate"`
	Title         string     `json:"title"`
	Department    string     `json:"department,omitempty"`
	Summary       string     `json:"summary,omitempty"`
	Details       string     `json:"details,omitempty"`

	CreatedAt  time.Time   `json:"createdAt"`
	CreatedBy  string      `json:"createdBy"`
	UpdatedAt  time.Time   `json:"updatedAt"`
	Amendments []Amendment `json:"amendments,omitempty"`
}

const (
	docTypeRecord   = "medical_record"
	recordKeyPrefix = "record:"
)

// RecordKey builds the state key for a medical record id.
func RecordKey(recordID string) string {
	return recordKeyPrefix + recordID
}

func getRecord(tx ledger.TxContext, recordID string) (*MedicalRecord, error) {
	raw, err := tx.GetState(RecordKey(recordID))
	if err != nil {
		return nil, fmt.Errorf("read record %s: %w", recordID, err)
	}
	if raw == nil {
		return nil, &NotFoundError{EntityType: "medical record", ID: recordID}
	}
	return decodeRecord(raw)
}

func putRecord(tx ledger.TxContext, r *MedicalRecord) error {
	r.DocType = docTypeRecord
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", r.RecordID, err)
	}
	if err := tx.PutState(RecordKey(r.RecordID), raw); err != nil {
		return fmt.Errorf("write record %s: %w", r.RecordID, err)
	}
	return nil
}

func decodeRecord(raw []byte) (*MedicalRecord, error) {
	var r MedicalRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &r, nil
}
