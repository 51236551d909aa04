package appointment

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/careledger/careledger/internal/identity"
	"github.com/careledger/careledger/internal/ledger"
)

const (
	EventRecordCreated = "MEDICAL_RECORD_CREATED"
	EventRecordAmended = "MEDICAL_RECORD_AMENDED"
)

// RecordRequest carries raw medical record input from the gateway.
type RecordRequest struct {
	RecordID      string `json:"recordId"`
	PatientID     string `json:"patientId"`
	DoctorID      string `json:"doctorId"`
	AppointmentID string `json:"appointmentId,omitempty"`
	RecordType    string `json:"recordType"`
	RecordDate    string `json:"recordDate"`
	Title         string `json:"title"`
	Department    string `json:"department,omitempty"`
	Summary       string `json:"summary,omitempty"`
	Details       string `json:"details,omitempty"`
}

// AddRecord files a new medical record. When the record references an
// appointment, the appointment must exist and belong to the same patient.
func (s *Service) AddRecord(ctx context.Context, req RecordRequest) (*MedicalRecord, error) {
	id, err := validateID("recordId", req.RecordID)
	if err != nil {
		return nil, err
	}
	patientID, err := validateID("patientId", req.PatientID)
	if err != nil {
		return nil, err
	}
	doctorID, err := validateID("doctorId", req.DoctorID)
	if err != nil {
		return nil, err
	}
	recordType, err := parseRecordType(req.RecordType)
	if err != nil {
		return nil, err
	}
	recordDate, err := parseDate("recordDate", req.RecordDate)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Reason: "required"}
	}
	var appointmentID string
	if req.AppointmentID != "" {
		if appointmentID, err = validateID("appointmentId", req.AppointmentID); err != nil {
			return nil, err
		}
	}
	actor := identity.Actor(ctx)

	var created *MedicalRecord
	rcpt, err := s.ledger.Submit(ctx, actor, func(tx ledger.TxContext) error {
		existing, err := tx.GetState(RecordKey(id))
		if err != nil {
			return err
		}
		if existing != nil {
			return &ConflictError{AppointmentIDs: []string{id}, Duplicate: true}
		}
		if appointmentID != "" {
			appt, err := getAppointment(tx, appointmentID)
			if err != nil {
				return err
			}
			if appt.PatientID != patientID {
				return &ValidationError{Field: "appointmentId", Reason: "appointment belongs to a different patient"}
			}
		}

		now := tx.Timestamp()
		rec := &MedicalRecord{
			RecordID:      id,
			PatientID:     patientID,
			DoctorID:      doctorID,
			AppointmentID: appointmentID,
			RecordType:    recordType,
			RecordDate:    recordDate,
			Title:         title,
			Department:    strings.TrimSpace(req.Department),
			Summary:       req.Summary,
			Details:       req.Details,
			CreatedAt:     now,
			CreatedBy:     tx.Creator(),
			UpdatedAt:     now,
		}
		if err := putRecord(tx, rec); err != nil {
			return err
		}
		created = rec
		tx.SetEvent(EventRecordCreated, marshalRecordEvent(rec))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, actor, "record_created", docTypeRecord, created.RecordID, rcpt)
	return created, nil
}

// AmendRecord appends an addendum. The original summary and details are
// immutable once filed.
func (s *Service) AmendRecord(ctx context.Context, recordID, note, details string) (*MedicalRecord, error) {
	id, err := validateID("recordId", recordID)
	if err != nil {
		return nil, err
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, &ValidationError{Field: "note", Reason: "required"}
	}
	actor := identity.Actor(ctx)

	var updated *MedicalRecord
	rcpt, err := s.ledger.Submit(ctx, actor, func(tx ledger.TxContext) error {
		rec, err := getRecord(tx, id)
		if err != nil {
			return err
		}
		now := tx.Timestamp()
		rec.Amendments = append(rec.Amendments, Amendment{
			Timestamp: now,
			Actor:     tx.Creator(),
			Note:      note,
			Details:   details,
		})
		rec.UpdatedAt = now
		if err := putRecord(tx, rec); err != nil {
			return err
		}
		updated = rec
		tx.SetEvent(EventRecordAmended, marshalRecordEvent(rec))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, actor, "record_amended", docTypeRecord, updated.RecordID, rcpt)
	return updated, nil
}

// GetRecord fetches a medical record by id.
func (s *Service) GetRecord(ctx context.Context, recordID string) (*MedicalRecord, error) {
	id, err := validateID("recordId", recordID)
	if err != nil {
		return nil, err
	}
	var rec *MedicalRecord
	err = s.ledger.View(ctx, identity.Actor(ctx), func(tx ledger.TxContext) error {
		r, err := getRecord(tx, id)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListPatientRecords returns a patient's medical records, newest first.
func (s *Service) ListPatientRecords(ctx context.Context, patientID string) ([]*MedicalRecord, error) {
	id, err := validateID("patientId", patientID)
	if err != nil {
		return nil, err
	}
	var out []*MedicalRecord
	err = s.ledger.View(ctx, identity.Actor(ctx), func(tx ledger.TxContext) error {
		kvs, err := tx.Query(ledger.Query{
			Prefix: recordKeyPrefix,
			Conds:  []ledger.Cond{ledger.Eq("patientId", id)},
			Sort:   []ledger.SortField{ledger.Desc("recordDate")},
		})
		if err != nil {
			return err
		}
		out = make([]*MedicalRecord, 0, len(kvs))
		for _, kv := range kvs {
			r, err := decodeRecord(kv.Value)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type recordEventDoc struct {
	RecordID      string     `json:"recordId"`
	PatientID     string     `json:"patientId"`
	DoctorID      string     `json:"doctorId"`
	AppointmentID string     `json:"appointmentId,omitempty"`
	RecordType    RecordType `json:"recordType"`
	RecordDate    string     `json:"recordDate"`
}

func marshalRecordEvent(r *MedicalRecord) []byte {
	data, err := json.Marshal(recordEventDoc{
		RecordID:      r.RecordID,
		PatientID:     r.PatientID,
		DoctorID:      r.DoctorID,
		AppointmentID: r.AppointmentID,
		RecordType:    r.RecordType,
		RecordDate:    r.RecordDate,
	})
	if err != nil {
		log.Printf("failed to marshal record event payload for %s: %v", r.RecordID, err)
		return nil
	}
	return data
}
