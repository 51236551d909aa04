package appointment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/careledger/careledger/internal/ledger"
)

// Status is the lifecycle state of an appointment. The legal moves between
// statuses are defined in transitions.go.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no-show"
	StatusRescheduled Status = "rescheduled"
)

// Terminal reports whether no further status transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

// Active reports whether the appointment still occupies its calendar slot.
// Only active appointments participate in conflict detection.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// Urgency classifies the visit reason.
type Urgency string

const (
	UrgencyNormal    Urgency = "normal"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

// Reason is the structured visit reason supplied at scheduling time.
type Reason struct {
	Purpose  string   `json:"purpose"`
	Symptoms []string `json:"symptoms,omitempty"`
	Notes    string   `json:"notes,omitempty"`
	Urgency  Urgency  `json:"urgency"`
}

// CompletionNotes is the clinical outcome attached when an appointment is
// completed.
type CompletionNotes struct {
	Diagnosis        string   `json:"diagnosis,omitempty"`
	Treatment        string   `json:"treatment,omitempty"`
	Notes            string   `json:"notes,omitempty"`
	PrescriptionIDs  []string `json:"prescriptionIds,omitempty"`
	LabTestIDs       []string `json:"labTestIds,omitempty"`
	FollowUpRequired bool     `json:"followUpRequired,omitempty"`
	FollowUpDate     string   `json:"followUpDate,omitempty"`
}

// Reminder is one entry of the append-only remindersSent list.
type Reminder struct {
	Type   string    `json:"type"`
	SentAt time.Time `json:"sentAt"`
	Status string    `json:"status"`
}

// HistoryDetail carries the operation-specific payload of a history entry.
// It is an explicit struct, never a free-form map, so its encoded bytes are
// identical on every validating node.
type HistoryDetail struct {
	Reason          string `json:"reason,omitempty"`
	RescheduledTo   string `json:"rescheduledTo,omitempty"`
	RescheduledFrom string `json:"rescheduledFrom,omitempty"`
	ReminderType    string `json:"reminderType,omitempty"`
}

// HistoryEntry is one entry of the append-only in-entity audit trail.
type HistoryEntry struct {
	Action         string         `json:"action"`
	Timestamp      time.Time      `json:"timestamp"`
	Actor          string         `json:"actor"`
	PreviousStatus Status         `json:"previousStatus,omitempty"`
	Detail         *HistoryDetail `json:"detail,omitempty"`
}

// Appointment is the aggregate stored on the ledger, one JSON document per
// appointment ID. Documents are never deleted; state changes only append.
type Appointment struct {
	DocType         string `json:"docType"`
	AppointmentID   string `json:"appointmentId"`
	PatientID       string `json:"patientId"`
	DoctorID        string `json:"doctorId"`
	AppointmentDate string `json:"appointmentDate"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
	Duration        int    `json:"duration"`
	Reason          Reason `json:"reason"`
	Status          Status `json:"status"`

	CreatedAt    time.Time  `json:"createdAt"`
	CreatedBy    string     `json:"createdBy"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	ConfirmedAt  *time.Time `json:"confirmedAt,omitempty"`
	ConfirmedBy  string     `json:"confirmedBy,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	CancelledAt  *time.Time `json:"cancelledAt,omitempty"`
	CancelledBy  string     `json:"cancelledBy,omitempty"`
	CancelReason string     `json:"cancelReason,omitempty"`

	CompletionNotes *CompletionNotes `json:"completionNotes,omitempty"`

	RescheduledFrom       string `json:"rescheduledFrom,omitempty"`
	RescheduledTo         string `json:"rescheduledTo,omitempty"`
	OriginalAppointmentID string `json:"originalAppointmentId,omitempty"`
	FollowUpAppointmentID string `json:"followUpAppointmentId,omitempty"`

	RemindersSent []Reminder     `json:"remindersSent,omitempty"`
	History       []HistoryEntry `json:"history"`
}

const (
	docTypeAppointment = "appointment"
	keyPrefix          = "appointment:"
)

// Key returns the ledger key for an appointment ID.
func Key(appointmentID string) string {
	return keyPrefix + appointmentID
}

func getAppointment(tx ledger.TxContext, appointmentID string) (*Appointment, error) {
	raw, err := tx.GetState(Key(appointmentID))
	if err != nil {
		return nil, fmt.Errorf("load appointment %s: %w", appointmentID, err)
	}
	if len(raw) == 0 {
		return nil, &NotFoundError{EntityType: docTypeAppointment, ID: appointmentID}
	}
	return decodeAppointment(raw)
}

func putAppointment(tx ledger.TxContext, a *Appointment) error {
	a.DocType = docTypeAppointment
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode appointment %s: %w", a.AppointmentID, err)
	}
	if err := tx.PutState(Key(a.AppointmentID), raw); err != nil {
		return fmt.Errorf("store appointment %s: %w", a.AppointmentID, err)
	}
	return nil
}

func decodeAppointment(raw []byte) (*Appointment, error) {
	var a Appointment
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode appointment document: %w", err)
	}
	return &a, nil
}
