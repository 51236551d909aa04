package api

import (
	"encoding/json"
)

type ScheduleAppointmentRequest struct {
	AppointmentID   string          `json:"appointment_id"`
	PatientID       string          `json:"patient_id"`
	DoctorID        string          `json:"doctor_id"`
	AppointmentDate string          `json:"appointment_date"`
	StartTime       string          `json:"start_time"`
	EndTime         string          `json:"end_time"`
	Reason          json.RawMessage `json:"reason"`
}

type ConfirmAppointmentRequest struct {
	ConfirmerID string `json:"confirmer_id"`
}

type CompleteAppointmentRequest struct {
	CompletionNotes json.RawMessage `json:"completion_notes"`
}

type CancelAppointmentRequest struct {
	CancellerID string `json:"canceller_id"`
	Reason      string `json:"reason"`
}

type RescheduleAppointmentRequest struct {
	NewDate      string `json:"new_date"`
	NewStartTime string `json:"new_start_time"`
	NewEndTime   string `json:"new_end_time"`
	Reason       string `json:"reason,omitempty"`
}

type AddReminderRequest struct {
	ReminderType string `json:"reminder_type"`
}

type AddRecordRequest struct {
	RecordID      string `json:"record_id"`
	PatientID     string `json:"patient_id"`
	DoctorID      string `json:"doctor_id"`
	AppointmentID string `json:"appointment_id,omitempty"`
	RecordType    string `json:"record_type"`
	RecordDate    string `json:"record_date"`
	Title         string `json:"title"`
	Department    string `json:"department,omitempty"`
	Summary       string `json:"summary,omitempty"`
	Details       string `json:"details,omitempty"`
}

type AmendRecordRequest struct {
	Note    string `json:"note"`
	Details string `json:"details,omitempty"`
}

type TokenRequest struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
	Org     string `json:"org,omitempty"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
