package appointment

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/careledger/careledger/internal/audit"
	"github.com/careledger/careledger/internal/events"
	"github.com/careledger/careledger/internal/identity"
	"github.com/careledger/careledger/internal/ledger"
)

const (
	EventAppointmentScheduled   = "APPOINTMENT_SCHEDULED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
	EventReminderSent           = "APPOINTMENT_REMINDER_SENT"
)

// History action names recorded on the appointment document.
const (
	actionScheduled    = "scheduled"
	actionConfirmed    = "confirmed"
	actionCompleted    = "completed"
	actionCancelled    = "cancelled"
	actionRescheduled  = "rescheduled"
	actionNoShow       = "no_show"
	actionReminderSent = "reminder_sent"
)

const defaultSlotGranule = 5

// Service executes appointment operations as ledger transactions. Every
// mutation runs inside a Submit callback, so it sees a consistent snapshot
// and is retried as a whole on commit conflicts. Audit rows and bus events
// are emitted only after the transaction has committed.
type Service struct {
	ledger  *ledger.Submitter
	audit   audit.Sink
	bus     events.Bus
	granule int
}

type Option func(*Service)

// WithSlotGranularity sets the reservation bucket width in minutes.
func WithSlotGranularity(minutes int) Option {
	return func(s *Service) {
		if minutes > 0 {
			s.granule = minutes
		}
	}
}

func NewService(sub *ledger.Submitter, sink audit.Sink, bus events.Bus, opts ...Option) *Service {
	s := &Service{
		ledger:  sub,
		audit:   sink,
		bus:     bus,
		granule: defaultSlotGranule,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule books a new appointment. It fails when the identifier is already
// taken or when the slot overlaps another active appointment of the doctor.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest) (*Appointment, error) {
	p, err := parseScheduleRequest(req)
	if err != nil {
		return nil, err
	}
	actor := identity.Actor(ctx)

	var created *Appointment
	rcpt, err := s.ledger.Submit(ctx, actor, func(tx ledger.TxContext) error {
		existing, err := tx.GetState(Key(p.id))
		if err != nil {
			return fmt.Errorf("check appointment id: %w", err)
		}
		if existing != nil {
			return &ConflictError{AppointmentIDs: []string{p.id}, Duplicate: true}
		}
		if err := checkSlotFree(tx, p.doctorID, p.date, p.start, p.end, ""); err != nil {
			return err
		}

		now := tx.Timestamp()
		appt := &Appointment{
			AppointmentID:   p.id,
			PatientID:       p.patientID,
			DoctorID:        p.doctorID,
			AppointmentDate: p.date,
			StartTime:       p.start,
			EndTime:         p.end,
			Duration:        p.endMin - p.startMin,
			Reason:          p.reason,
			Status:          StatusScheduled,
			CreatedAt:       now,
			CreatedBy:       tx.Creator(),
			UpdatedAt:       now,
			History: []HistoryEntry{{
				Action:    actionScheduled,
				Timestamp: now,
				Actor:     tx.Creator(),
			}},
		}
		if err := reserveSlots(tx, p.doctorID, p.date, p.startMin, p.endMin, s.granule, p.id); err != nil {
			return err
		}
		if err := putAppointment(tx, appt); err != nil {
			return err
		}
		created = appt
		tx.SetEvent(EventAppointmentScheduled, marshalEvent(appt))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, actor, actionScheduled, docTypeAppointment, created.AppointmentID, rcpt)
	return created, nil
}

// Confirm moves a scheduled appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, appointmentID, confirmerID string) (*Appointment, error) {
	id, err := validateID("appointmentId", appointmentID)
	if err != nil {
		return nil, err
	}
	confirmer, err := validateID("confirmerId", confirmerID)
	if err != nil {
		return nil, err
	}
	actor := identity.Actor(ctx)

	var updated *Appointment
	rcpt, err := s.ledger.Submit(ctx, actor, func(tx ledger.TxContext) error {
		appt, err := getAppointment(tx, id)
		if err != nil {
			return err
		}
		to, err := ensureTransition(appt.Status, OpConfirm)
		if err != nil {
			return err
		}

		now := tx.Timestamp()
		prev := appt.Status
		appt.Status = to
		appt.ConfirmedAt = &now
		appt.ConfirmedBy = confirmer
		appt.UpdatedAt = now
		appt.History = append(appt.History, HistoryEntry{
			Action:         actionConfirmed,
			Timestamp:      now,
			Actor:          tx.Creator(),
			PreviousStatus: prev,
		})
		if err := putAppointment(tx, appt); err != nil {
			return err
		}
		updated = appt
		tx.SetEvent(EventAppointmentConfirmed, marshalEvent(appt))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, actor, actionConfirmed, docTypeAppointment, updated.AppointmentID, rcpt)
	return updated, nil
}

// Complete closes out an appointment that took place and records the
// clinical outcome.
func (s *Service) Complete(ctx context.Context, appointmentID, notesJSON string) (*Appointment, error) {
	id, err := validateID("appointmentId", appointmentID)
	if err != nil {
		return nil, err
	}
	notes, err := parseCompletionNotes(notesJSON)
	if err != nil {
		return nil, err
	}
	actor := identity.Actor(ctx)

	var updated *Appointment
	rcpt, err := s.ledger.Submit(ctx, actor, func(tx ledger.TxContext) error {
		appt, err := getAppointment(tx, id)
		if err != nil {
			return err
		}
		to, err := ensureTransition(appt.Status, OpComplete)
		if err != nil {
			return err
		}

		now := tx.Timestamp()
		prev := appt.Status
		appt.Status = to
		appt.CompletedAt = &now
		appt.CompletionNotes = &notes
		appt.UpdatedAt = now
		appt.History = append(appt.History, HistoryEntry{
			Action:         actionCompleted,
			Timestamp:      now,
			Actor:          tx.Creator(),
			PreviousStatus: prev,
		})
		if err := releaseAppointmentSlots(tx, appt, s.granule); err != nil {
			return err
		}
		if err := putAppointment(tx, appt); err != nil {
			return err
		}
		updated = appt
		tx.SetEvent(EventAppointmentCompleted, marshalEvent(appt))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, actor, actionCompleted, docTypeAppointment, updated.AppointmentID, rcpt)
	return updated, nil
}

// Cancel voids an active appointment. The reason is mandatory and lands in
// both the document and its history.
func (s *Service) Cancel(ctx context.Context, appointmentID, cancellerID, reason string) (*Appointment, error) {
	id, err := validateID("appointmentId", appointmentID)
	if err != nil {
		return nil, err
	}
	canceller, err := validateID("cancellerId", cancellerID)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Reason: "required"}
	}
	actor := identity.Actor(ctx)

	var updated *Appointment
	rcpt, err := s.ledger.Submit(ctx, actor, func(tx ledger.TxContext) error {
		appt, err := getAppointment(tx, id)
		if err != nil {
			return err
		}
		to, err := ensureTransition(appt.Status, OpCancel)
		if err != nil {
			return err
		}

		now := tx.Timestamp()
		prev := appt.Status
		appt.Status = to
		appt.CancelledAt = &now
		appt.CancelledBy = canceller
		appt.CancelReason = reason
		appt.UpdatedAt = now
		appt.History = append(appt.History, HistoryEntry{
			Action:         actionCancelled,
			Timestamp:      now,
			Actor:          tx.Creator(),
			PreviousStatus: prev,
			Detail:         &HistoryDetail{Reason: reason},
		})
		if err := releaseAppointmentSlots(tx, appt, s.granule); err != nil {
			return err
		}
		if err := putAppointment(tx, appt); err != nil {
			return err
		}
		updated = appt
		tx.SetEvent(EventAppointmentCancelled, marshalEvent(appt))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, actor, actionCancelled, docTypeAppointment, updated.AppointmentID, rcpt)
	return updated, nil
}

// MarkNoShow records that the patient did not turn up.
func (s *Service) MarkNoShow(ctx context.Context, appointmentID string) (*Appointment, error) {
	id, err := validateID("appointmentId", appointmentID)
	if err != nil {
		return nil, err
	}
	actor := identity.Actor(ctx)

	var updated *Appointment
	rcpt, err := s.ledger.Submit(ctx, actor, func(tx ledger.TxContext) error {
		appt, err := getAppointment(tx, id)
		if err != nil {
			return err
		}
		to, err := ensureTransition(appt.Status, OpMarkNoShow)
		if err != nil {
			return err
		}

		now := tx.Timestamp()
		prev := appt.Status
		appt.Status = to
		appt.UpdatedAt = now
		appt.History = append(appt.History, HistoryEntry{
			Action:         actionNoShow,
			Timestamp:      now,
			Actor:          tx.Creator(),
			PreviousStatus: prev,
		})
		if err := releaseAppointmentSlots(tx, appt, s.granule); err != nil {
			return err
		}
		if err := putAppointment(tx, appt); err != nil {
			return err
		}
		updated = appt
		tx.SetEvent(EventAppointmentNoShow, marshalEvent(appt))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, actor, actionNoShow, docTypeAppointment, updated.AppointmentID, rcpt)
	return updated, nil
}

// AddReminder appends a reminder record. Reminders are bookkeeping, not
// transitions, so they are accepted in any status including terminal ones.
func (s *Service) AddReminder(ctx context.Context, appointmentID, reminderType string) (*Appointment, error) {
	id, err := validateID("appointmentId", appointmentID)
	if err != nil {
		return nil, err
	}
	rtype, err := validateID("reminderType", reminderType)
	if err != nil {
		return nil, err
	}
	actor := identity.Actor(ctx)

	var updated *Appointment
	rcpt, err := s.ledger.Submit(ctx, actor, func(tx ledger.TxContext) error {
		appt, err := getAppointment(tx, id)
		if err != nil {
			return err
		}

		now := tx.Timestamp()
		appt.RemindersSent = append(appt.RemindersSent, Reminder{
			Type:   rtype,
			SentAt: now,
			Status: "sent",
		})
		appt.UpdatedAt = now
		appt.History = append(appt.History, HistoryEntry{
			Action:    actionReminderSent,
			Timestamp: now,
			Actor:     tx.Creator(),
			Detail:    &HistoryDetail{ReminderType: rtype},
		})
		if err := putAppointment(tx, appt); err != nil {
			return err
		}
		updated = appt
		tx.SetEvent(EventReminderSent, marshalEvent(appt))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, actor, actionReminderSent, docTypeAppointment, updated.AppointmentID, rcpt)
	return updated, nil
}

// RescheduleResult pairs the closed-out source appointment with its
// successor.
type RescheduleResult struct {
	Original *Appointment `json:"original"`
	New      *Appointment `json:"new"`
}

// Reschedule closes the source appointment and books a successor in the new
// slot within one transaction, so no observer ever sees one without the
// other. The successor id is derived from the transaction timestamp and the
// chain root is carried in originalAppointmentId. The reason is optional and
// is kept on the source's closing history entry.
func (s *Service) Reschedule(ctx context.Context, appointmentID, newDate, newStart, newEnd, reason string) (*RescheduleResult, error) {
	id, err := validateID("appointmentId", appointmentID)
	if err != nil {
		return nil, err
	}
	date, err := parseDate("newDate", newDate)
	if err != nil {
		return nil, err
	}
	start, end, startMin, endMin, err := parseInterval("newStartTime", newStart, "newEndTime", newEnd)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	actor := identity.Actor(ctx)

	var result *RescheduleResult
	rcpt, err := s.ledger.Submit(ctx, actor, func(tx ledger.TxContext) error {
		src, err := getAppointment(tx, id)
		if err != nil {
			return err
		}
		to, err := ensureTransition(src.Status, OpReschedule)
		if err != nil {
			return err
		}

		now := tx.Timestamp()
		newID := rescheduleID(src.AppointmentID, now)
		if taken, err := tx.GetState(Key(newID)); err != nil {
			return fmt.Errorf("check successor id: %w", err)
		} else if taken != nil {
			return &ConflictError{AppointmentIDs: []string{newID}, Duplicate: true}
		}

		// Close out the source first so the overlap scan below does not
		// count the slot it is vacating.
		prev := src.Status
		src.Status = to
		src.RescheduledTo = newID
		src.UpdatedAt = now
		src.History = append(src.History, HistoryEntry{
			Action:         actionRescheduled,
			Timestamp:      now,
			Actor:          tx.Creator(),
			PreviousStatus: prev,
			Detail:         &HistoryDetail{RescheduledTo: newID, Reason: reason},
		})
		if err := releaseAppointmentSlots(tx, src, s.granule); err != nil {
			return err
		}
		if err := putAppointment(tx, src); err != nil {
			return err
		}

		if err := checkSlotFree(tx, src.DoctorID, date, start, end, src.AppointmentID); err != nil {
			return err
		}

		origin := src.OriginalAppointmentID
		if origin == "" {
			origin = src.AppointmentID
		}
		succ := &Appointment{
			AppointmentID:         newID,
			PatientID:             src.PatientID,
			DoctorID:              src.DoctorID,
			AppointmentDate:       date,
			StartTime:             start,
			EndTime:               end,
			Duration:              endMin - startMin,
			Reason:                src.Reason,
			Status:                StatusScheduled,
			CreatedAt:             now,
			CreatedBy:             tx.Creator(),
			UpdatedAt:             now,
			RescheduledFrom:       src.AppointmentID,
			OriginalAppointmentID: origin,
			History: []HistoryEntry{{
				Action:    actionScheduled,
				Timestamp: now,
				Actor:     tx.Creator(),
				Detail:    &HistoryDetail{RescheduledFrom: src.AppointmentID},
			}},
		}
		if err := reserveSlots(tx, succ.DoctorID, date, startMin, endMin, s.granule, newID); err != nil {
			return err
		}
		if err := putAppointment(tx, succ); err != nil {
			return err
		}

		result = &RescheduleResult{Original: src, New: succ}
		tx.SetEvent(EventAppointmentRescheduled, marshalEvent(succ))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, actor, actionRescheduled, docTypeAppointment, result.New.AppointmentID, rcpt)
	return result, nil
}

// rescheduleID derives a successor identifier from the source id and the
// transaction timestamp, so every peer replaying the transaction produces
// the same id.
func rescheduleID(sourceID string, ts time.Time) string {
	return fmt.Sprintf("%s_R%d%03d", sourceID, ts.Unix(), ts.Nanosecond()/1000000)
}

func releaseAppointmentSlots(store ledger.Store, a *Appointment, granule int) error {
	start, err := time.Parse(clockLayout, a.StartTime)
	if err != nil {
		return fmt.Errorf("parse stored start time %q: %w", a.StartTime, err)
	}
	end, err := time.Parse(clockLayout, a.EndTime)
	if err != nil {
		return fmt.Errorf("parse stored end time %q: %w", a.EndTime, err)
	}
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	return releaseSlots(store, a.DoctorID, a.AppointmentDate, startMin, endMin, granule, a.AppointmentID)
}

type eventDoc struct {
	AppointmentID   string `json:"appointmentId"`
	PatientID       string `json:"patientId"`
	DoctorID        string `json:"doctorId"`
	AppointmentDate string `json:"appointmentDate"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
	Status          Status `json:"status"`
	RescheduledFrom string `json:"rescheduledFrom,omitempty"`
}

func marshalEvent(a *Appointment) []byte {
	data, err := json.Marshal(eventDoc{
		AppointmentID:   a.AppointmentID,
		PatientID:       a.PatientID,
		DoctorID:        a.DoctorID,
		AppointmentDate: a.AppointmentDate,
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		Status:          a.Status,
		RescheduledFrom: a.RescheduledFrom,
	})
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", a.AppointmentID, err)
		return nil
	}
	return data
}

// emit records the committed operation with the audit sink and publishes the
// transaction event. Both happen after commit and neither can undo it, so
// failures are logged and swallowed.
func (s *Service) emit(ctx context.Context, actor, action, entityType, entityID string, rcpt *ledger.Receipt) {
	if s.audit != nil {
		entry := audit.Entry{
			Action:     action,
			EntityType: entityType,
			EntityID:   entityID,
			Actor:      actor,
			TxID:       rcpt.TxID,
			At:         rcpt.Timestamp,
		}
		if rcpt.Event != nil {
			entry.Detail = rcpt.Event.Payload
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			log.Printf("failed to record audit entry %s for %s %s: %v", action, entityType, entityID, err)
		}
	}
	if s.bus != nil && rcpt.Event != nil {
		ev := events.Event{
			Name:      rcpt.Event.Name,
			Payload:   rcpt.Event.Payload,
			TxID:      rcpt.TxID,
			Timestamp: rcpt.Timestamp,
		}
		if err := s.bus.Publish(ctx, ev); err != nil {
			log.Printf("failed to publish event %s for %s %s: %v", ev.Name, entityType, entityID, err)
		}
	}
}
