package appointment

import (
	"context"

	"github.com/careledger/careledger/internal/identity"
	"github.com/careledger/careledger/internal/ledger"
)

// Read projections. These run inside read-only ledger views against a
// consistent snapshot and never mutate state.

// Get fetches an appointment by id.
func (s *Service) Get(ctx context.Context, appointmentID string) (*Appointment, error) {
	id, err := validateID("appointmentId", appointmentID)
	if err != nil {
		return nil, err
	}
	var appt *Appointment
	err = s.ledger.View(ctx, identity.Actor(ctx), func(tx ledger.TxContext) error {
		a, err := getAppointment(tx, id)
		if err != nil {
			return err
		}
		appt = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// History returns the append-only action log of an appointment.
func (s *Service) History(ctx context.Context, appointmentID string) ([]HistoryEntry, error) {
	appt, err := s.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	return appt.History, nil
}

// ListByPatient returns every appointment of a patient, most recent first.
func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]*Appointment, error) {
	id, err := validateID("patientId", patientID)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, ledger.Query{
		Prefix: keyPrefix,
		Conds:  []ledger.Cond{ledger.Eq("patientId", id)},
		Sort:   []ledger.SortField{ledger.Desc("appointmentDate"), ledger.Desc("startTime")},
	})
}

// ListByDoctor returns every appointment of a doctor, most recent first.
func (s *Service) ListByDoctor(ctx context.Context, doctorID string) ([]*Appointment, error) {
	id, err := validateID("doctorId", doctorID)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, ledger.Query{
		Prefix: keyPrefix,
		Conds:  []ledger.Cond{ledger.Eq("doctorId", id)},
		Sort:   []ledger.SortField{ledger.Desc("appointmentDate"), ledger.Desc("startTime")},
	})
}

// ListByDateRange returns all appointments with a date inside [from, to],
// in chronological order.
func (s *Service) ListByDateRange(ctx context.Context, from, to string) ([]*Appointment, error) {
	fromDate, err := parseDate("from", from)
	if err != nil {
		return nil, err
	}
	toDate, err := parseDate("to", to)
	if err != nil {
		return nil, err
	}
	if fromDate > toDate {
		return nil, &ValidationError{Field: "to", Reason: "must not precede from"}
	}
	return s.query(ctx, ledger.Query{
		Prefix: keyPrefix,
		Conds: []ledger.Cond{
			ledger.Gte("appointmentDate", fromDate),
			ledger.Lte("appointmentDate", toDate),
		},
		Sort: []ledger.SortField{ledger.Asc("appointmentDate"), ledger.Asc("startTime")},
	})
}

// DoctorSchedule returns the doctor's active appointments on one date,
// ordered by start time. Terminal appointments do not occupy the calendar.
func (s *Service) DoctorSchedule(ctx context.Context, doctorID, date string) ([]*Appointment, error) {
	id, err := validateID("doctorId", doctorID)
	if err != nil {
		return nil, err
	}
	day, err := parseDate("date", date)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, ledger.Query{
		Prefix: keyPrefix,
		Conds: []ledger.Cond{
			ledger.Eq("doctorId", id),
			ledger.Eq("appointmentDate", day),
			ledger.In("status", string(StatusScheduled), string(StatusConfirmed)),
		},
		Sort: []ledger.SortField{ledger.Asc("startTime")},
	})
}

// Search combines the optional filters into one scan, most recent first
// like the patient and doctor listings. Absent filters do not constrain the
// result.
func (s *Service) Search(ctx context.Context, filters SearchFilters) ([]*Appointment, error) {
	f, err := normalizeSearchFilters(filters)
	if err != nil {
		return nil, err
	}
	conds := make([]ledger.Cond, 0, 6)
	if f.PatientID != "" {
		conds = append(conds, ledger.Eq("patientId", f.PatientID))
	}
	if f.DoctorID != "" {
		conds = append(conds, ledger.Eq("doctorId", f.DoctorID))
	}
	if f.Status != "" {
		conds = append(conds, ledger.Eq("status", f.Status))
	}
	if f.From != "" {
		conds = append(conds, ledger.Gte("appointmentDate", f.From))
	}
	if f.To != "" {
		conds = append(conds, ledger.Lte("appointmentDate", f.To))
	}
	if f.Urgency != "" {
		conds = append(conds, ledger.Eq("reason.urgency", f.Urgency))
	}
	return s.query(ctx, ledger.Query{
		Prefix: keyPrefix,
		Conds:  conds,
		Sort:   []ledger.SortField{ledger.Desc("appointmentDate"), ledger.Desc("startTime")},
	})
}

func (s *Service) query(ctx context.Context, q ledger.Query) ([]*Appointment, error) {
	var out []*Appointment
	err := s.ledger.View(ctx, identity.Actor(ctx), func(tx ledger.TxContext) error {
		kvs, err := tx.Query(q)
		if err != nil {
			return err
		}
		out = make([]*Appointment, 0, len(kvs))
		for _, kv := range kvs {
			a, err := decodeAppointment(kv.Value)
			if err != nil {
				return err
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
