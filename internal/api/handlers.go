package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/careledger/careledger/internal/appointment"
	"github.com/careledger/careledger/internal/ledger"
)

func scheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Schedule(r.Context(), appointment.ScheduleRequest{
			AppointmentID: req.AppointmentID,
			PatientID:     req.PatientID,
			DoctorID:      req.DoctorID,
			Date:          req.AppointmentDate,
			StartTime:     req.StartTime,
			EndTime:       req.EndTime,
			ReasonJSON:    string(req.Reason),
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appt)
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func appointmentHistoryHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history, err := svc.History(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, history)
	}
}

// listAppointmentsHandler serves both per-patient and per-doctor listings,
// selected by query parameter.
func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID := r.URL.Query().Get("patient_id")
		doctorID := r.URL.Query().Get("doctor_id")

		var (
			appts []*appointment.Appointment
			err   error
		)
		switch {
		case patientID != "" && doctorID != "":
			writeError(w, http.StatusBadRequest, "invalid_query", "pass either patient_id or doctor_id, not both")
			return
		case patientID != "":
			appts, err = svc.ListByPatient(r.Context(), patientID)
		case doctorID != "":
			appts, err = svc.ListByDoctor(r.Context(), doctorID)
		default:
			writeError(w, http.StatusBadRequest, "invalid_query", "patient_id or doctor_id is required")
			return
		}
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appts)
	}
}

func listAppointmentsByRangeHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appts, err := svc.ListByDateRange(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appts)
	}
}

func doctorScheduleHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appts, err := svc.DoctorSchedule(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("date"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appts)
	}
}

func searchAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filters appointment.SearchFilters
		if err := json.NewDecoder(r.Body).Decode(&filters); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appts, err := svc.Search(r.Context(), filters)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appts)
	}
}

func confirmAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConfirmAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Confirm(r.Context(), chi.URLParam(r, "id"), req.ConfirmerID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CompleteAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Complete(r.Context(), chi.URLParam(r, "id"), string(req.CompletionNotes))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CancelAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Cancel(r.Context(), chi.URLParam(r, "id"), req.CancellerID, req.Reason)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		result, err := svc.Reschedule(r.Context(), chi.URLParam(r, "id"), req.NewDate, req.NewStartTime, req.NewEndTime, req.Reason)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	}
}

func markNoShowHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := svc.MarkNoShow(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func addReminderHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddReminderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.AddReminder(r.Context(), chi.URLParam(r, "id"), req.ReminderType)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

// handleServiceError maps the service's typed errors onto HTTP statuses.
func handleServiceError(w http.ResponseWriter, err error) {
	var (
		validationErr   *appointment.ValidationError
		notFoundErr     *appointment.NotFoundError
		conflictErr     *appointment.ConflictError
		invalidStateErr *appointment.InvalidStateError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "validation_failed", validationErr.Error())
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusNotFound, "not_found", notFoundErr.Error())
	case errors.As(err, &conflictErr):
		code := "schedule_conflict"
		if conflictErr.Duplicate {
			code = "duplicate_id"
		}
		writeError(w, http.StatusConflict, code, conflictErr.Error())
	case errors.As(err, &invalidStateErr):
		writeError(w, http.StatusConflict, "invalid_state", invalidStateErr.Error())
	case errors.Is(err, ledger.ErrTxConflict):
		writeError(w, http.StatusConflict, "tx_conflict", "transaction conflicted with concurrent writes, please retry")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
