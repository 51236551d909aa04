package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/careledger/careledger/internal/appointment"
	"github.com/careledger/careledger/internal/identity"
)

func addRecordHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddRecordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		rec, err := svc.AddRecord(r.Context(), appointment.RecordRequest{
			RecordID:      req.RecordID,
			PatientID:     req.PatientID,
			DoctorID:      req.DoctorID,
			AppointmentID: req.AppointmentID,
			RecordType:    req.RecordType,
			RecordDate:    req.RecordDate,
			Title:         req.Title,
			Department:    req.Department,
			Summary:       req.Summary,
			Details:       req.Details,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

func getRecordHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := svc.GetRecord(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func amendRecordHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AmendRecordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		rec, err := svc.AmendRecord(r.Context(), chi.URLParam(r, "id"), req.Note, req.Details)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func listPatientRecordsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := svc.ListPatientRecords(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

// issueTokenHandler mints short-lived tokens. It is only mounted outside
// prod, real deployments sit behind an external identity provider.
func issueTokenHandler(secret []byte, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Subject == "" {
			writeError(w, http.StatusBadRequest, "validation_failed", "subject is required")
			return
		}

		token, err := identity.IssueToken(secret, identity.Principal{ID: req.Subject, Role: req.Role, Org: req.Org}, ttl)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, TokenResponse{Token: token})
	}
}
