package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/careledger/careledger/internal/appointment"
	"github.com/careledger/careledger/internal/ledger"
)

type RouterConfig struct {
	Service   *appointment.Service
	Ledger    *ledger.Ledger
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	JWTSecret []byte
	TokenTTL  time.Duration
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.Ledger, cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Token minting for local development
	if cfg.Env != "prod" {
		r.Post("/auth/token", issueTokenHandler(cfg.JWTSecret, cfg.TokenTTL))
	}

	// Everything below requires an authenticated principal
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Post("/appointments", scheduleAppointmentHandler(cfg.Service))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/appointments/range", listAppointmentsByRangeHandler(cfg.Service))
		r.Post("/appointments/search", searchAppointmentsHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Get("/appointments/{id}/history", appointmentHistoryHandler(cfg.Service))
		r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/no-show", markNoShowHandler(cfg.Service))
		r.Post("/appointments/{id}/reminders", addReminderHandler(cfg.Service))

		r.Get("/doctors/{id}/schedule", doctorScheduleHandler(cfg.Service))

		r.Post("/records", addRecordHandler(cfg.Service))
		r.Get("/records/{id}", getRecordHandler(cfg.Service))
		r.Post("/records/{id}/amendments", amendRecordHandler(cfg.Service))
		r.Get("/patients/{id}/records", listPatientRecordsHandler(cfg.Service))
	})

	return r
}
