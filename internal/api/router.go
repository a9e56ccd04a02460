package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Booking BookingService
	Billing BillingService
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
	Log     zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Everything else requires a caller identity from upstream auth
	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware)

		r.Get("/departments/{id}/doctors", listDoctorsHandler(cfg.Booking))
		r.Get("/doctors/{id}/slots", listSlotsHandler(cfg.Booking))

		r.With(RequireRole(RolePatient)).Post("/appointments", bookAppointmentHandler(cfg.Booking))
		r.With(RequireRole(RolePatient)).Get("/appointments", listMyAppointmentsHandler(cfg.Booking))
		r.With(RequireRole(RolePatient)).Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Booking))
		r.With(RequireRole(RoleAdmin, RoleDoctor)).Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Booking))

		r.Get("/appointments/{id}/invoice", getAppointmentInvoiceHandler(cfg.Billing))
		r.With(RequireRole(RolePatient, RoleAdmin)).Post("/invoices/{id}/pay", payInvoiceHandler(cfg.Billing))
	})

	return r
}
