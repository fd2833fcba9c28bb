package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carebridge/scheduling/internal/scheduling"
)

type RouterConfig struct {
	Service *scheduling.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
	Logger  zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Availability
	r.Post("/availability", publishAvailabilityHandler(cfg.Service))
	r.Post("/timeoff", publishTimeOffHandler(cfg.Service))
	r.Get("/slots", searchFreeSlotsHandler(cfg.Service))
	r.Get("/practitioners/{id}/schedule", mergedScheduleHandler(cfg.Service))

	// Booking
	r.Post("/bookings", bookSlotHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Get("/practitioners/{id}/patients", listPractitionerPatientsHandler(cfg.Service))

	// Guardian relationship graph
	r.Post("/guardians/{id}/patients", linkPatientHandler(cfg.Service))
	r.Post("/guardians/{id}/assignments", assignPractitionerHandler(cfg.Service))
	r.Get("/patients/{id}/careteam", listCareTeamHandler(cfg.Service))

	return r
}
