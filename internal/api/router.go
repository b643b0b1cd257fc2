package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/payments"
	"github.com/hackgods/clinic-booking/internal/settings"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

type RouterConfig struct {
	Service  *appointment.Service
	Payments *payments.Service
	// Calendar is nil when Google OAuth is not configured.
	Calendar CalendarSync
	Settings *settings.Service
	Auth     *DoctorAuth
	Health   *HealthHandler
	Metrics  http.Handler
	DoctorID uuid.UUID
	Location *time.Location
	Logger   *logging.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = cfg.Service.Location()
	}
	h := &handler{
		svc:      cfg.Service,
		payments: cfg.Payments,
		calendar: cfg.Calendar,
		settings: cfg.Settings,
		auth:     cfg.Auth,
		doctorID: cfg.DoctorID,
		loc:      loc,
		logger:   logger,
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	// Patient booking
	r.Route("/api", func(r chi.Router) {
		r.Get("/visit-types", h.listVisitTypes(true))
		r.Get("/days", h.listDays(appointment.ActorPatient))
		r.Get("/hours", h.listHours(appointment.ActorPatient))
		r.Get("/vacation-status", h.vacationStatus)
		r.Post("/appointments", h.createAppointment(appointment.ActorPatient))

		r.Route("/doctor", func(r chi.Router) {
			r.Use(cfg.Auth.Middleware)
			h.doctorRoutes(r)
		})
	})

	// Cancel links sent by SMS and email
	r.Get("/c/{token}", h.cancelInfo)
	r.Post("/c/{token}", h.cancelByToken)

	r.Route("/payments", func(r chi.Router) {
		r.Post("/init", h.initPayment)
		r.Post("/register", h.registerPayment)
		r.Post("/status", h.paymentStatus)
		r.Get("/return", h.paymentReturn)
	})

	r.Get("/oauth/google/callback", h.googleCallback)

	return r
}

func (h *handler) doctorRoutes(r chi.Router) {
	r.Get("/calendar", h.calendarView)
	r.Get("/days", h.listDays(appointment.ActorDoctor))
	r.Get("/hours", h.listHours(appointment.ActorDoctor))

	r.Post("/appointments", h.createAppointment(appointment.ActorDoctor))
	r.Route("/appointments/{id}", func(r chi.Router) {
		r.Get("/", h.getAppointment)
		r.Post("/move", h.moveAppointment)
		r.Post("/cancel", h.cancelAppointment)
		r.Post("/complete", h.completeAppointment)
		r.Post("/blacklist", h.blacklistFromAppointment)
		r.Get("/payments", h.appointmentPayments)
		r.Post("/google/sync", h.googleSync(true))
		r.Post("/google/force-add", h.googleForceAdd)
	})
	r.Post("/payments/{id}/confirm", h.confirmManualPayment)

	r.Get("/slots", h.listSlots)
	r.Put("/slots/{id}", h.setSlotActive)
	r.Post("/slots/{id}/toggle", h.toggleSlot)
	r.Post("/schedule/generate", h.generateSchedule)

	r.Get("/vacations", h.listVacations)
	r.Post("/vacations", h.createVacation)
	r.Put("/vacations/{id}", h.updateVacation)
	r.Post("/vacations/{id}/toggle", h.toggleVacation)
	r.Delete("/vacations/{id}", h.deleteVacation)

	r.Get("/blacklist", h.listBlacklist)
	r.Post("/blacklist", h.addToBlacklist)
	r.Post("/blacklist/{id}/toggle", h.toggleBlacklistEntry)
	r.Delete("/blacklist/{id}", h.removeFromBlacklist)

	r.Get("/visit-types", h.listVisitTypes(false))
	r.Post("/visit-types", h.createVisitType)
	r.Put("/visit-types/{code}", h.updateVisitType)

	r.Get("/settings", h.getSettings)
	r.Put("/settings", h.updateSettings)

	r.Get("/google", h.googleStatus)
	r.Post("/google/disconnect", h.googleDisconnect)
	r.Post("/google/sync-batch", h.googleSyncBatch)
}
