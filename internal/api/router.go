package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/hackgods/hms-appointments/internal/gateway"
)

type GatewayService interface {
	http.Handler
	Routes() []gateway.Route
}

type RouterConfig struct {
	Appointments AppointmentService
	Directory    DirectoryService
	Booking      BookingService
	Gateway      GatewayService

	Postgres Pinger
	Redis    Pinger
	Logger   *zap.Logger

	Env            string
	Version        string
	JWTSecret      string
	AllowedOrigins []string
	RateLimitRPS   int
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(RecoverMiddleware(log))
	r.Use(LoggingMiddleware(log))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", staffIDHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.RateLimitRPS > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitRPS, time.Second))
	}

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(StaffAuthMiddleware(cfg.JWTSecret))

		if cfg.Directory != nil {
			r.Route("/directory", func(r chi.Router) {
				r.Get("/search", searchDirectoryHandler(cfg.Directory))
				r.Get("/entities", searchEntitiesHandler(cfg.Directory))
				r.Get("/entities/{entityID}/staff", listStaffHandler(cfg.Directory))
				r.Get("/entities/{entityID}/staff/{assignmentID}/slots", listSlotsHandler(cfg.Directory))
			})
		}

		if cfg.Booking != nil {
			r.Route("/drafts", func(r chi.Router) {
				r.Post("/", startDraftHandler(cfg.Booking))
				r.Get("/{id}", getDraftHandler(cfg.Booking))
				r.Patch("/{id}", updateDraftHandler(cfg.Booking))
				r.Post("/{id}/slots", refreshDraftSlotsHandler(cfg.Booking))
				r.Post("/{id}/submit", submitDraftHandler(cfg.Booking))
			})
		}

		if svc := cfg.Appointments; svc != nil {
			r.Route("/appointments", func(r chi.Router) {
				r.Post("/", createAppointmentHandler(svc))
				r.Get("/", listAppointmentsHandler(svc))
				r.Get("/{id}", getAppointmentHandler(svc))
				r.Post("/{id}/confirm", transitionHandler(svc.Confirm))
				r.Post("/{id}/cancel", transitionHandler(svc.Cancel))
				r.Post("/{id}/no-show", transitionHandler(svc.MarkNoShow))
				r.Post("/{id}/otp", issueOTPHandler(svc))
				r.Post("/{id}/otp/verify", verifyOTPHandler(svc))
				r.Post("/{id}/consultation/start", transitionHandler(svc.StartConsultation))
				r.Post("/{id}/consultation/end", transitionHandler(svc.EndConsultation))
				r.Post("/{id}/revoke", revokeAccessHandler(svc))
			})
			r.Get("/pets/{petID}/emr-access", petEMRAccessHandler(svc))
		}

		if gw := cfg.Gateway; gw != nil {
			r.Get("/gateway/routes", func(w http.ResponseWriter, r *http.Request) {
				routes := gw.Routes()
				writeJSON(w, http.StatusOK, ListResponse[gateway.Route]{Items: routes, Count: len(routes)})
			})
			r.Handle("/gateway/*", http.StripPrefix("/gateway", gw))
		}
	})

	return r
}
