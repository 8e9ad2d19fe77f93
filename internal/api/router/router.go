// Package router assembles the HTTP surface: public catalog and health
// endpoints, JWT-protected patient routes and JWT-protected admin routes.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/smilepoint/clinic-server/internal/appointments"
	"github.com/smilepoint/clinic-server/internal/catalog"
	"github.com/smilepoint/clinic-server/internal/clinicsettings"
	httpmiddleware "github.com/smilepoint/clinic-server/internal/http/middleware"
	"github.com/smilepoint/clinic-server/internal/notify"
	"github.com/smilepoint/clinic-server/internal/patients"
	"github.com/smilepoint/clinic-server/internal/schedule"
	"github.com/smilepoint/clinic-server/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger              *logging.Logger
	CatalogHandler      *catalog.Handler
	PatientsHandler     *patients.Handler
	AppointmentsHandler *appointments.Handler
	ScheduleHandler     *schedule.Handler
	SettingsHandler     *clinicsettings.Handler
	NotifyHandler       *notify.Handler
	MetricsHandler      http.Handler

	AdminAuthSecret   string
	PatientAuthSecret string

	CORSAllowedOrigins []string
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints.
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.CatalogHandler != nil {
			public.Mount("/services", cfg.CatalogHandler.Routes())
		}
	})

	// Patient routes.
	if cfg.PatientAuthSecret != "" {
		r.Group(func(patient chi.Router) {
			// Booking is the write-heavy surface; keep abusive clients off it.
			patient.Use(httpmiddleware.RateLimit(10, 20))
			patient.Use(httpmiddleware.PatientJWT(cfg.PatientAuthSecret))
			if cfg.AppointmentsHandler != nil {
				patient.Mount("/appointments", cfg.AppointmentsHandler.PatientRoutes())
			}
			if cfg.PatientsHandler != nil {
				patient.Mount("/patients/me", cfg.PatientsHandler.Routes())
			}
			if cfg.NotifyHandler != nil {
				patient.Mount("/notifications", cfg.NotifyHandler.Routes())
			}
		})
	}

	// Admin routes.
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.ScheduleHandler != nil {
				admin.Mount("/clinic-calendar", cfg.ScheduleHandler.CalendarRoutes())
				admin.Mount("/dentists", cfg.ScheduleHandler.DentistRoutes())
			}
			if cfg.AppointmentsHandler != nil {
				admin.Mount("/appointments", cfg.AppointmentsHandler.AdminRoutes())
			}
			if cfg.SettingsHandler != nil {
				admin.Mount("/settings", cfg.SettingsHandler.Routes())
			}
		})
	}

	return r
}
