/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind the gateway
  3. Logger:     zap request log (method, path, status, duration, request id)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the planning frontend

ROUTE GROUPS:
  /planning/*              Month planning of a villa
  /planning-assignment/*   Assignment, validation, publication, batch
  /villas, /users          Directory
  /templates               Shift templates (JSON or YAML)
  /absences/*              Absences, counter summaries, balance check
  /counters/*              Counter administration and audit
  /appointments, /on-call  Calendars feeding availability
  /health                  Liveness probe

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/planning/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	CORSOrigins []string
	Logger      *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Month planning
	r.Route("/planning", func(r chi.Router) {
		r.Get("/villas/{villaId}", h.GetMonthPlanning)
		r.Post("/villas/{villaId}/generate", h.GenerateMonth)
		r.Post("/villas/{villaId}/affectations", h.CreateAffectation)
		r.Delete("/{planningId}", h.DeletePlanning)
		r.Get("/{planningId}/publications", h.ListPublications)
	})

	// Assignment engine, validation & publication
	r.Route("/planning-assignment", func(r chi.Router) {
		r.Post("/generate", h.ApplyTemplate)
		r.Post("/assign", h.Assign)
		r.Put("/hours/{id}", h.UpdateHours)
		r.Get("/warnings/{id}", h.GetWarnings)
		r.Get("/availability", h.GetAvailability)
		r.Post("/validate", h.Validate)
		r.Post("/publish", h.Publish)
		r.Post("/reopen", h.Reopen)
		r.Post("/batch-update", h.BatchUpdate)
		r.Post("/validate-month", h.ValidateMonth)
	})

	// Directory
	r.Route("/villas", func(r chi.Router) {
		r.Get("/", h.ListVillas)
		r.Post("/", h.CreateVilla)
		r.Delete("/{villaId}", h.DeleteVilla)
	})
	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)
		r.Post("/", h.CreateUser)
		r.Get("/{userId}", h.GetUser)
	})
	r.Route("/templates", func(r chi.Router) {
		r.Get("/", h.ListTemplates)
		r.Post("/", h.CreateTemplate)
		r.Get("/{templateId}", h.GetTemplate)
	})

	// Absences
	r.Route("/absences", func(r chi.Router) {
		r.Get("/", h.ListAbsences)
		r.Post("/", h.CreateAbsence)
		r.Get("/compteurs/{userId}", h.GetCompteurs)
		r.Post("/check-balance", h.CheckBalance)
		r.Post("/{absenceId}/approve", h.ApproveAbsence)
		r.Post("/{absenceId}/cancel", h.CancelAbsence)
		r.Post("/{absenceId}/refuse", h.RefuseAbsence)
	})

	// Counters
	r.Route("/counters", func(r chi.Router) {
		r.Post("/adjust", h.AdjustCounter)
		r.Post("/rollover", h.RolloverCounters)
		r.Get("/{userId}", h.ListCounters)
		r.Get("/{userId}/mutations", h.ListMutations)
	})

	// Calendars
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.CreateAppointment)
		r.Post("/{appointmentId}/status", h.SetAppointmentStatus)
	})
	r.Route("/on-call", func(r chi.Router) {
		r.Post("/", h.CreateOnCall)
		r.Post("/{onCallId}/assign", h.AssignOnCall)
	})

	return r
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				}
				if ww.Status() >= http.StatusInternalServerError {
					logger.Warn("request", fields...)
					return
				}
				logger.Info("request", fields...)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
