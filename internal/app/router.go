package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-ehr/meridian-ehr/internal/assignment"
	"github.com/meridian-ehr/meridian-ehr/internal/audit"
	"github.com/meridian-ehr/meridian-ehr/internal/authz"
	"github.com/meridian-ehr/meridian-ehr/internal/guard"
	"github.com/meridian-ehr/meridian-ehr/internal/observability"
	"github.com/meridian-ehr/meridian-ehr/internal/ratelimit"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Guard             guard.Middleware
	RateLimit         ratelimit.Middleware
	Checkpoints       authz.Checkpoints
	AssignmentHandler *assignment.Handler
	AuditHandler      *audit.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	// Every clinical route passes the injection guard, principal
	// resolution and the per-principal rate limiter, in that order.
	// The guard runs first so hostile payloads never reach a handler,
	// and the limiter runs after resolution so keys follow the
	// principal rather than the client address.
	r.Group(func(r chi.Router) {
		r.Use(params.Guard.Handler)
		r.Use(params.Checkpoints.ResolvePrincipal)
		r.Use(params.RateLimit.Handler)

		r.Route("/patients", func(r chi.Router) {
			r.Get("/", params.AssignmentHandler.HandleAccessiblePatients)

			r.Route("/{patientID}", func(r chi.Router) {
				r.With(params.Checkpoints.RequireRole(false), params.Checkpoints.VerifyOwnership).
					Get("/access", authz.HandleProbe)
				r.With(params.Checkpoints.RequireRole(true), params.Checkpoints.VerifyWriteAccess).
					Post("/access", authz.HandleProbe)
				r.With(params.Checkpoints.RequireRole(false), params.Checkpoints.VerifyOwnership).
					Get("/care-team", params.AssignmentHandler.HandleCareTeam)
				r.Post("/emergency-access", params.AssignmentHandler.HandleEmergencyAccess)
			})
		})

		r.Route("/assignments", func(r chi.Router) {
			r.Use(params.Checkpoints.RequireAdmin)
			params.AssignmentHandler.MountAdminRoutes(r)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Use(params.Checkpoints.RequireAdmin)
			params.AuditHandler.MountRoutes(r)
		})
	})

	return r
}
