package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/dm-dispatch/internal/config"
)

// SetupRoutes builds the router. hc may be nil.
func SetupRoutes(h *Handlers, hc *HealthChecker, auth config.AuthConfig, corsCfg config.CORSConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := corsCfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Workspace-ID"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if hc != nil {
		r.Get("/health", hc.HandleHealth)
		r.Get("/health/live", hc.HandleLiveness)
		r.Get("/health/ready", hc.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"alive"}`))
		})
	}

	r.Route("/api", func(r chi.Router) {
		// Cron routes carry their own bearer-secret check.
		r.Post("/cron/process-campaigns", h.ProcessCampaigns)
		r.Get("/cron/runs", h.ListRuns)

		r.Group(func(r chi.Router) {
			r.Use(WorkspaceMiddleware(auth))

			r.Get("/jobs/{platformUserId}", h.PullJobs)
			r.Post("/jobs/status", h.ReportJobStatus)

			r.Route("/campaigns", func(r chi.Router) {
				r.Get("/", h.ListCampaigns)
				r.Post("/", h.CreateCampaign)
				r.Get("/{id}", h.GetCampaign)
				r.Post("/{id}/start", h.StartCampaign)
				r.Post("/{id}/pause", h.PauseCampaign)
				r.Post("/{id}/resume", h.ResumeCampaign)
			})
		})
	})

	return r
}
