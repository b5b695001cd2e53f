package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/commerce-marketing/internal/auth"
)

// routes configures the router. All management routes sit behind the
// identity-provider token middleware plus an admin role check; trigger
// ingestion requires a valid principal but not the admin role, since
// storefront services fire triggers too.
func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://admin.ignitestore.io", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.verifier.Middleware)

		// Trigger ingestion: any authenticated caller
		r.Post("/automation/trigger", s.handleTrigger)

		// Management surface: admin principals only
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole("admin"))

			r.Route("/automation/rules", func(r chi.Router) {
				r.Get("/", s.handleListRules)
				r.Post("/", s.handleCreateRule)
				r.Get("/{ruleID}", s.handleGetRule)
				r.Put("/{ruleID}", s.handleUpdateRule)
				r.Post("/{ruleID}/activate", s.handleActivateRule)
				r.Post("/{ruleID}/pause", s.handlePauseRule)
				r.Get("/{ruleID}/executions", s.handleListExecutions)
			})

			r.Route("/segments", func(r chi.Router) {
				r.Get("/", s.handleListSegments)
				r.Post("/", s.handleCreateSegment)
				r.Post("/test", s.handleTestSegment)
				r.Get("/{segmentID}", s.handleGetSegment)
				r.Post("/{segmentID}/refresh", s.handleRefreshSegment)
			})

			r.Route("/campaigns", func(r chi.Router) {
				r.Get("/", s.handleListCampaigns)
				r.Post("/", s.handleCreateCampaign)
				r.Get("/{campaignID}", s.handleGetCampaign)
				r.Post("/{campaignID}/send", s.handleSendCampaign)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
