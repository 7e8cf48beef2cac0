package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.Server.RateLimit.Enabled {
			r.Use(s.rateLimitMiddleware(s.cfg.Server.RateLimit))
		}

		r.Get("/health", s.handleHealth)

		r.Route("/pipeline", func(r chi.Router) {
			r.Get("/overview", s.handlePipelineOverview)
			r.Get("/status", s.handlePipelineStatus)
			r.Get("/metrics", s.handlePipelineMetrics)
			r.Get("/recent", s.handleRecentBuilds)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/overview", s.handleAnalyticsOverview)
			r.Get("/trends", s.handleAnalyticsTrends)
			r.Get("/mttr", s.handleAnalyticsMTTR)
			r.Get("/performance", s.handleAnalyticsPerformance)
			r.Get("/failures", s.handleAnalyticsFailures)
			r.Get("/workflows/comparison", s.handleWorkflowComparison)
		})

		r.Route("/builds", func(r chi.Router) {
			r.Get("/", s.handleListBuilds)
			r.Get("/{id}", s.handleGetBuild)
			r.Get("/{id}/jobs", s.handleGetBuildJobs)
			r.Get("/{id}/logs", s.handleGetBuildLogs)
			r.Get("/{id}/jobs/{jobID}/logs", s.handleGetJobLogs)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/rules", s.handleListRules)
			r.Post("/rules", s.handleCreateRule)
			r.Get("/rules/{id}", s.handleGetRule)
			r.Put("/rules/{id}", s.handleUpdateRule)
			r.Delete("/rules/{id}", s.handleDeleteRule)

			r.Get("/history", s.handleNotificationHistory)
			r.Get("/status", s.handleNotificationStatus)
			r.Post("/test", s.handleTestNotification)
			r.Post("/process-event", s.handleProcessEvent)
		})
	})

	r.Get("/", s.handleRoot)
	r.Get("/ws", s.handleWebsocket)

	return r
}

// corsMiddleware returns a CORS handler configured from the server
// config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the requesting origin so credentials work from any
		// origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
