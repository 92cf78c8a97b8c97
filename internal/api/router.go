package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/promptforge/promptforge/internal/database"
	mw "github.com/promptforge/promptforge/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Quota
	CheckQuota http.HandlerFunc

	// Generation
	Generate http.HandlerFunc

	// Version history
	CreateVersion   http.HandlerFunc
	ListVersions    http.HandlerFunc
	CountVersions   http.HandlerFunc
	GetVersion      http.HandlerFunc
	DeleteVersion   http.HandlerFunc
	RollbackVersion http.HandlerFunc
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins  []string
	GenerateRateLimiter func(http.Handler) http.Handler
}

// NewRouter wires the HTTP surface. pool may be nil when the quota
// ledger runs on the in-memory backend; readiness then skips the
// database check.
func NewRouter(pool *pgxpool.Pool, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe — always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe — checks the database when one is configured
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
		}

		status := http.StatusOK

		if pool == nil {
			health["database"] = "not configured"
		} else if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/quota", h.CheckQuota)

		// Generation — optionally rate-limited
		r.Group(func(r chi.Router) {
			if cfg.GenerateRateLimiter != nil {
				r.Use(cfg.GenerateRateLimiter)
			}
			r.Post("/generate", h.Generate)
		})

		r.Route("/versions", func(r chi.Router) {
			r.Post("/", h.CreateVersion)
			r.Get("/", h.ListVersions)
			r.Get("/count", h.CountVersions)

			r.Route("/{versionID}", func(r chi.Router) {
				r.Get("/", h.GetVersion)
				r.Delete("/", h.DeleteVersion)
				r.Post("/rollback", h.RollbackVersion)
			})
		})
	})

	return r
}
