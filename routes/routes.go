package routes

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/integration-gateway/app"
	"github.com/upb/integration-gateway/handlers"
	"github.com/upb/integration-gateway/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health and metrics
	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	health := handlers.NewHealthHandler(db, readinessChecks(deps), deps.Logger)
	r.Get("/health", health.HandleHealth)
	r.Get("/health/ready", health.HandleReadiness)
	if deps.Prometheus != nil {
		r.Handle("/metrics", deps.Prometheus.Handler())
	}

	// Sandbox calls: capability token in the Authorization header, no CORS
	gw := handlers.NewGatewayHandler(deps.Gateway, deps.Config.Server.MaxBodyBytes, deps.Logger)
	r.Post("/gateway/{provider}/execute", gw.HandleExecute)

	// Dashboard API
	integrations := handlers.NewIntegrationHandler(deps.Store, deps.Logger)
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Use(deps.AuthMiddleware.RequireAuth)

		r.Route("/terminals/{terminalId}/integrations", func(r chi.Router) {
			r.Get("/", integrations.HandleList)
			r.Post("/", integrations.HandleAttach)
			r.Put("/{provider}", integrations.HandleRevise)
			r.Delete("/{provider}", integrations.HandleDetach)
			r.Get("/{provider}/history", integrations.HandleHistory)
			r.Get("/{provider}/audit", integrations.HandleAudit)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// readinessChecks returns the probes beyond the primary database
func readinessChecks(deps *app.Dependencies) map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{}
	if client := deps.Redis(); client != nil {
		checks["redis"] = pingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	return checks
}
