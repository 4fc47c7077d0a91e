package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/upb/integration-gateway/utils"
	"go.uber.org/zap"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"

	readinessTimeout = 5 * time.Second
)

// HealthResponse is the body of both probes
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes
type HealthHandler struct {
	checks map[string]Pinger
	logger *zap.Logger
}

// NewHealthHandler builds the probes. The database is checked as
// "database" when db is non-nil; extras are keyed by check name.
func NewHealthHandler(db *sql.DB, extras map[string]Pinger, logger *zap.Logger) *HealthHandler {
	checks := make(map[string]Pinger, len(extras)+1)
	for name, p := range extras {
		checks[name] = p
	}
	if db != nil {
		checks["database"] = databaseCheck{db}
	}
	return &HealthHandler{checks: checks, logger: logger}
}

// HandleHealth handles GET /health. It never touches dependencies.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    statusHealthy,
		Timestamp: now(),
	})
}

// HandleReadiness handles GET /health/ready, running every check in parallel
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]string, len(h.checks))
		healthy = true
	)
	for name, p := range h.checks {
		wg.Add(1)
		go func(name string, p Pinger) {
			defer wg.Done()
			err := p.Ping(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				h.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
				results[name] = statusUnhealthy
				healthy = false
				return
			}
			results[name] = statusHealthy
		}(name, p)
	}
	wg.Wait()

	resp := HealthResponse{Status: statusHealthy, Timestamp: now(), Checks: results}
	code := http.StatusOK
	if !healthy {
		resp.Status = statusUnhealthy
		code = http.StatusServiceUnavailable
	}
	if err := utils.WriteJSON(w, code, utils.SuccessResponse{Data: resp}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// databaseCheck pings the pool and runs a trivial query, since a ping can
// succeed on an idle connection the server has already dropped.
type databaseCheck struct {
	db *sql.DB
}

func (c databaseCheck) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return err
	}
	var one int
	return c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
