package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const defaultHealthTimeout = 5 * time.Second

// Pinger is a dependency that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check names one readiness dependency.
type Check struct {
	Name   string
	Target Pinger
}

// HealthHandler handles readiness checks over the bot's dependencies.
type HealthHandler struct {
	checks  []Check
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealthHandler creates a health handler. A zero timeout uses five seconds.
func NewHealthHandler(checks []Check, timeout time.Duration, logger *slog.Logger) *HealthHandler {
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{checks: checks, timeout: timeout, logger: logger}
}

// Probe pings every dependency and reports per-check results.
func (h *HealthHandler) Probe(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := map[string]string{"api": "ok"}
	healthy := true
	for _, c := range h.checks {
		if err := c.Target.Ping(ctx); err != nil {
			h.logger.Error("Health check failed", "check", c.Name, "error", err)
			results[c.Name] = "unreachable"
			healthy = false
			continue
		}
		results[c.Name] = "ok"
	}
	return results, healthy
}

// Ready returns the health status of the bot and its dependencies.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.Probe(r.Context())
	status := map[string]any{"status": "healthy", "checks": checks}
	statusCode := http.StatusOK
	if !healthy {
		status["status"] = "degraded"
		statusCode = http.StatusServiceUnavailable
	}
	JSON(w, statusCode, status)
}

// RegisterHealth registers the readiness route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/readyz", h.Ready)
}
