package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/upb/card-control/utils"
	"go.uber.org/zap"
)

// Checker reports whether a dependency is usable
type Checker func(ctx context.Context) error

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	checks map[string]Checker
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. checks are keyed by the name
// reported in the readiness response.
func NewHealthHandler(checks map[string]Checker, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz
// Liveness only, always 200 while the process serves requests
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, "", response)
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	allHealthy := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			checks[name] = "unhealthy"
			allHealthy = false
			continue
		}
		checks[name] = "healthy"
	}

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	var err error
	if allHealthy {
		err = utils.WriteOK(w, "", response)
	} else {
		response.Status = "unhealthy"
		err = utils.WriteFail(w, http.StatusServiceUnavailable, "", response)
	}
	if err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
