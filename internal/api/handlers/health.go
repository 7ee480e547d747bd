package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/codereliant/pod-doctor/internal/config"
)

// Pinger reports dependency health for the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health and readiness requests
type HealthHandler struct {
	cluster Pinger
	cache   Pinger // nil when caching is disabled
	config  *config.Config
	logger  *zap.Logger
}

// NewHealthHandler creates a new health handler. cache may be nil.
func NewHealthHandler(cluster, cache Pinger, cfg *config.Config, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		cluster: cluster,
		cache:   cache,
		config:  cfg,
		logger:  logger,
	}
}

// HandleHealth handles GET /api/v1/health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": h.config.AppName,
		"version": h.config.AppVersion,
	})
}

// HandleReady handles GET /api/v1/ready. Ready means the Kubernetes API is
// reachable; the cache is reported but never gates readiness since requests
// degrade gracefully without it.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks := map[string]string{}
	status := http.StatusOK

	if err := h.cluster.Ping(ctx); err != nil {
		h.logger.Warn("kubernetes readiness check failed", zap.Error(err))
		checks["kubernetes"] = "unreachable"
		status = http.StatusServiceUnavailable
	} else {
		checks["kubernetes"] = "ok"
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			h.logger.Warn("cache readiness check failed", zap.Error(err))
			checks["cache"] = "unreachable"
		} else {
			checks["cache"] = "ok"
		}
	} else {
		checks["cache"] = "disabled"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	respondWithJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": checks,
	})
}
