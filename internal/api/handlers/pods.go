package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/codereliant/pod-doctor/internal/inspector"
)

// ClusterLister lists namespaces and pods for discovery endpoints.
type ClusterLister interface {
	ListNamespaces(ctx context.Context) ([]string, error)
	ListPods(ctx context.Context, namespace string) ([]string, error)
}

// PodsHandler handles namespace and pod discovery requests
type PodsHandler struct {
	lister ClusterLister
	logger *zap.Logger
}

// NewPodsHandler creates a new discovery handler
func NewPodsHandler(lister ClusterLister, logger *zap.Logger) *PodsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PodsHandler{
		lister: lister,
		logger: logger,
	}
}

// HandleNamespaces handles GET /api/v1/namespaces
func (h *PodsHandler) HandleNamespaces(w http.ResponseWriter, r *http.Request) {
	names, err := h.lister.ListNamespaces(r.Context())
	if err != nil {
		h.logger.Error("namespace list failed", zap.Error(err))
		respondWithError(w, listStatus(err), "failed to list namespaces")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string][]string{"namespaces": names})
}

// HandlePods handles GET /api/v1/namespaces/{namespace}/pods
func (h *PodsHandler) HandlePods(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	if namespace == "" {
		respondWithError(w, http.StatusBadRequest, "namespace is required")
		return
	}

	names, err := h.lister.ListPods(r.Context(), namespace)
	if err != nil {
		h.logger.Error("pod list failed",
			zap.String("namespace", namespace),
			zap.Error(err),
		)
		respondWithError(w, listStatus(err), "failed to list pods")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string][]string{"pods": names})
}

func listStatus(err error) int {
	switch {
	case errors.Is(err, inspector.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, inspector.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
