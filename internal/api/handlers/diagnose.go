package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/codereliant/pod-doctor/internal/diagnoser"
	"github.com/codereliant/pod-doctor/internal/inspector"
	"github.com/codereliant/pod-doctor/internal/llm"
	"github.com/codereliant/pod-doctor/internal/models"
)

// Diagnoser runs the diagnostic pipeline for a single pod.
type Diagnoser interface {
	GetRecommendation(ctx context.Context, ref models.PodReference, question string) (diagnoser.Result, error)
}

// DiagnoseHandler handles pod diagnosis requests
type DiagnoseHandler struct {
	diagnoser Diagnoser
	logger    *zap.Logger
}

// NewDiagnoseHandler creates a new diagnosis handler
func NewDiagnoseHandler(diag Diagnoser, logger *zap.Logger) *DiagnoseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiagnoseHandler{
		diagnoser: diag,
		logger:    logger,
	}
}

// Handle handles POST /api/v1/diagnose
func (h *DiagnoseHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.DiagnoseRequest
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode diagnose request", zap.Error(err))
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Namespace == "" {
		respondWithError(w, http.StatusBadRequest, "namespace is required")
		return
	}
	if req.PodName == "" {
		respondWithError(w, http.StatusBadRequest, "pod_name is required")
		return
	}

	ref := models.PodReference{Namespace: req.Namespace, PodName: req.PodName}
	result, err := h.diagnoser.GetRecommendation(ctx, ref, req.Question)
	if err != nil {
		h.logger.Error("diagnosis failed",
			zap.Error(err),
			zap.String("pod", ref.String()),
		)
		respondWithError(w, statusForError(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, models.DiagnoseResponse{
		Namespace:      ref.Namespace,
		PodName:        ref.PodName,
		Recommendation: result.Recommendation.Text,
		Model:          result.Recommendation.Model,
		Cached:         result.Cached,
	})
}

// statusForError maps pipeline error kinds onto HTTP statuses. Kinds are
// preserved end to end, so errors.Is against the package sentinels is enough.
func statusForError(err error) int {
	switch {
	case errors.Is(err, inspector.ErrPodNotFound):
		return http.StatusNotFound
	case errors.Is(err, inspector.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, llm.ErrAuth):
		return http.StatusBadGateway
	case errors.Is(err, llm.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, inspector.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	case errors.Is(err, llm.ErrServiceUnavailable),
		errors.Is(err, llm.ErrEmptyResponse),
		errors.Is(err, llm.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
