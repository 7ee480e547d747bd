// Package diagnoser coordinates the diagnostic pipeline: fetch raw cluster
// data, normalize it into an evidence bundle, render the prompt, and obtain a
// validated recommendation from the generation service. Each invocation is
// independent; the pipeline holds no shared mutable state.
package diagnoser

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/codereliant/pod-doctor/internal/api/middleware"
	"github.com/codereliant/pod-doctor/internal/inspector"
	"github.com/codereliant/pod-doctor/internal/llm"
	"github.com/codereliant/pod-doctor/internal/models"
	"github.com/codereliant/pod-doctor/internal/normalizer"
	"github.com/codereliant/pod-doctor/internal/prompt"
)

// Fetcher reads raw diagnostic data for a pod.
type Fetcher interface {
	Fetch(ctx context.Context, ref models.PodReference) (models.RawClusterData, error)
}

// Recommender turns a rendered request into a recommendation.
type Recommender interface {
	Recommend(ctx context.Context, req models.RecommendationRequest) (models.RecommendationResponse, error)
}

// RecommendationCache is an optional prompt-keyed cache.
type RecommendationCache interface {
	Get(ctx context.Context, prompt string) (models.RecommendationResponse, bool)
	Put(ctx context.Context, prompt string, rec models.RecommendationResponse)
}

// Config holds the pipeline's tunables.
type Config struct {
	Normalizer normalizer.Config
	Prompt     prompt.Config
}

// Result is the outcome of a successful diagnosis.
type Result struct {
	Recommendation models.RecommendationResponse
	Cached         bool
}

// Diagnoser runs the diagnostic pipeline for one pod at a time.
type Diagnoser struct {
	fetcher     Fetcher
	recommender Recommender
	cache       RecommendationCache // nil disables caching
	config      Config
	logger      *zap.Logger
}

// New creates a new Diagnoser. cache may be nil.
func New(fetcher Fetcher, recommender Recommender, cache RecommendationCache, cfg Config, logger *zap.Logger) *Diagnoser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Diagnoser{
		fetcher:     fetcher,
		recommender: recommender,
		cache:       cache,
		config:      cfg,
		logger:      logger,
	}
}

// GetRecommendation runs the pipeline end to end. The caller receives either
// a validated recommendation or a typed error; there is no partial success.
func (d *Diagnoser) GetRecommendation(ctx context.Context, ref models.PodReference, question string) (Result, error) {
	raw, err := d.fetcher.Fetch(ctx, ref)
	if err != nil {
		middleware.DiagnosesTotal.WithLabelValues(outcome(err)).Inc()
		return Result{}, err
	}

	diag := normalizer.Normalize(raw, d.config.Normalizer)
	req := prompt.Build(diag, question, d.config.Prompt)

	if d.cache != nil {
		if rec, ok := d.cache.Get(ctx, req.Prompt); ok {
			middleware.CacheHitsTotal.Inc()
			middleware.DiagnosesTotal.WithLabelValues("success").Inc()
			d.logger.Debug("recommendation served from cache",
				zap.String("pod", ref.String()))
			return Result{Recommendation: rec, Cached: true}, nil
		}
		middleware.CacheMissesTotal.Inc()
	}

	rec, err := d.recommender.Recommend(ctx, req)
	if err != nil {
		middleware.DiagnosesTotal.WithLabelValues(outcome(err)).Inc()
		return Result{}, err
	}

	if d.cache != nil {
		d.cache.Put(ctx, req.Prompt, rec)
	}

	middleware.DiagnosesTotal.WithLabelValues("success").Inc()
	d.logger.Info("diagnosis completed",
		zap.String("pod", ref.String()),
		zap.String("model", rec.Model),
	)
	return Result{Recommendation: rec}, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, inspector.ErrPodNotFound):
		return "not_found"
	case errors.Is(err, inspector.ErrForbidden), errors.Is(err, llm.ErrAuth):
		return "auth_error"
	case errors.Is(err, inspector.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return "timeout"
	case errors.Is(err, llm.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, llm.ErrServiceUnavailable):
		return "unavailable"
	case errors.Is(err, llm.ErrEmptyResponse), errors.Is(err, llm.ErrMalformedResponse):
		return "bad_response"
	default:
		return "error"
	}
}
