package api

import (
	"context"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/codereliant/pod-doctor/internal/api/handlers"
	"github.com/codereliant/pod-doctor/internal/api/middleware"
	"github.com/codereliant/pod-doctor/internal/config"
	"github.com/codereliant/pod-doctor/internal/diagnoser"
	"github.com/codereliant/pod-doctor/internal/models"
)

// Diagnoser runs the diagnostic pipeline for a single pod.
type Diagnoser interface {
	GetRecommendation(ctx context.Context, ref models.PodReference, question string) (diagnoser.Result, error)
}

// ClusterLister lists namespaces and pods for discovery endpoints.
type ClusterLister interface {
	ListNamespaces(ctx context.Context) ([]string, error)
	ListPods(ctx context.Context, namespace string) ([]string, error)
}

// Pinger reports dependency health for the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter creates a new Chi router with all routes and middleware configured
func NewRouter(
	diag Diagnoser,
	lister ClusterLister,
	cluster Pinger,
	cache Pinger,
	cfg *config.Config,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Apply middleware stack
	r.Use(middleware.Recovery(logger))
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Timeout(cfg.GetRequestTimeout()))

	// Initialize handlers
	diagnoseHandler := handlers.NewDiagnoseHandler(diag, logger)
	podsHandler := handlers.NewPodsHandler(lister, logger)
	healthHandler := handlers.NewHealthHandler(cluster, cache, cfg, logger)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Diagnosis endpoint
		r.Post("/diagnose", diagnoseHandler.Handle)

		// Discovery endpoints
		r.Get("/namespaces", podsHandler.HandleNamespaces)
		r.Get("/namespaces/{namespace}/pods", podsHandler.HandlePods)

		// Health and readiness endpoints
		r.Get("/health", healthHandler.HandleHealth)
		r.Get("/ready", healthHandler.HandleReady)

		// Metrics endpoint
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	})

	return r
}
