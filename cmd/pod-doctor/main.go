package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/codereliant/pod-doctor/internal/api"
	"github.com/codereliant/pod-doctor/internal/cache"
	"github.com/codereliant/pod-doctor/internal/config"
	"github.com/codereliant/pod-doctor/internal/diagnoser"
	"github.com/codereliant/pod-doctor/internal/inspector"
	"github.com/codereliant/pod-doctor/internal/k8s"
	"github.com/codereliant/pod-doctor/internal/llm"
	"github.com/codereliant/pod-doctor/internal/normalizer"
	"github.com/codereliant/pod-doctor/internal/prompt"
)

func main() {
	// Create root context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := setupLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Pod Doctor",
		zap.String("version", cfg.AppVersion),
		zap.Bool("in_cluster", cfg.K8sInCluster),
	)

	// Create Kubernetes client
	k8sClient, err := k8s.NewClient(cfg.K8sInCluster, cfg.K8sKubeConfigPath)
	if err != nil {
		logger.Fatal("Failed to create Kubernetes client", zap.Error(err))
	}
	if err := k8sClient.Ping(ctx); err != nil {
		logger.Warn("Kubernetes API not reachable at startup", zap.Error(err))
	} else {
		logger.Info("Connected to Kubernetes API")
	}

	// Create optional recommendation cache
	var recCache *cache.Cache
	if cfg.RedisURL != "" {
		recCache, err = cache.New(cfg.RedisURL, cfg.CacheTTL, logger)
		if err != nil {
			logger.Fatal("Failed to create recommendation cache", zap.Error(err))
		}
		defer func() {
			if err := recCache.Close(); err != nil {
				logger.Error("Error closing cache connection", zap.Error(err))
			}
		}()
		if err := recCache.Ping(ctx); err != nil {
			logger.Warn("Redis not reachable at startup, cache will degrade to misses", zap.Error(err))
		} else {
			logger.Info("Connected to Redis", zap.Duration("cache_ttl", cfg.CacheTTL))
		}
	} else {
		logger.Info("Recommendation cache disabled (REDIS_URL not set)")
	}

	// Create pipeline components
	insp := inspector.New(k8sClient.GetClientset(), inspector.Config{
		FetchTimeout: cfg.FetchTimeout,
		LogTailLines: int64(cfg.LogTailLines),
		LogByteLimit: int64(cfg.LogByteLimit),
	}, logger)

	llmClient := llm.NewClient(llm.Config{
		BaseURL:     cfg.OpenAIBaseURL,
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.OpenAIModel,
		Timeout:     cfg.LLMTimeout,
		MaxAttempts: cfg.LLMMaxAttempts,
		BaseDelay:   cfg.LLMRetryDelay,
	}, logger)

	var diagCache diagnoser.RecommendationCache
	if recCache != nil {
		diagCache = recCache
	}
	diag := diagnoser.New(insp, llmClient, diagCache, diagnoser.Config{
		Normalizer: normalizer.Config{
			EventLimit:    cfg.EventLimit,
			LogByteBudget: cfg.LogByteBudget,
		},
		Prompt: prompt.Config{MaxChars: cfg.PromptMaxChars},
	}, logger)

	// Create router (cache pinger is nil-safe for the readiness endpoint)
	var cachePinger api.Pinger
	if recCache != nil {
		cachePinger = recCache
	}
	router := api.NewRouter(diag, insp, k8sClient, cachePinger, cfg, logger)

	// Start HTTP server
	httpServer := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GetRequestTimeout() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("address", cfg.GetServerAddress()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	<-quit
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Cancel root context to stop in-flight pipeline work
	cancel()

	// Shutdown HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		logger.Info("HTTP server shut down gracefully")
	}

	logger.Info("Pod Doctor shutdown complete")
}

func setupLogger(cfg *config.Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)

	if cfg.LogFormat == "console" {
		config.Encoding = "console"
		config.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	return config.Build()
}
