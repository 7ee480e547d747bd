package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerPort string
	ServerHost string

	// Kubernetes configuration
	K8sInCluster      bool
	K8sKubeConfigPath string
	FetchTimeout      time.Duration
	LogTailLines      int
	LogByteLimit      int

	// Diagnostic bundle configuration
	EventLimit     int
	LogByteBudget  int
	PromptMaxChars int

	// Generation service configuration
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	OpenAIModel    string
	LLMTimeout     time.Duration
	LLMMaxAttempts int
	LLMRetryDelay  time.Duration

	// Cache configuration (empty RedisURL disables caching)
	RedisURL string
	CacheTTL time.Duration

	// Logging configuration
	LogLevel  string
	LogFormat string

	// Application metadata
	AppName    string
	AppVersion string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		ServerHost:        getEnv("SERVER_HOST", "0.0.0.0"),
		K8sInCluster:      getEnvBool("K8S_IN_CLUSTER", false),
		K8sKubeConfigPath: getEnv("K8S_KUBECONFIG_PATH", ""),
		FetchTimeout:      getEnvDuration("FETCH_TIMEOUT", 15*time.Second),
		LogTailLines:      getEnvInt("LOG_TAIL_LINES", 100),
		LogByteLimit:      getEnvInt("LOG_BYTE_LIMIT", 16384),
		EventLimit:        getEnvInt("EVENT_LIMIT", 10),
		LogByteBudget:     getEnvInt("LOG_BYTE_BUDGET", 8192),
		PromptMaxChars:    getEnvInt("PROMPT_MAX_CHARS", 12000),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		LLMTimeout:        getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		LLMMaxAttempts:    getEnvInt("LLM_MAX_ATTEMPTS", 3),
		LLMRetryDelay:     getEnvDuration("LLM_RETRY_BASE_DELAY", 500*time.Millisecond),
		RedisURL:          getEnv("REDIS_URL", ""),
		CacheTTL:          getEnvDuration("CACHE_TTL", 5*time.Minute),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		AppName:           "pod-doctor",
		AppVersion:        getEnv("APP_VERSION", "dev"),
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	// The API key is required for production
	if c.OpenAIAPIKey == "" && os.Getenv("ENV") == "production" {
		return fmt.Errorf("OPENAI_API_KEY is required in production")
	}

	if c.LLMMaxAttempts < 1 {
		return fmt.Errorf("LLM_MAX_ATTEMPTS must be at least 1")
	}
	if c.EventLimit < 1 {
		return fmt.Errorf("EVENT_LIMIT must be at least 1")
	}
	if c.LogByteBudget < 1 {
		return fmt.Errorf("LOG_BYTE_BUDGET must be positive")
	}
	if c.PromptMaxChars < 1 {
		return fmt.Errorf("PROMPT_MAX_CHARS must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", c.LogLevel)
	}

	return nil
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return c.ServerHost + ":" + c.ServerPort
}

// GetRequestTimeout returns the upper bound for one request: the cluster read
// stage, every generation attempt, the backoff between attempts (including
// jitter headroom), and a grace period for the rest of the handler.
func (c *Config) GetRequestTimeout() time.Duration {
	var backoff time.Duration
	for attempt := 1; attempt < c.LLMMaxAttempts; attempt++ {
		delay := c.LLMRetryDelay << (attempt - 1)
		backoff += delay + delay/4
	}
	return c.FetchTimeout + time.Duration(c.LLMMaxAttempts)*c.LLMTimeout + backoff + 5*time.Second
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return defaultVal
		}
		return b
	}
	return defaultVal
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return defaultVal
		}
		return i
	}
	return defaultVal
}

// getEnvDuration retrieves a duration environment variable or returns a default value
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return defaultVal
		}
		return d
	}
	return defaultVal
}
