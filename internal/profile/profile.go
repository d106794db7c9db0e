// Package profile holds the runtime configuration for the sellwise server.
package profile

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for the server
	Addr string
	// Port is the binding port for the server
	Port int
	// Driver is the context storage driver (memory or sqlite)
	Driver string
	// DSN points to where sellwise stores conversation contexts
	DSN string
	// Version is the current version of the server
	Version string

	// Health monitor configuration
	HealthCheckInterval time.Duration // SELLWISE_HEALTH_CHECK_INTERVAL
	HealthCheckTimeout  time.Duration // SELLWISE_HEALTH_CHECK_TIMEOUT
	HealthRetryAttempts int           // SELLWISE_HEALTH_RETRY_ATTEMPTS

	// Load balancer configuration
	BalancerStrategy string        // SELLWISE_BALANCER_STRATEGY (round_robin, least_loaded, cost_optimized)
	BalancerRetries  int           // SELLWISE_BALANCER_MAX_RETRIES
	BalancerDelay    time.Duration // SELLWISE_BALANCER_RETRY_DELAY

	// Context engine configuration
	BusinessDataTTL          time.Duration // SELLWISE_CONTEXT_BUSINESS_TTL
	RecommendationsTTL       time.Duration // SELLWISE_CONTEXT_RECOMMENDATIONS_TTL
	ConversationHistoryLimit int           // SELLWISE_CONTEXT_HISTORY_LIMIT
	AutoRefreshEnabled       bool          // SELLWISE_CONTEXT_AUTO_REFRESH
	CompressionEnabled       bool          // SELLWISE_CONTEXT_COMPRESSION
	MaxContextCacheSize      int           // SELLWISE_CONTEXT_CACHE_SIZE

	// Provider configuration
	OpenAIAPIKey  string // SELLWISE_OPENAI_API_KEY
	OpenAIBaseURL string // SELLWISE_OPENAI_BASE_URL
	OpenAIModel   string // SELLWISE_OPENAI_MODEL
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true"
	}
	return defaultValue
}

// FromEnv loads configuration from SELLWISE_* environment variables.
func (p *Profile) FromEnv() {
	p.HealthCheckInterval = getDurationEnv("SELLWISE_HEALTH_CHECK_INTERVAL", 30*time.Second)
	p.HealthCheckTimeout = getDurationEnv("SELLWISE_HEALTH_CHECK_TIMEOUT", 5*time.Second)
	p.HealthRetryAttempts = getIntEnv("SELLWISE_HEALTH_RETRY_ATTEMPTS", 2)

	p.BalancerStrategy = getEnvOrDefault("SELLWISE_BALANCER_STRATEGY", "round_robin")
	p.BalancerRetries = getIntEnv("SELLWISE_BALANCER_MAX_RETRIES", 3)
	p.BalancerDelay = getDurationEnv("SELLWISE_BALANCER_RETRY_DELAY", time.Second)

	p.BusinessDataTTL = getDurationEnv("SELLWISE_CONTEXT_BUSINESS_TTL", 15*time.Minute)
	p.RecommendationsTTL = getDurationEnv("SELLWISE_CONTEXT_RECOMMENDATIONS_TTL", time.Hour)
	p.ConversationHistoryLimit = getIntEnv("SELLWISE_CONTEXT_HISTORY_LIMIT", 50)
	p.AutoRefreshEnabled = getBoolEnv("SELLWISE_CONTEXT_AUTO_REFRESH", true)
	p.CompressionEnabled = getBoolEnv("SELLWISE_CONTEXT_COMPRESSION", true)
	p.MaxContextCacheSize = getIntEnv("SELLWISE_CONTEXT_CACHE_SIZE", 1000)

	p.OpenAIAPIKey = os.Getenv("SELLWISE_OPENAI_API_KEY")
	p.OpenAIBaseURL = getEnvOrDefault("SELLWISE_OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.OpenAIModel = getEnvOrDefault("SELLWISE_OPENAI_MODEL", "gpt-4o-mini")
}

// Validate checks configuration consistency before any component starts.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Driver == "" {
		p.Driver = "memory"
	}
	if p.Driver != "memory" && p.Driver != "sqlite" {
		return errors.Errorf("unsupported storage driver %q", p.Driver)
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		return errors.New("sqlite driver requires a DSN")
	}

	if p.HealthCheckInterval <= 0 {
		return errors.New("health check interval must be positive")
	}
	if p.HealthCheckTimeout <= 0 {
		return errors.New("health check timeout must be positive")
	}
	if p.HealthCheckTimeout >= p.HealthCheckInterval {
		return errors.Errorf("health check timeout %s must be less than interval %s",
			p.HealthCheckTimeout, p.HealthCheckInterval)
	}
	if p.HealthRetryAttempts < 1 {
		return errors.New("health retry attempts must be at least 1")
	}

	switch p.BalancerStrategy {
	case "round_robin", "least_loaded", "cost_optimized":
	default:
		return errors.Errorf("unknown load balancer strategy %q", p.BalancerStrategy)
	}

	if p.MaxContextCacheSize <= 0 {
		p.MaxContextCacheSize = 1000
	}
	if p.ConversationHistoryLimit <= 0 {
		p.ConversationHistoryLimit = 50
	}

	return nil
}
