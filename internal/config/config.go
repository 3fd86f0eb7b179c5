// Package config provides environment configuration for the engine.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application. Every numeric threshold
// in the engine is a default here, not a constant in the code that uses it.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ShutdownTimeout    time.Duration

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Redis settings (inbound dedupe)
	RedisAddr     string
	RedisPassword string
	DedupeTTL     time.Duration

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Classification
	ClassifyTimeout time.Duration

	// Escalation
	NegativeIntensityThreshold float64
	EscalationCooldown         time.Duration
	SendFailureThreshold       int

	// Assignment
	AssignRetryInterval  time.Duration
	AssignWaitThreshold  time.Duration
	DefaultAgentCapacity int

	// Send retries
	SendMaxAttempts     int
	SendInitialInterval time.Duration

	// Event bus
	SubscriberQueueSize int

	// Realtime relay
	RelayURL string

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		ShutdownTimeout:    getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		DedupeTTL:     getDurationEnv("DEDUPE_TTL", 24*time.Hour),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Classification
		ClassifyTimeout: getDurationEnv("CLASSIFY_TIMEOUT", 300*time.Millisecond),

		// Escalation
		NegativeIntensityThreshold: getFloatEnv("NEGATIVE_INTENSITY_THRESHOLD", 0.7),
		EscalationCooldown:         getDurationEnv("ESCALATION_COOLDOWN", 5*time.Minute),
		SendFailureThreshold:       getIntEnv("SEND_FAILURE_THRESHOLD", 3),

		// Assignment
		AssignRetryInterval:  getDurationEnv("ASSIGN_RETRY_INTERVAL", 3*time.Second),
		AssignWaitThreshold:  getDurationEnv("ASSIGN_WAIT_THRESHOLD", 30*time.Second),
		DefaultAgentCapacity: getIntEnv("DEFAULT_AGENT_CAPACITY", 5),

		// Send retries
		SendMaxAttempts:     getIntEnv("SEND_MAX_ATTEMPTS", 3),
		SendInitialInterval: getDurationEnv("SEND_INITIAL_INTERVAL", 200*time.Millisecond),

		// Event bus
		SubscriberQueueSize: getIntEnv("SUBSCRIBER_QUEUE_SIZE", 256),

		// Realtime relay
		RelayURL: getEnv("RELAY_URL", ""),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
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
