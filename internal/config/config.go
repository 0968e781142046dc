// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Database settings
	DatabasePath string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret         string
	JWTExpiration     time.Duration
	RefreshExpiration time.Duration

	// RAG webhook settings
	RAGWebhookURL    string
	RAGFeedbackURL   string
	RAGAnalyticsURL  string
	RAGTimeout       time.Duration
	RAGStreamTimeout time.Duration

	// Storage settings
	StorageRoot   string
	ReportsRoot   string
	MaxUploadSize int64

	// Download URL signing
	DownloadURLSecret string
	DownloadURLTTL    time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Analytics retention
	EventRetentionDays int

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

		// Database
		DatabasePath: getEnv("DATABASE_PATH", "data/aiagent.db"),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret:         getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration:     getDurationEnv("JWT_EXPIRATION", 60*time.Minute),
		RefreshExpiration: getDurationEnv("REFRESH_EXPIRATION", 7*24*time.Hour),

		// RAG webhook
		RAGWebhookURL:    getEnv("RAG_WEBHOOK_URL", "https://n8n.omadligrouphq.com/webhook/b1d1a7e1-d8e2-4fc8-ba74-486e5a07e757"),
		RAGFeedbackURL:   getEnv("RAG_FEEDBACK_URL", "https://n8n.omadligrouphq.com/feedback/"),
		RAGAnalyticsURL:  getEnv("RAG_ANALYTICS_URL", "https://n8n.omadligrouphq.com/webhook/8ab1aff6-af35-4fd3-8098-eceedfc97ac0"),
		RAGTimeout:       getDurationEnv("RAG_TIMEOUT", 30*time.Second),
		RAGStreamTimeout: getDurationEnv("RAG_STREAM_TIMEOUT", 60*time.Second),

		// Storage
		StorageRoot:   getEnv("STORAGE_ROOT", "data/uploads"),
		ReportsRoot:   getEnv("REPORTS_ROOT", "data/reports"),
		MaxUploadSize: getInt64Env("MAX_UPLOAD_SIZE", 100*1024*1024),

		// Download URL signing
		DownloadURLSecret: getEnv("DOWNLOAD_URL_SECRET", "development-download-secret"),
		DownloadURLTTL:    getDurationEnv("DOWNLOAD_URL_TTL", 15*time.Minute),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Analytics
		EventRetentionDays: getIntEnv("EVENT_RETENTION_DAYS", 90),

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

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
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

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
