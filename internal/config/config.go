package config

import (
	"os"
	"strconv"
)

// Config holds the core runtime configuration for the gateway.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	AdminEmail    string
	AdminPassword string

	DatabaseURL string

	ListenAddr string

	// JWTSecret signs /users session tokens (HS256).
	JWTSecret string

	// KeyEncryptionKey is a 64-char hex string (32 bytes) used to
	// AES-GCM-encrypt the retained copy of newly created API keys so
	// their owner can redisplay them. Empty disables the encrypted copy.
	KeyEncryptionKey string

	// RateLimitPerMinute is the default per-key request budget for the
	// /v1 API. Keys may carry their own limit which takes precedence.
	RateLimitPerMinute int

	// LogRetentionDays bounds how long api_request_log rows are kept.
	LogRetentionDays int

	// Blob storage (S3-compatible) for uploaded activity payloads.
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		AdminEmail:         getenv("APP_ADMIN_EMAIL", "admin@localhost"),
		AdminPassword:      os.Getenv("APP_ADMIN_PASSWORD"),
		DatabaseURL:        os.Getenv("APP_DATABASE_URL"),
		ListenAddr:         getenv("APP_LISTEN_ADDR", ":8080"),
		JWTSecret:          os.Getenv("APP_JWT_SECRET"),
		KeyEncryptionKey:   os.Getenv("APP_KEY_ENCRYPTION_KEY"),
		RateLimitPerMinute: 60,
		LogRetentionDays:   90,
		StorageEndpoint:    os.Getenv("APP_STORAGE_ENDPOINT"),
		StorageAccessKey:   os.Getenv("APP_STORAGE_ACCESS_KEY"),
		StorageSecretKey:   os.Getenv("APP_STORAGE_SECRET_KEY"),
		StorageBucket:      getenv("APP_STORAGE_BUCKET", "activity-payloads"),
		StorageUseSSL:      getenv("APP_STORAGE_USE_SSL", "true") == "true",
	}

	if v := os.Getenv("APP_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitPerMinute = n
		}
	}
	if v := os.Getenv("APP_LOG_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.LogRetentionDays = days
		}
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
