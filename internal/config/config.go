package config

import (
	"os"
	"strconv"
)

// Config holds all runtime configuration, read from the environment.
type Config struct {
	Port        string
	StorageKind string // "postgres" or "memory"
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret     string
	WebhookSecret string
	StripeAPIKey  string

	// DefaultPlanID names a pay-per-use plan granting fallback access. Empty
	// disables the fallback.
	DefaultPlanID string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string
}

// Load reads configuration from environment variables with development
// defaults.
func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		StorageKind:    getEnv("STORAGE_BACKEND", "memory"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		WebhookSecret:  os.Getenv("WEBHOOK_SECRET"),
		StripeAPIKey:   os.Getenv("STRIPE_API_KEY"),
		DefaultPlanID:  os.Getenv("DEFAULT_PLAN_ID"),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioUseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
		MinioBucket:    getEnv("MINIO_BUCKET", "agentpay-reports"),
	}
	if db := os.Getenv("REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.RedisDB = n
		}
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
