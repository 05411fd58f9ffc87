package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type ImageGen struct {
	APIKey      string
	Endpoint    string
	PromptLimit int
}

// PlatformLimits bounds how far ahead a plan may schedule on a given
// platform and how many rows a single planning run may produce.
type PlatformLimits struct {
	HorizonDays int
	MaxRows     int
}

type Scheduler struct {
	PollInterval   time.Duration
	LeaseTTL       time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
	DispatchLimit  int
	ResolveTimeout time.Duration
	PublishTimeout time.Duration
}

type Config struct {
	PostgresURI string
	RedisURI    string
	FrontendURL string
	R2          R2
	ImageGen    ImageGen
	Scheduler   Scheduler
	Instagram   PlatformLimits
	Facebook    PlatformLimits
	SecretKey   string
	CookieName  string
}

func LoadConfig() *Config {
	return &Config{
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", ""),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		ImageGen: ImageGen{
			APIKey:      getEnv("IMAGE_GEN_API_KEY", ""),
			Endpoint:    getEnv("IMAGE_GEN_ENDPOINT", "https://api.stability.ai/v2beta/stable-image/generate/core"),
			PromptLimit: getEnvInt("IMAGE_GEN_PROMPT_LIMIT", 2000),
		},
		Scheduler: Scheduler{
			PollInterval:   getEnvDuration("SCHEDULER_POLL_INTERVAL", time.Minute),
			LeaseTTL:       getEnvDuration("SCHEDULER_LEASE_TTL", 5*time.Minute),
			MaxAttempts:    getEnvInt("SCHEDULER_MAX_ATTEMPTS", 3),
			BackoffBase:    getEnvDuration("SCHEDULER_BACKOFF_BASE", 2*time.Minute),
			DispatchLimit:  getEnvInt("DISPATCH_CONCURRENCY", 10),
			ResolveTimeout: getEnvDuration("RESOLVE_TIMEOUT", 5*time.Minute),
			PublishTimeout: getEnvDuration("PUBLISH_TIMEOUT", 2*time.Minute),
		},
		Instagram: PlatformLimits{
			HorizonDays: getEnvInt("INSTAGRAM_HORIZON_DAYS", 75),
			MaxRows:     getEnvInt("INSTAGRAM_MAX_ROWS", 75),
		},
		Facebook: PlatformLimits{
			HorizonDays: getEnvInt("FACEBOOK_HORIZON_DAYS", 30),
			MaxRows:     getEnvInt("FACEBOOK_MAX_ROWS", 30),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
