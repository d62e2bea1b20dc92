package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	APIPort     string
	LogLevel    string
	Environment string

	VerifierModelURL string
	DiseaseModelURL  string
	InferenceAPIKey  string
	ExpectedSubject  string
	InferenceTimeout time.Duration

	AllowedOrigin string

	RateLimitDisabled bool
	RateLimitQuota    int
	RateLimitWindow   time.Duration

	APIRateLimitRPS   int
	APIRateLimitBurst int

	PostgresDSN string

	NATSURL     string
	NATSSubject string
}

func Load() Config {
	return Config{
		APIPort:     mustEnv("API_PORT", "8080"),
		LogLevel:    mustEnv("LOG_LEVEL", "info"),
		Environment: mustEnv("ENVIRONMENT", "production"),

		VerifierModelURL: mustEnv("VERIFIER_MODEL_URL", ""),
		DiseaseModelURL:  mustEnv("DISEASE_MODEL_URL", ""),
		InferenceAPIKey:  mustEnv("INFERENCE_API_KEY", ""),
		ExpectedSubject:  mustEnv("EXPECTED_SUBJECT", "calamansi"),
		InferenceTimeout: time.Duration(mustEnvInt("INFERENCE_TIMEOUT_SECONDS", 30)) * time.Second,

		AllowedOrigin: mustEnv("ALLOWED_ORIGIN", "http://localhost:3000"),

		RateLimitDisabled: mustEnvBool("RATE_LIMIT_DISABLED", false),
		RateLimitQuota:    mustEnvInt("RATE_LIMIT_QUOTA", 5),
		RateLimitWindow:   time.Duration(mustEnvInt("RATE_LIMIT_WINDOW_MINUTES", 60)) * time.Minute,

		APIRateLimitRPS:   mustEnvInt("API_RATE_LIMIT_RPS", 10),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 20),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "detections.completed"),
	}
}

// IsProduction gates whether upstream error detail reaches response bodies.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
