package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	Env  string
	Port string

	DatabaseURL string
	RedisURL    string

	SessionSecret string
	EncryptionKey string

	// OAuth providers
	OrcidClientID      string
	OrcidClientSecret  string
	OrcidCallbackURL   string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	// Draft gateway (LLM) settings
	DraftGatewayURL string
	DraftAPIKey     string
	DraftModel      string
	DraftTimeout    time.Duration
	DraftStubMode   bool

	// Generation job limits
	DefaultPerJobCapUSD   float64
	DefaultDailyBudgetUSD float64
	StaleJobTimeout       time.Duration

	TemplateDir string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first if present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env file")
	}

	cfg := &Config{
		Env:  getEnvWithDefault("ENV", "development"),
		Port: getEnvWithDefault("PORT", "8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnvWithDefault("REDIS_URL", "redis://localhost:6379/0"),

		SessionSecret: os.Getenv("SESSION_SECRET"),
		EncryptionKey: os.Getenv("TOKEN_ENCRYPTION_KEY"),

		OrcidClientID:      os.Getenv("ORCID_CLIENT_ID"),
		OrcidClientSecret:  os.Getenv("ORCID_CLIENT_SECRET"),
		OrcidCallbackURL:   os.Getenv("ORCID_CALLBACK_URL"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleCallbackURL:  os.Getenv("GOOGLE_CALLBACK_URL"),

		DraftGatewayURL: os.Getenv("DRAFT_GATEWAY_URL"),
		DraftAPIKey:     os.Getenv("DRAFT_API_KEY"),
		DraftModel:      getEnvWithDefault("DRAFT_MODEL", "gpt-4o-mini"),
		DraftTimeout:    getEnvDuration("DRAFT_TIMEOUT", 120*time.Second),
		DraftStubMode:   getEnvBool("DRAFT_STUB_MODE", false),

		DefaultPerJobCapUSD:   getEnvFloat("DEFAULT_PER_JOB_CAP_USD", 0),
		DefaultDailyBudgetUSD: getEnvFloat("DEFAULT_DAILY_BUDGET_USD", 0),
		StaleJobTimeout:       getEnvDuration("STALE_JOB_TIMEOUT", 2*time.Hour),

		TemplateDir: getEnvWithDefault("TEMPLATE_DIR", "templates"),

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),
	}

	// Warn if using default session secret (insecure for production)
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = "dev-secret-change-in-production-use-openssl-rand-hex-32"
		log.Println("WARNING: Using default SESSION_SECRET. Generate a secure secret with: openssl rand -hex 32")
	}

	// Stub mode keeps the service usable with no gateway configured
	if cfg.DraftGatewayURL == "" && !cfg.DraftStubMode {
		cfg.DraftStubMode = true
		log.Println("WARNING: DRAFT_GATEWAY_URL not set, drafting client running in stub mode")
	}

	return cfg
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("WARNING: invalid boolean for %s: %q, using default", key, value)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("WARNING: invalid number for %s: %q, using default", key, value)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("WARNING: invalid duration for %s: %q, using default", key, value)
		return defaultValue
	}
	return parsed
}
