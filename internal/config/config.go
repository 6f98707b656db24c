// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// store DSNs, provider credentials, rate limiting, privacy, and
// observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment names. EnvDevelopment enables dev-only shortcuts such as
// skipping webhook signature verification; everything else is production
// behavior.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// defaultPrivacySalt is the placeholder salt refused in production.
const defaultPrivacySalt = "default-salt-CHANGE-IN-PRODUCTION"

// TwilioConfig holds messaging-provider credentials and the sender address.
type TwilioConfig struct {
	AccountSID  string // TWILIO_ACCOUNT_SID
	AuthToken   string // TWILIO_AUTH_TOKEN (HMAC secret for signature checks)
	PhoneNumber string // TWILIO_PHONE_NUMBER (sender, "whatsapp:+...")
}

// AnthropicConfig holds LLM client settings.
type AnthropicConfig struct {
	APIKey           string        // ANTHROPIC_API_KEY
	Model            string        // ANTHROPIC_MODEL
	MaxOutputTokens  int           // ANTHROPIC_MAX_TOKENS (reply budget)
	MaxContextTokens int           // ANTHROPIC_CONTEXT_TOKENS (estimate ceiling)
	Temperature      float64       // ANTHROPIC_TEMPERATURE
	Timeout          time.Duration // ANTHROPIC_TIMEOUT per attempt
	SystemPrompt     string        // ANTHROPIC_SYSTEM_PROMPT (optional persona)
}

// RateLimitConfig tunes the two rate-limit axes (per phone, per client IP).
type RateLimitConfig struct {
	MaxRequests   int           // RATE_LIMIT_MAX_REQUESTS per phone window
	Window        time.Duration // RATE_LIMIT_WINDOW_SECONDS
	MaxIPRequests int           // RATE_LIMIT_MAX_IP_REQUESTS per IP window
	IPWindow      time.Duration // RATE_LIMIT_IP_WINDOW_SECONDS
}

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string // ALLOWED_ORIGINS, comma-separated
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Environment
	Env string // APP_ENV: development|production|test

	// Server
	Port              string        // PORT, just the number
	ReadTimeout       time.Duration // request-receive deadline
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration // idle keep-alive sockets
	ShutdownTimeout   time.Duration // graceful drain budget
	MaxHeaderBytes    int
	GinMode           string // debug|release|test
	TrustProxy        bool   // TRUST_PROXY: honor one upstream proxy for client IP

	// Logging
	LogLevel  string // LOG_LEVEL: debug|info|warn|error
	LogPretty bool   // pretty console logs in dev

	// Stores
	DatabaseURL string // DATABASE_URL (postgres DSN, or sqlite path in dev/test)
	RedisURL    string // REDIS_URL

	// Privacy
	PrivacyHashSalt string // PRIVACY_HASH_SALT, >= 32 chars in production

	// Providers
	Twilio    TwilioConfig
	Anthropic AnthropicConfig

	// Web protection
	RateLimit RateLimitConfig
	CORS      CORSConfig

	// Observability
	OTEL OTELConfig

	// Version reported by the health probe.
	Version string
}

// IsDevelopment reports whether dev-only shortcuts are allowed.
func (c Config) IsDevelopment() bool { return c.Env == EnvDevelopment }

// IsProduction reports whether production-grade validation applies.
func (c Config) IsProduction() bool { return c.Env == EnvProduction }

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Env: strings.ToLower(getenv("APP_ENV", EnvDevelopment)),

		// Server
		Port:              getenv("PORT", "3000"),
		ReadTimeout:       getdur("READ_TIMEOUT", 10*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 30*time.Second),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		TrustProxy:        getbool("TRUST_PROXY", false),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Stores
		DatabaseURL: getenv("DATABASE_URL", "gateway.db"),
		RedisURL:    getenv("REDIS_URL", "redis://localhost:6379/0"),

		// Privacy
		PrivacyHashSalt: getenv("PRIVACY_HASH_SALT", defaultPrivacySalt),

		Twilio: TwilioConfig{
			AccountSID:  getenv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:   getenv("TWILIO_AUTH_TOKEN", ""),
			PhoneNumber: getenv("TWILIO_PHONE_NUMBER", ""),
		},

		Anthropic: AnthropicConfig{
			APIKey:           getenv("ANTHROPIC_API_KEY", ""),
			Model:            getenv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
			MaxOutputTokens:  getint("ANTHROPIC_MAX_TOKENS", 1024),
			MaxContextTokens: getint("ANTHROPIC_CONTEXT_TOKENS", 8000),
			Temperature:      getfloat("ANTHROPIC_TEMPERATURE", 0.7),
			Timeout:          getdur("ANTHROPIC_TIMEOUT", 30*time.Second),
			SystemPrompt:     os.Getenv("ANTHROPIC_SYSTEM_PROMPT"),
		},

		RateLimit: RateLimitConfig{
			MaxRequests:   getint("RATE_LIMIT_MAX_REQUESTS", 10),
			Window:        time.Duration(getint("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
			MaxIPRequests: getint("RATE_LIMIT_MAX_IP_REQUESTS", 30),
			IPWindow:      time.Duration(getint("RATE_LIMIT_IP_WINDOW_SECONDS", 60)) * time.Second,
		},

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("ALLOWED_ORIGINS", "")),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-whatsapp-gateway"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},

		Version: getenv("APP_VERSION", "dev"),
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		cfg.Env = EnvDevelopment
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("SHUTDOWN_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return cfg, errors.New("DATABASE_URL must not be empty")
	}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return cfg, errors.New("REDIS_URL must not be empty")
	}
	if cfg.RateLimit.MaxRequests < 1 || cfg.RateLimit.MaxIPRequests < 1 {
		return cfg, errors.New("rate limit ceilings must be >= 1")
	}
	if cfg.RateLimit.Window <= 0 || cfg.RateLimit.IPWindow <= 0 {
		return cfg, errors.New("rate limit windows must be positive")
	}
	if cfg.Anthropic.MaxOutputTokens < 1 {
		return cfg, errors.New("ANTHROPIC_MAX_TOKENS must be >= 1")
	}
	if cfg.Anthropic.MaxContextTokens < 1 {
		return cfg, errors.New("ANTHROPIC_CONTEXT_TOKENS must be >= 1")
	}
	if cfg.Anthropic.Temperature < 0 || cfg.Anthropic.Temperature > 1 {
		return cfg, errors.New("ANTHROPIC_TEMPERATURE must be in [0,1]")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	// Production-only hard requirements.
	if cfg.IsProduction() {
		if cfg.Twilio.AuthToken == "" {
			return cfg, errors.New("TWILIO_AUTH_TOKEN is required in production")
		}
		if cfg.Anthropic.APIKey == "" {
			return cfg, errors.New("ANTHROPIC_API_KEY is required in production")
		}
		if cfg.PrivacyHashSalt == defaultPrivacySalt {
			return cfg, errors.New("PRIVACY_HASH_SALT must not use the development placeholder in production")
		}
		if len(cfg.PrivacyHashSalt) < 32 {
			return cfg, errors.New("PRIVACY_HASH_SALT must be at least 32 characters in production")
		}
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
