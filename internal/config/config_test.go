package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv resets every variable the loader reads so tests are hermetic.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_ENV", "PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT",
		"IDLE_TIMEOUT", "SHUTDOWN_TIMEOUT", "MAX_HEADER_BYTES", "GIN_MODE",
		"TRUST_PROXY", "LOG_LEVEL", "LOG_PRETTY", "DATABASE_URL", "REDIS_URL",
		"PRIVACY_HASH_SALT", "TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN",
		"TWILIO_PHONE_NUMBER", "ANTHROPIC_API_KEY", "ANTHROPIC_MODEL",
		"ANTHROPIC_MAX_TOKENS", "ANTHROPIC_CONTEXT_TOKENS", "ANTHROPIC_TEMPERATURE",
		"ANTHROPIC_TIMEOUT", "RATE_LIMIT_MAX_REQUESTS", "RATE_LIMIT_WINDOW_SECONDS",
		"RATE_LIMIT_MAX_IP_REQUESTS", "RATE_LIMIT_IP_WINDOW_SECONDS",
		"ALLOWED_ORIGINS", "OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_EXPORTER_OTLP_INSECURE", "OTEL_SERVICE_NAME",
		"OTEL_TRACES_SAMPLER_ARG", "APP_VERSION",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != EnvDevelopment {
		t.Fatalf("Env = %q, want development", cfg.Env)
	}
	if cfg.Port != "3000" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.ReadTimeout != 10*time.Second || cfg.IdleTimeout != 30*time.Second {
		t.Fatalf("server timeouts: %+v", cfg)
	}
	if cfg.RateLimit.MaxRequests != 10 || cfg.RateLimit.MaxIPRequests != 30 {
		t.Fatalf("rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.Window != time.Minute || cfg.RateLimit.IPWindow != time.Minute {
		t.Fatalf("rate limit windows: %+v", cfg.RateLimit)
	}
	if cfg.Anthropic.MaxOutputTokens != 1024 || cfg.Anthropic.MaxContextTokens != 8000 {
		t.Fatalf("anthropic defaults: %+v", cfg.Anthropic)
	}
	if cfg.Anthropic.Timeout != 30*time.Second {
		t.Fatalf("anthropic timeout: %v", cfg.Anthropic.Timeout)
	}
	if !cfg.IsDevelopment() || cfg.IsProduction() {
		t.Fatalf("environment predicates wrong")
	}
}

func TestLoad_RateLimitOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "5")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "30")
	t.Setenv("RATE_LIMIT_MAX_IP_REQUESTS", "50")
	t.Setenv("RATE_LIMIT_IP_WINDOW_SECONDS", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rl := cfg.RateLimit
	if rl.MaxRequests != 5 || rl.Window != 30*time.Second || rl.MaxIPRequests != 50 || rl.IPWindow != 120*time.Second {
		t.Fatalf("overrides not applied: %+v", rl)
	}
}

func TestLoad_ProductionRequiresCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("PRIVACY_HASH_SALT", strings.Repeat("s", 32))

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "TWILIO_AUTH_TOKEN") {
		t.Fatalf("expected missing Twilio token error, got %v", err)
	}

	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Fatalf("expected missing Anthropic key error, got %v", err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "key")
	if _, err := Load(); err != nil {
		t.Fatalf("expected valid production config, got %v", err)
	}
}

func TestLoad_ProductionRejectsWeakSalt(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("ANTHROPIC_API_KEY", "key")

	// Placeholder salt refused.
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "PRIVACY_HASH_SALT") {
		t.Fatalf("expected placeholder salt rejection, got %v", err)
	}

	// Short salt refused.
	t.Setenv("PRIVACY_HASH_SALT", "too-short")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "32 characters") {
		t.Fatalf("expected short salt rejection, got %v", err)
	}
}

func TestLoad_AllowedOriginsCSV(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := cfg.CORS.AllowedOrigins
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("AllowedOrigins = %v", got)
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "verbose")
	if _, err := Load(); err == nil {
		t.Fatalf("expected LOG_LEVEL validation error")
	}
}
