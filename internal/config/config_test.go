package config

import (
	"testing"
	"time"
)

var configKeys = []string{
	"APP_ENV", "DATABASE_URL", "REDIS_URL", "JWT_SECRET_KEY", "JWT_ALGORITHM",
	"JWT_ACCESS_TOKEN_EXPIRE_MINUTES", "JWT_REFRESH_TOKEN_EXPIRE_DAYS",
	"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_VERIFY_SERVICE_SID",
	"SHUTDOWN_TIMEOUT_SECONDS", "SHUTDOWN_TIMEOUT", "VERIFICATION_TIMEOUT",
	"BCRYPT_COST", "ALLOWED_ORIGINS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDevelopmentDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsDevelopment() {
		t.Fatalf("expected development env, got %q", cfg.AppEnv)
	}
	if cfg.AccessTokenTTL != 30*time.Minute || cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Fatalf("unexpected ttls %s / %s", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	}
	if cfg.JWTSecret == "" {
		t.Fatalf("expected development secret fallback")
	}
	if cfg.TwilioConfigured() {
		t.Fatalf("twilio should be unconfigured")
	}
	tc := cfg.Token()
	if tc.Algorithm != "HS256" || tc.AccessTTL != 30*time.Minute {
		t.Fatalf("unexpected token config %+v", tc)
	}
	if cfg.Twilio().Timeout != 10*time.Second {
		t.Fatalf("unexpected verification timeout %s", cfg.Twilio().Timeout)
	}
}

func TestLoadProductionRequiresSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("DATABASE_URL", "postgres://localhost/onlyfriends")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error without JWT_SECRET_KEY")
	}

	t.Setenv("JWT_SECRET_KEY", "s3cret")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without twilio settings")
	}

	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("TWILIO_VERIFY_SERVICE_SID", "VA123")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IsDevelopment() || !cfg.TwilioConfigured() {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_ACCESS_TOKEN_EXPIRE_MINUTES", "15")
	t.Setenv("JWT_REFRESH_TOKEN_EXPIRE_DAYS", "1")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("VERIFICATION_TIMEOUT", "2s")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AccessTokenTTL != 15*time.Minute || cfg.RefreshTokenTTL != 24*time.Hour {
		t.Fatalf("unexpected ttls %s / %s", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	}
	if cfg.ShutdownPeriod != 3*time.Second || cfg.VerificationTimeout != 2*time.Second {
		t.Fatalf("unexpected durations %s / %s", cfg.ShutdownPeriod, cfg.VerificationTimeout)
	}
	if got := cfg.Origins(); got != "https://a.example,https://b.example" {
		t.Fatalf("unexpected origins %q", got)
	}

	t.Setenv("BCRYPT_COST", "high")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid BCRYPT_COST")
	}
}

func TestAddress(t *testing.T) {
	if got := (Config{Port: "9000"}).Address(); got != ":9000" {
		t.Fatalf("got %q", got)
	}
	if got := (Config{Port: ":9000"}).Address(); got != ":9000" {
		t.Fatalf("got %q", got)
	}
}
