package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/onlyfriends/onlyfriends/internal/token"
	"github.com/onlyfriends/onlyfriends/internal/verification"
)

const (
	defaultAppName             = "OnlyFriends"
	defaultAppEnv              = "development"
	defaultPort                = "8080"
	defaultLogLevel            = "info"
	defaultShutdownDelay       = 10 * time.Second
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultJWTAlgorithm        = token.DefaultAlgorithm
	defaultAccessMinutes       = 30
	defaultRefreshDays         = 7
	defaultBcryptCost          = 12
	defaultTwilioBaseURL       = verification.DefaultTwilioBaseURL
	defaultVerificationTimeout = 10 * time.Second
	defaultDevVerificationTTL  = 10 * time.Minute
	defaultRateLimitPerMinute  = 5
	defaultAllowedOrigins      = "*"

	// devJWTSecret is only ever used when APP_ENV is development.
	devJWTSecret = "dev-only-insecure-secret"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSecret       string
	JWTAlgorithm    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int

	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioServiceSID    string
	TwilioBaseURL       string
	VerificationTimeout time.Duration
	DevVerificationTTL  time.Duration

	RateLimitPerMinute int
	AllowedOrigins     string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET_KEY"),
		JWTAlgorithm:     strings.ToUpper(getEnv("JWT_ALGORITHM", defaultJWTAlgorithm)),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioServiceSID: os.Getenv("TWILIO_VERIFY_SERVICE_SID"),
		TwilioBaseURL:    getEnv("TWILIO_VERIFY_BASE_URL", defaultTwilioBaseURL),
		AllowedOrigins:   getEnv("ALLOWED_ORIGINS", defaultAllowedOrigins),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT_SECONDS", "SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL_SECONDS", "IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.VerificationTimeout, err = durationEnv("VERIFICATION_TIMEOUT_SECONDS", "VERIFICATION_TIMEOUT", defaultVerificationTimeout); err != nil {
		return Config{}, err
	}
	if cfg.DevVerificationTTL, err = durationEnv("DEV_VERIFICATION_TTL_SECONDS", "DEV_VERIFICATION_TTL", defaultDevVerificationTTL); err != nil {
		return Config{}, err
	}

	minutes, err := intEnv("JWT_ACCESS_TOKEN_EXPIRE_MINUTES", defaultAccessMinutes)
	if err != nil {
		return Config{}, err
	}
	cfg.AccessTokenTTL = time.Duration(minutes) * time.Minute
	days, err := intEnv("JWT_REFRESH_TOKEN_EXPIRE_DAYS", defaultRefreshDays)
	if err != nil {
		return Config{}, err
	}
	cfg.RefreshTokenTTL = time.Duration(days) * 24 * time.Hour
	if cfg.BcryptCost, err = intEnv("BCRYPT_COST", defaultBcryptCost); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitPerMinute, err = intEnv("RATE_LIMIT_PER_MINUTE", defaultRateLimitPerMinute); err != nil {
		return Config{}, err
	}

	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return Config{}, errors.New("token lifetimes must be positive")
	}

	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}

	if cfg.IsDevelopment() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devJWTSecret
		}
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET_KEY must be set")
	}
	if !cfg.TwilioConfigured() {
		return Config{}, fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_VERIFY_SERVICE_SID must be set")
	}

	return cfg, nil
}

// IsDevelopment reports whether the process runs with development fallbacks.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev" || c.AppEnv == "local"
}

// TwilioConfigured reports whether every Twilio Verify setting is present.
func (c Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioServiceSID != ""
}

// Token returns the signing settings for the token codec.
func (c Config) Token() token.Config {
	return token.Config{
		Secret:     []byte(c.JWTSecret),
		Algorithm:  c.JWTAlgorithm,
		AccessTTL:  c.AccessTokenTTL,
		RefreshTTL: c.RefreshTokenTTL,
	}
}

// Twilio returns the Verify client settings.
func (c Config) Twilio() verification.TwilioConfig {
	return verification.TwilioConfig{
		AccountSID: c.TwilioAccountSID,
		AuthToken:  c.TwilioAuthToken,
		ServiceSID: c.TwilioServiceSID,
		BaseURL:    c.TwilioBaseURL,
		Timeout:    c.VerificationTimeout,
	}
}

// Origins splits ALLOWED_ORIGINS into the comma list CORS expects.
func (c Config) Origins() string {
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv prefers a whole-seconds variable and falls back to a Go duration string.
func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
