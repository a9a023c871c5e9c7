// Package config builds runtime configuration from environment variables so
// main stays lean. Durations accept Go duration syntax ("720h", "30m").
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs at startup.
type Config struct {
	Addr string

	// PostgresDSN selects the Postgres stores when set; otherwise the server
	// runs on in-memory stores (dev and tests only).
	PostgresDSN string

	// RedisURL enables the public-endpoint rate limiter when set.
	RedisURL string

	// KafkaBrokers enables the Kafka audit publisher when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	// JWTSigningKey verifies admin bearer tokens.
	JWTSigningKey string

	// FingerprintSalt is mixed into guest fingerprints. It must be identical
	// on every instance and stable across restarts, or returning guests stop
	// matching their own records.
	FingerprintSalt string

	// ValidityWindow is how long an invitation stays active, counted from
	// order approval, not from purchase.
	ValidityWindow time.Duration

	// DuplicateWindow bounds the backup IP+User-Agent duplicate check.
	DuplicateWindow time.Duration

	// PaymentDeadline bounds how long an order may sit before approval;
	// ExpireStale uses it as the cutoff.
	PaymentDeadline time.Duration

	// Public endpoint rate limiting (per client IP).
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// FromEnv reads configuration, applying development defaults where safe.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:              envOr("FETE_ADDR", ":8080"),
		PostgresDSN:       os.Getenv("FETE_POSTGRES_DSN"),
		RedisURL:          os.Getenv("FETE_REDIS_URL"),
		KafkaTopic:        envOr("FETE_KAFKA_TOPIC", "fete.audit"),
		JWTSigningKey:     envOr("FETE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		FingerprintSalt:   envOr("FETE_FINGERPRINT_SALT", "dev-fingerprint-salt"),
		RateLimitRequests: 60,
		RateLimitWindow:   time.Minute,
	}

	if brokers := os.Getenv("FETE_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	var err error
	if cfg.ValidityWindow, err = durationOr("FETE_VALIDITY_WINDOW", 90*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.DuplicateWindow, err = durationOr("FETE_DUPLICATE_WINDOW", 30*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.PaymentDeadline, err = durationOr("FETE_PAYMENT_DEADLINE", 72*time.Hour); err != nil {
		return Config{}, err
	}
	if raw := os.Getenv("FETE_RATELIMIT_REQUESTS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("FETE_RATELIMIT_REQUESTS must be a positive integer")
		}
		cfg.RateLimitRequests = n
	}
	if cfg.RateLimitWindow, err = durationOr("FETE_RATELIMIT_WINDOW", time.Minute); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
