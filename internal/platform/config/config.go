// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration.
type Config struct {
	Server   Server
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Provider ProviderConfig
	Identity IdentityConfig
	Bulk     BulkConfig
	Limits   RateLimitConfig

	SeedSchemas bool
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string
	// RequireAuth gates mutating routes behind a bearer token signed with the
	// identity signing key.
	RequireAuth bool
}

// PostgresConfig selects the PostgreSQL backend when URL is set.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig selects the Redis credential store when URL is set and no
// PostgreSQL URL is configured.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the Kafka telemetry sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// ProviderConfig configures the external cryptography and ledger services.
type ProviderConfig struct {
	Timeout           time.Duration
	CryptoURL         string
	CryptoDevSecret   string
	LedgerURL         string
	LedgerContractRef string
}

// IdentityConfig configures the service-account session used to call the
// cryptography provider.
type IdentityConfig struct {
	SigningKey string
	ServiceDID string
	TokenTTL   time.Duration
}

// BulkConfig bounds bulk issuance runs.
type BulkConfig struct {
	MaxConcurrency int
	MaxRecords     int
}

// RateLimitConfig bounds mutating requests per caller per minute. Counters
// live in Redis when REDIS_URL is set.
type RateLimitConfig struct {
	Enabled        bool
	WritePerMinute int
	BulkPerMinute  int
}

const (
	defaultDevSecret  = "dev-secret-key-change-in-production"
	defaultServiceDID = "did:moca:registry"
)

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs []string
	dur := func(key string, def time.Duration) time.Duration {
		v, err := durationEnv(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	num := func(key string, def int) int {
		v, err := intEnv(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	cfg := Config{
		Server: Server{
			Addr:        stringEnv("CREDREG_ADDR", ":8080"),
			Environment: stringEnv("CREDREG_ENV", "dev"),
			LogLevel:    stringEnv("LOG_LEVEL", "info"),
			RequireAuth: os.Getenv("REQUIRE_AUTH") == "true",
		},
		Postgres: PostgresConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: num("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns: num("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     num("REDIS_POOL_SIZE", 10),
			MinIdleConns: num("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  dur("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  dur("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: dur("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: listEnv("KAFKA_BROKERS"),
			Topic:   stringEnv("KAFKA_TELEMETRY_TOPIC", "credreg.telemetry"),
		},
		Provider: ProviderConfig{
			Timeout:           dur("PROVIDER_TIMEOUT", 5*time.Second),
			CryptoURL:         os.Getenv("CRYPTO_PROVIDER_URL"),
			CryptoDevSecret:   stringEnv("CRYPTO_DEV_SECRET", defaultDevSecret),
			LedgerURL:         os.Getenv("LEDGER_URL"),
			LedgerContractRef: os.Getenv("LEDGER_CONTRACT"),
		},
		Identity: IdentityConfig{
			SigningKey: stringEnv("IDENTITY_SIGNING_KEY", defaultDevSecret),
			ServiceDID: stringEnv("IDENTITY_SERVICE_DID", defaultServiceDID),
			TokenTTL:   dur("IDENTITY_TOKEN_TTL", 15*time.Minute),
		},
		Bulk: BulkConfig{
			MaxConcurrency: num("BULK_MAX_CONCURRENCY", 4),
			MaxRecords:     num("BULK_MAX_RECORDS", 1000),
		},
		Limits: RateLimitConfig{
			Enabled:        stringEnv("RATE_LIMIT_ENABLED", "true") == "true",
			WritePerMinute: num("RATE_LIMIT_WRITE_PER_MINUTE", 120),
			BulkPerMinute:  num("RATE_LIMIT_BULK_PER_MINUTE", 10),
		},
		SeedSchemas: stringEnv("SEED_SCHEMAS", "true") == "true",
	}

	if cfg.Provider.Timeout <= 0 {
		errs = append(errs, "PROVIDER_TIMEOUT must be positive")
	}
	if cfg.Bulk.MaxConcurrency < 1 {
		errs = append(errs, "BULK_MAX_CONCURRENCY must be at least 1")
	}
	if cfg.Bulk.MaxRecords < 1 {
		errs = append(errs, "BULK_MAX_RECORDS must be at least 1")
	}
	if cfg.Limits.WritePerMinute < 1 || cfg.Limits.BulkPerMinute < 1 {
		errs = append(errs, "rate limits must be at least 1 per minute")
	}
	if cfg.IsProduction() {
		if cfg.Identity.SigningKey == defaultDevSecret {
			errs = append(errs, "IDENTITY_SIGNING_KEY must be set in production")
		}
		if cfg.Provider.CryptoURL == "" {
			errs = append(errs, "CRYPTO_PROVIDER_URL must be set in production")
		}
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// IsProduction reports whether the process runs with production safeguards.
func (c Config) IsProduction() bool {
	return c.Server.Environment == "prod" || c.Server.Environment == "production"
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("%s must be an integer", key)
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("%s must be a duration like 5s", key)
	}
	return v, nil
}

func listEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
