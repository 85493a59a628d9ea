package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Daraja   DarajaConfig
	Payments PaymentsConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// DarajaConfig holds the Safaricom Daraja API credentials. ConsumerKey and
// ConsumerSecret authenticate the OAuth token fetch; ShortCode and Passkey
// sign each STK push request.
type DarajaConfig struct {
	Environment    string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	AccountRef     string
	Timeout        time.Duration
}

type PaymentsConfig struct {
	// CountryCode is the dialing prefix payer numbers must carry, without
	// the leading plus (e.g. "254").
	CountryCode string
	// CallbackBaseURL is the public base the provider posts results to.
	CallbackBaseURL string
	// RequireCallbackToken rejects result notifications that do not carry
	// the per-payment token embedded in the callback URL.
	RequireCallbackToken bool
	// IdempotencyTTL bounds how long an in-flight idempotency key stays
	// reserved in Redis.
	IdempotencyTTL time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "sangpoint"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Daraja: DarajaConfig{
			Environment:    getEnv("MPESA_ENVIRONMENT", "sandbox"),
			ConsumerKey:    getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret: getEnv("MPESA_CONSUMER_SECRET", ""),
			ShortCode:      getEnv("MPESA_SHORT_CODE", ""),
			Passkey:        getEnv("MPESA_PASSKEY", ""),
			AccountRef:     getEnv("MPESA_ACCOUNT_REF", "SANGPOINT"),
			Timeout:        getEnvDuration("MPESA_TIMEOUT", 30*time.Second),
		},
		Payments: PaymentsConfig{
			CountryCode:          getEnv("PAYMENTS_COUNTRY_CODE", "254"),
			CallbackBaseURL:      getEnv("CALLBACK_BASE_URL", ""),
			RequireCallbackToken: getEnvBool("CALLBACK_REQUIRE_TOKEN", true),
			IdempotencyTTL:       getEnvDuration("IDEMPOTENCY_TTL", 5*time.Minute),
		},
	}

	if cfg.Daraja.ConsumerKey == "" || cfg.Daraja.ConsumerSecret == "" {
		return nil, fmt.Errorf("MPESA_CONSUMER_KEY and MPESA_CONSUMER_SECRET are required")
	}
	if cfg.Daraja.ShortCode == "" || cfg.Daraja.Passkey == "" {
		return nil, fmt.Errorf("MPESA_SHORT_CODE and MPESA_PASSKEY are required")
	}
	if cfg.Payments.CallbackBaseURL == "" {
		return nil, fmt.Errorf("CALLBACK_BASE_URL is required")
	}

	return cfg, nil
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
