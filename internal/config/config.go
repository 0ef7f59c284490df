package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// NewConfig creates a Config populated with the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Port:        "",
		RedisURL:    "",
		PostgresURL: "",
		LogLevel:    "info",

		AMQPURL:      "",
		AMQPExchange: "reservation.audit",

		ReservationTTLSeconds:     300,
		MaxQuantityPerReservation: 5,
		SweeperIntervalSeconds:    1,
		SweeperBatchSize:          100,
		IdempotencyTTLSeconds:     600,

		JWTSecret:          "",
		JWTTokenTTLSeconds: 3600,

		RateLimitEnabled:        true,
		RateLimitCapacity:       20,
		RateLimitRefillTokens:   1,
		RateLimitRefillInterval: time.Second,
	}
}

// ParseFlags loads an optional .env file, registers the built-in flags,
// parses them, and finally applies environment variable overrides — the
// same precedence order (flags, then env) the teacher's config uses,
// with a .env load spliced in ahead of flag parsing so local development
// doesn't need the variables exported in the shell.
func (c *Config) ParseFlags() {
	_ = godotenv.Load()

	flag.StringVar(&c.Port, "port", "8080", "Port to listen on")
	flag.StringVar(&c.RedisURL, "redis-url", "localhost:6379", "Redis URL for the hot-state store")
	flag.StringVar(&c.PostgresURL, "postgres-url", "postgres://localhost:5432/reservations?sslmode=disable", "Postgres URL for the durable store")
	flag.StringVar(&c.LogLevel, "log-level", "info", "Log level")
	flag.StringVar(&c.AMQPURL, "amqp-url", "", "AMQP URL for the audit event mirror (disabled when empty)")
	flag.StringVar(&c.AMQPExchange, "amqp-exchange", c.AMQPExchange, "AMQP exchange to publish audit events to")

	flag.IntVar(&c.ReservationTTLSeconds, "reservation-ttl-seconds", c.ReservationTTLSeconds, "Reservation hold duration in seconds")
	flag.IntVar(&c.MaxQuantityPerReservation, "max-quantity-per-reservation", c.MaxQuantityPerReservation, "Maximum units per reservation")
	flag.IntVar(&c.SweeperIntervalSeconds, "sweeper-interval-seconds", c.SweeperIntervalSeconds, "Expiry sweeper tick cadence in seconds")
	flag.IntVar(&c.SweeperBatchSize, "sweeper-batch-size", c.SweeperBatchSize, "Expiry sweeper max reservations per tick")
	flag.IntVar(&c.IdempotencyTTLSeconds, "idempotency-ttl-seconds", c.IdempotencyTTLSeconds, "Idempotency mapping TTL in seconds")

	flag.StringVar(&c.JWTSecret, "jwt-secret", c.JWTSecret, "HMAC secret for bearer token verification")
	flag.IntVar(&c.JWTTokenTTLSeconds, "jwt-token-ttl-seconds", c.JWTTokenTTLSeconds, "Issued bearer token lifetime in seconds")

	flag.BoolVar(&c.RateLimitEnabled, "rate-limit-enabled", c.RateLimitEnabled, "Enable the per-user rate gate")
	flag.IntVar(&c.RateLimitCapacity, "rate-limit-capacity", c.RateLimitCapacity, "Token bucket capacity")
	flag.IntVar(&c.RateLimitRefillTokens, "rate-limit-refill-tokens", c.RateLimitRefillTokens, "Tokens added per refill interval")

	flag.Parse()

	c.LoadEnvVars()
}

// LoadEnvVars applies environment variable overrides, taking precedence
// over both defaults and flags.
func (c *Config) LoadEnvVars() {
	setString(&c.Port, "PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.PostgresURL, "POSTGRES_URL")
	setString(&c.AMQPURL, "AMQP_URL")
	setString(&c.AMQPExchange, "AMQP_EXCHANGE")

	setInt(&c.ReservationTTLSeconds, "RESERVATION_TTL_SECONDS")
	setInt(&c.MaxQuantityPerReservation, "MAX_QUANTITY_PER_RESERVATION")
	setInt(&c.SweeperIntervalSeconds, "SWEEPER_INTERVAL_SECONDS")
	setInt(&c.SweeperBatchSize, "SWEEPER_BATCH_SIZE")
	setInt(&c.IdempotencyTTLSeconds, "IDEMPOTENCY_TTL_SECONDS")

	setString(&c.JWTSecret, "JWT_SECRET")
	setInt(&c.JWTTokenTTLSeconds, "JWT_TOKEN_TTL_SECONDS")

	setBool(&c.RateLimitEnabled, "RATE_LIMIT_ENABLED")
	setInt(&c.RateLimitCapacity, "RATE_LIMIT_CAPACITY")
	setInt(&c.RateLimitRefillTokens, "RATE_LIMIT_REFILL_TOKENS")
	setDuration(&c.RateLimitRefillInterval, "RATE_LIMIT_REFILL_INTERVAL")
}

func setString(dst *string, key string) {
	if v, found := os.LookupEnv(key); found && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, found := os.LookupEnv(key); found && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, found := os.LookupEnv(key); found && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, found := os.LookupEnv(key); found && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// GetPort returns the configured HTTP listen port.
func (c *Config) GetPort() string { return c.Port }

// GetRedisURL returns the configured hot-state store address.
func (c *Config) GetRedisURL() string { return c.RedisURL }

// GetPostgresURL returns the configured durable store DSN.
func (c *Config) GetPostgresURL() string { return c.PostgresURL }

// GetLogLevel returns the configured log level.
func (c *Config) GetLogLevel() string { return c.LogLevel }
