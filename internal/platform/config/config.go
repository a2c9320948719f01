package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. FromEnv keeps main lean.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string

	// AdminTokenHash is the bcrypt hash of the operator admin token. When
	// empty, AdminToken carries a plaintext development default that is
	// hashed at startup.
	AdminTokenHash string
	AdminToken     string

	// PostgresURL enables the Postgres-backed stores; empty means in-memory.
	PostgresURL string

	Redis RedisConfig

	// KafkaBrokers enables the Kafka audit publisher; empty means the
	// in-memory sink.
	KafkaBrokers []string
	AuditTopic   string

	// SuperAdminAddress identifies the bootstrap super admin. Empty means
	// a fresh address is minted at startup and logged.
	SuperAdminAddress string

	// FaucetAmount is credited to each newly registered account so
	// development participants can fund payments. Zero disables the faucet.
	FaucetAmount uint64

	// DecisionRateLimit bounds decision submissions per actor per window.
	DecisionRateLimit  int
	DecisionRateWindow time.Duration
}

// RedisConfig carries connection settings for the Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:           envOr("BXHIVE_ADDR", ":8080"),
		JWTSigningKey:  envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:      envOr("JWT_ISSUER", "bxhive"),
		AdminTokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
		AdminToken:     envOr("ADMIN_TOKEN", "dev-admin-token"),
		PostgresURL:    os.Getenv("POSTGRES_URL"),
		AuditTopic:     envOr("KAFKA_AUDIT_TOPIC", "bxhive.audit"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		SuperAdminAddress:  os.Getenv("SUPER_ADMIN_ADDRESS"),
		FaucetAmount:       envUint("FAUCET_AMOUNT", 10_000_000),
		DecisionRateLimit:  envInt("DECISION_RATE_LIMIT", 30),
		DecisionRateWindow: envDuration("DECISION_RATE_WINDOW", time.Minute),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envUint(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
