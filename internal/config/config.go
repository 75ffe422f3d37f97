package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Assignment AssignmentConfig
	Ingestion  IngestionConfig
	Worker     WorkerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
	LockTimeoutMs  int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces every key this deployment writes.
	KeyPrefix     string
	DialTimeoutMs int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Encoding    string
	Development bool
}

// AuthConfig defines admin token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	// IdentityTokenHash is the bcrypt hash of the token the identity provider presents.
	IdentityTokenHash string
}

// AssignmentConfig tunes the rotation engine.
type AssignmentConfig struct {
	Sources            []string
	MaxAttempts        int
	BackoffBaseMs      int
	BackoffCapMs       int
	DefaultPhoneRegion string
}

// IngestionConfig tunes the webhook entry point.
type IngestionConfig struct {
	DedupeTTLSeconds   int
	RateLimitPerSecond float64
	RateLimitBurst     int
	// WebhookTokenHashes maps a lead source to the bcrypt hash of its webhook token.
	WebhookTokenHashes map[string]string
}

// WorkerConfig configures the identity sync worker.
type WorkerConfig struct {
	Queue           string
	Concurrency     int
	SyncMaxAttempts int
}

const webhookTokenHashPrefix = "WEBHOOK_TOKEN_HASH_"

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	rate, err := strconv.ParseFloat(getEnv("INGEST_RATE_LIMIT_PER_SECOND", "20"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_RATE_LIMIT_PER_SECOND: %w", err)
	}

	sources := getEnvAsList("LEAD_SOURCES", []string{"aiquinto", "prestitionline", "cessionequinto"})
	if len(sources) == 0 {
		return nil, fmt.Errorf("LEAD_SOURCES must list at least one source")
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))
	env := getEnv("APP_ENV", "development")

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "lead-router"),
			Env:                   env,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
			LockTimeoutMs:  getEnvAsInt("POSTGRES_LOCK_TIMEOUT_MS", 2000),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            redisDB,
			KeyPrefix:     getEnv("REDIS_KEY_PREFIX", "lead-router"),
			DialTimeoutMs: getEnvAsInt("REDIS_DIAL_TIMEOUT_MS", 2000),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Encoding:    getEnv("LOG_ENCODING", "json"),
			Development: strings.EqualFold(env, "development"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			IdentityTokenHash:     os.Getenv("IDENTITY_TOKEN_HASH"),
		},
		Assignment: AssignmentConfig{
			Sources:            sources,
			MaxAttempts:        getEnvAsInt("ASSIGN_MAX_ATTEMPTS", 5),
			BackoffBaseMs:      getEnvAsInt("ASSIGN_BACKOFF_BASE_MS", 10),
			BackoffCapMs:       getEnvAsInt("ASSIGN_BACKOFF_CAP_MS", 250),
			DefaultPhoneRegion: getEnv("LEAD_DEFAULT_PHONE_REGION", "IT"),
		},
		Ingestion: IngestionConfig{
			DedupeTTLSeconds:   getEnvAsInt("INGEST_DEDUPE_TTL_SECONDS", 86400),
			RateLimitPerSecond: rate,
			RateLimitBurst:     getEnvAsInt("INGEST_RATE_LIMIT_BURST", 40),
			WebhookTokenHashes: webhookTokenHashes(os.Environ()),
		},
		Worker: WorkerConfig{
			Queue:           getEnv("WORKER_QUEUE", "identity"),
			Concurrency:     getEnvAsInt("WORKER_CONCURRENCY", 5),
			SyncMaxAttempts: getEnvAsInt("IDENTITY_SYNC_MAX_ATTEMPTS", 5),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// LockTimeout returns the per-transaction lock timeout.
func (p PostgresConfig) LockTimeout() time.Duration {
	return time.Duration(p.LockTimeoutMs) * time.Millisecond
}

// DialTimeout bounds connecting to Redis.
func (r RedisConfig) DialTimeout() time.Duration {
	return time.Duration(r.DialTimeoutMs) * time.Millisecond
}

// BackoffBase returns the first retry delay.
func (a AssignmentConfig) BackoffBase() time.Duration {
	return time.Duration(a.BackoffBaseMs) * time.Millisecond
}

// BackoffCap returns the maximum retry delay.
func (a AssignmentConfig) BackoffCap() time.Duration {
	return time.Duration(a.BackoffCapMs) * time.Millisecond
}

// DedupeTTL returns how long a delivered external reference is remembered.
func (i IngestionConfig) DedupeTTL() time.Duration {
	return time.Duration(i.DedupeTTLSeconds) * time.Second
}

func webhookTokenHashes(environ []string) map[string]string {
	hashes := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, webhookTokenHashPrefix) || value == "" {
			continue
		}
		source := strings.ToLower(strings.TrimPrefix(key, webhookTokenHashPrefix))
		hashes[source] = value
	}
	return hashes
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
