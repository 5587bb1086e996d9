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
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Ingest       IngestConfig
	Assignment   AssignmentConfig
	Scheduler    SchedulerConfig
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

// PostgresConfig holds DB connection values. An empty DSN selects the in-memory store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
	// Output is a zap sink such as stdout, stderr or a file path.
	Output string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// NotificationConfig controls the notification outbox.
type NotificationConfig struct {
	OutboxKey      string
	QueueSize      int
	DeliverTimeout time.Duration
}

// IngestConfig describes the support mailbox.
type IngestConfig struct {
	Protocol     string
	Host         string
	Port         int
	Username     string
	Password     string
	Mailbox      string
	TLS          bool
	Interval     time.Duration
	RetryInitial time.Duration
	RetryMax     time.Duration
	BatchLimit   int
}

// Enabled reports whether a mailbox is configured.
func (c IngestConfig) Enabled() bool {
	return c.Host != "" && c.Username != ""
}

// Addr returns host:port of the mailbox server.
func (c IngestConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AssignmentConfig tunes the assignment engine and staff directory.
type AssignmentConfig struct {
	StoreTimeout      time.Duration
	ProtectedAccounts []string
}

// SchedulerConfig holds cron specs for background jobs. Empty spec disables a job.
type SchedulerConfig struct {
	MetricsRefreshSpec string
	StaleInsightSpec   string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	protocol := strings.ToLower(getEnv("INGEST_PROTOCOL", "imap"))
	if protocol != "imap" && protocol != "pop3" {
		return nil, fmt.Errorf("invalid INGEST_PROTOCOL %q: want imap or pop3", protocol)
	}
	defaultPort := 993
	if protocol == "pop3" {
		defaultPort = 995
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Notification: NotificationConfig{
			OutboxKey:      getEnv("NOTIFY_OUTBOX_KEY", "helpdesk:notifications"),
			QueueSize:      getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
			DeliverTimeout: getEnvAsDuration("NOTIFY_DELIVER_TIMEOUT", 10*time.Second),
		},
		Ingest: IngestConfig{
			Protocol:     protocol,
			Host:         os.Getenv("INGEST_HOST"),
			Port:         getEnvAsInt("INGEST_PORT", defaultPort),
			Username:     os.Getenv("INGEST_USERNAME"),
			Password:     os.Getenv("INGEST_PASSWORD"),
			Mailbox:      getEnv("INGEST_MAILBOX", "INBOX"),
			TLS:          getEnvAsBool("INGEST_TLS", true),
			Interval:     getEnvAsDuration("INGEST_INTERVAL", 15*time.Minute),
			RetryInitial: getEnvAsDuration("INGEST_RETRY_INITIAL", 30*time.Second),
			RetryMax:     getEnvAsDuration("INGEST_RETRY_MAX", 5*time.Minute),
			BatchLimit:   getEnvAsInt("INGEST_BATCH_LIMIT", 50),
		},
		Assignment: AssignmentConfig{
			StoreTimeout:      getEnvAsDuration("ASSIGNMENT_STORE_TIMEOUT", 10*time.Second),
			ProtectedAccounts: getEnvAsList("ASSIGNMENT_PROTECTED_ACCOUNTS", []string{"admin@helpdesk.local"}),
		},
		Scheduler: SchedulerConfig{
			MetricsRefreshSpec: getEnv("SCHEDULER_METRICS_REFRESH", "@every 1m"),
			StaleInsightSpec:   getEnv("SCHEDULER_STALE_INSIGHTS", "@every 30m"),
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

// AccessTokenTTL returns the JWT lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
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

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
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
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
