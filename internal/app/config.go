package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // scratch images ship without zoneinfo

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"30s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`
	AppCORSOrigins    []string      `envconfig:"APP_CORS_ORIGINS" default:"*"`
	AppRateLimit      int           `envconfig:"APP_RATE_LIMIT" default:"300"`
	AppLoginRateLimit int           `envconfig:"APP_LOGIN_RATE_LIMIT" default:"10"`
	AppTimezone       string        `envconfig:"APP_TIMEZONE" default:"Asia/Jakarta"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	PGDSN      string `envconfig:"PG_DSN" required:"true"`
	PGMaxConns int32  `envconfig:"PG_MAX_CONNS" default:"8"`
	PGMinConns int32  `envconfig:"PG_MIN_CONNS" default:"1"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"24h"`

	UploadDir      string `envconfig:"UPLOAD_DIR" default:"uploads"`
	UploadMaxBytes int64  `envconfig:"UPLOAD_MAX_BYTES" default:"5242880"`

	ExpirySweepEnabled bool   `envconfig:"EXPIRY_SWEEP_ENABLED" default:"true"`
	ExpirySweepSpec    string `envconfig:"EXPIRY_SWEEP_SPEC" default:"5 0 * * *"`

	ReportCacheTTL time.Duration `envconfig:"REPORT_CACHE_TTL" default:"10m"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	KafkaBrokers    []string `envconfig:"KAFKA_BROKERS"`
	KafkaOrderTopic string   `envconfig:"KAFKA_ORDER_TOPIC" default:"orders.placed"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("jwt secret must be provided")
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)
	cfg.AppCORSOrigins = compact(cfg.AppCORSOrigins)
	return &cfg, nil
}

// RedisConfig is the part of Config the jobs subcommands read.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// LoadRedisConfig reads only the Redis keys, so queue tooling runs without
// database or token settings.
func LoadRedisConfig() (RedisConfig, error) {
	var cfg RedisConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return RedisConfig{}, err
	}
	return cfg, nil
}

// DatabaseConfig is the part of Config the migrate subcommands read.
type DatabaseConfig struct {
	PGDSN         string `envconfig:"PG_DSN" required:"true"`
	MigrationsDir string `envconfig:"MIGRATIONS_DIR" default:"migrations"`
}

// LoadDatabaseConfig reads PG_DSN and MIGRATIONS_DIR.
func LoadDatabaseConfig() (DatabaseConfig, error) {
	var cfg DatabaseConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return DatabaseConfig{}, err
	}
	return cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Location resolves APP_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	if c == nil || c.AppTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return nil, fmt.Errorf("app: timezone %q: %w", c.AppTimezone, err)
	}
	return loc, nil
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
