package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Generator submission modes.
const (
	GeneratorModeSync  = "sync"
	GeneratorModeAsync = "async"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Dream     DreamConfig     `mapstructure:"dream"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Clamd     ClamdConfig     `mapstructure:"clamd"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SlowQuery       time.Duration `mapstructure:"slow_query"`
}

// RedisConfig contains the Redis address shared by rate limits and asynq.
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// GeneratorConfig describes the external video generation service.
type GeneratorConfig struct {
	Mode            string        `mapstructure:"mode"`
	Region          string        `mapstructure:"region"`
	ModelID         string        `mapstructure:"model_id"`
	OutputURI       string        `mapstructure:"output_uri"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	Timeout         time.Duration `mapstructure:"timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
}

// DreamConfig holds dream orchestration policy.
type DreamConfig struct {
	FallbackVideoURL string        `mapstructure:"fallback_video_url"`
	StrictMode       bool          `mapstructure:"strict_mode"`
	PresignTTL       time.Duration `mapstructure:"presign_ttl"`
	RateLimitPerHour int           `mapstructure:"rate_limit_per_hour"`
}

// AuthConfig holds login throttling settings.
type AuthConfig struct {
	LoginRateLimitPerHour int           `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int           `mapstructure:"login_lock_threshold"`
	LoginLockTTL          time.Duration `mapstructure:"login_lock_ttl"`
}

// WorkerConfig configures the asynq worker and the dream sweep.
type WorkerConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	SweepSpec   string `mapstructure:"sweep_spec"`
	SweepBatch  int    `mapstructure:"sweep_batch"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// ClamdConfig points at an optional clamd daemon; empty address disables scanning.
type ClamdConfig struct {
	Addr string `mapstructure:"addr"`
}

// TelemetryConfig enables OTLP tracing when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Generator.Mode = strings.ToLower(strings.TrimSpace(cfg.Generator.Mode))

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "dreams")
	v.SetDefault("database.user", "dreams")
	v.SetDefault("database.password", "dreams")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.slow_query", 500*time.Millisecond)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.region", "us-east-1")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "dream-creator-images")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("generator.mode", GeneratorModeAsync)
	v.SetDefault("generator.region", "us-east-1")
	v.SetDefault("generator.model_id", "amazon.nova-reel-v1:0")
	v.SetDefault("generator.output_uri", "s3://dream-creator-images/dreams")
	v.SetDefault("generator.timeout", 60*time.Second)
	v.SetDefault("generator.poll_interval", 5*time.Second)
	v.SetDefault("dream.fallback_video_url", "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/BigBuckBunny.mp4")
	v.SetDefault("dream.strict_mode", false)
	v.SetDefault("dream.presign_ttl", time.Hour)
	v.SetDefault("dream.rate_limit_per_hour", 20)
	v.SetDefault("auth.login_rate_limit_per_hour", 10)
	v.SetDefault("auth.login_lock_threshold", 5)
	v.SetDefault("auth.login_lock_ttl", 15*time.Minute)
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.sweep_spec", "@every 1m")
	v.SetDefault("worker.sweep_batch", 50)
	v.SetDefault("worker.metrics_addr", ":9091")
	v.SetDefault("telemetry.service_name", "ai-dream-creater")
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "API_PORT",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"database.max_open_conns":        "DATABASE_MAX_OPEN_CONNS",
		"database.max_idle_conns":        "DATABASE_MAX_IDLE_CONNS",
		"database.conn_max_lifetime":     "DATABASE_CONN_MAX_LIFETIME",
		"database.slow_query":            "DATABASE_SLOW_QUERY",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.public_endpoint":          "MINIO_PUBLIC_ENDPOINT",
		"minio.region":                   "MINIO_REGION",
		"minio.bucket_lookup":            "MINIO_BUCKET_LOOKUP",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.bucket":                   "S3_BUCKET",
		"minio.auto_create_bucket":       "MINIO_AUTO_CREATE_BUCKET",
		"generator.mode":                 "GENERATOR_MODE",
		"generator.region":               "GENERATOR_REGION",
		"generator.model_id":             "GENERATOR_MODEL_ID",
		"generator.output_uri":           "GENERATOR_OUTPUT_URI",
		"generator.access_key_id":        "AWS_ACCESS_KEY_ID",
		"generator.secret_access_key":    "AWS_SECRET_ACCESS_KEY",
		"generator.timeout":              "GENERATOR_TIMEOUT",
		"generator.poll_interval":        "GENERATOR_POLL_INTERVAL",
		"dream.fallback_video_url":       "DREAM_FALLBACK_VIDEO_URL",
		"dream.strict_mode":              "DREAM_STRICT_MODE",
		"dream.presign_ttl":              "DREAM_PRESIGN_TTL",
		"dream.rate_limit_per_hour":      "DREAM_RATE_LIMIT_PER_HOUR",
		"auth.login_rate_limit_per_hour": "LOGIN_RATE_LIMIT_PER_HOUR",
		"auth.login_lock_threshold":      "LOGIN_LOCK_THRESHOLD",
		"auth.login_lock_ttl":            "LOGIN_LOCK_TTL",
		"worker.concurrency":             "WORKER_CONCURRENCY",
		"worker.sweep_spec":              "WORKER_SWEEP_SPEC",
		"worker.sweep_batch":             "WORKER_SWEEP_BATCH",
		"worker.metrics_addr":            "WORKER_METRICS_ADDR",
		"clamd.addr":                     "CLAMD_ADDR",
		"telemetry.endpoint":             "OTEL_ENDPOINT",
		"telemetry.service_name":         "OTEL_SERVICE_NAME",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Database.MaxOpenConns <= 0 || cfg.Database.MaxIdleConns < 0 {
		return errors.New("database pool sizes must be positive")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	switch cfg.Generator.Mode {
	case GeneratorModeSync, GeneratorModeAsync:
	default:
		return fmt.Errorf("generator mode must be %q or %q, got %q", GeneratorModeSync, GeneratorModeAsync, cfg.Generator.Mode)
	}
	if cfg.Generator.ModelID == "" {
		return errors.New("generator model id is required")
	}
	if !strings.HasPrefix(cfg.Generator.OutputURI, "s3://") {
		return errors.New("generator output uri must be an s3:// uri")
	}
	if bucket := strings.SplitN(strings.TrimPrefix(cfg.Generator.OutputURI, "s3://"), "/", 2)[0]; bucket != cfg.MinIO.Bucket {
		return fmt.Errorf("generator output bucket %q must match storage bucket %q", bucket, cfg.MinIO.Bucket)
	}
	if cfg.Generator.Timeout <= 0 {
		return errors.New("generator timeout must be positive")
	}
	if cfg.Generator.PollInterval <= 0 {
		return errors.New("generator poll interval must be positive")
	}
	if cfg.Dream.FallbackVideoURL == "" {
		return errors.New("dream fallback video url is required")
	}
	if cfg.Dream.PresignTTL <= 0 {
		return errors.New("dream presign ttl must be positive")
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be positive")
	}
	return nil
}
