package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Cron      CronConfig      `yaml:"cron"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Events    EventsConfig    `yaml:"events"`
	CORS      CORSConfig      `yaml:"cors"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                int    `yaml:"port"`
	Host                string `yaml:"host"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// ReadTimeout returns the HTTP read timeout as a duration
func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the HTTP write timeout as a duration
func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ConnMaxLifetime returns the pool connection lifetime as a duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// RateLimitConfig selects the daily counter backend.
type RateLimitConfig struct {
	Backend       string `yaml:"backend"` // "postgres", "redis", "dynamodb" or "memory"
	DynamoDBTable string `yaml:"dynamodb_table"`
}

// DispatchConfig holds job materialization and batch settings
type DispatchConfig struct {
	MaxJobsPerPull         int `yaml:"max_jobs_per_pull"`
	BatchTimeoutSeconds    int `yaml:"batch_timeout_seconds"`
	CampaignTimeoutSeconds int `yaml:"campaign_timeout_seconds"`
	LockTTLSeconds         int `yaml:"lock_ttl_seconds"`
}

// BatchTimeout returns the overall batch deadline as a duration
func (c DispatchConfig) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutSeconds) * time.Second
}

// CampaignTimeout returns the per-campaign deadline as a duration
func (c DispatchConfig) CampaignTimeout() time.Duration {
	return time.Duration(c.CampaignTimeoutSeconds) * time.Second
}

// LockTTL returns the batch lock lease as a duration
func (c DispatchConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// CronConfig holds the shared secret for the batch endpoint and the
// settings used by the cron client binary.
type CronConfig struct {
	Secret         string `yaml:"secret"`
	TargetURL      string `yaml:"target_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the cron client timeout as a duration
func (c CronConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AuthConfig maps API keys to workspaces.
type AuthConfig struct {
	Enabled bool              `yaml:"enabled"`
	APIKeys map[string]string `yaml:"api_keys"` // key -> workspace ID
}

// StorageConfig holds run archive configuration
type StorageConfig struct {
	Type       string `yaml:"type"` // "s3" or "local"
	LocalPath  string `yaml:"local_path"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Prefix   string `yaml:"s3_prefix"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)

	// S3Endpoint points the client at an S3-compatible store (MinIO, LocalStack).
	S3Endpoint      string `yaml:"s3_endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// EventsConfig holds the lifecycle event publisher settings. An empty
// AMQPURL disables publishing.
type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

// CORSConfig holds allowed origins for browser clients
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 60
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 5
	}
	if cfg.RateLimit.Backend == "" {
		cfg.RateLimit.Backend = "postgres"
	}
	if cfg.RateLimit.DynamoDBTable == "" {
		cfg.RateLimit.DynamoDBTable = "dm-dispatch-counters"
	}
	if cfg.Dispatch.MaxJobsPerPull == 0 {
		cfg.Dispatch.MaxJobsPerPull = 5
	}
	if cfg.Dispatch.BatchTimeoutSeconds == 0 {
		cfg.Dispatch.BatchTimeoutSeconds = 30
	}
	if cfg.Dispatch.CampaignTimeoutSeconds == 0 {
		cfg.Dispatch.CampaignTimeoutSeconds = 10
	}
	if cfg.Dispatch.LockTTLSeconds == 0 {
		cfg.Dispatch.LockTTLSeconds = 60
	}
	if cfg.Cron.TimeoutSeconds == 0 {
		cfg.Cron.TimeoutSeconds = 30
	}
	if cfg.Cron.MaxRetries == 0 {
		cfg.Cron.MaxRetries = 2
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data"
	}
	if cfg.Storage.S3Prefix == "" {
		cfg.Storage.S3Prefix = "runs"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-east-1"
	}
	if cfg.Events.Exchange == "" {
		cfg.Events.Exchange = "dm-dispatch.events"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("RATELIMIT_BACKEND"); v != "" {
		cfg.RateLimit.Backend = v
	}
	if v := os.Getenv("CRON_SECRET"); v != "" {
		cfg.Cron.Secret = v
	}
	if v := os.Getenv("CRON_TARGET_URL"); v != "" {
		cfg.Cron.TargetURL = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.Events.AMQPURL = v
	}
	if v := os.Getenv("STORAGE_S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
	}
	if v := os.Getenv("STORAGE_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3Endpoint = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Storage.AWSRegion = v
	}
	// API_KEYS is a comma-separated list of key=workspace pairs.
	if v := os.Getenv("API_KEYS"); v != "" {
		if cfg.Auth.APIKeys == nil {
			cfg.Auth.APIKeys = make(map[string]string)
		}
		for _, pair := range strings.Split(v, ",") {
			key, ws, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if ok && key != "" && ws != "" {
				cfg.Auth.APIKeys[key] = ws
			}
		}
		cfg.Auth.Enabled = true
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = strings.Split(v, ",")
	}

	return cfg, nil
}
