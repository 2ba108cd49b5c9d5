package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"

database:
  url: "postgres://localhost/dm?sslmode=disable"
  max_open_conns: 10

ratelimit:
  backend: redis

dispatch:
  max_jobs_per_pull: 3
  batch_timeout_seconds: 45

cron:
  secret: "s3cret"

auth:
  enabled: true
  api_keys:
    key-a: ws-1

storage:
  type: s3
  s3_bucket: dm-runs

cors:
  allowed_origins: ["chrome-extension://abc"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "postgres://localhost/dm?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, "redis", cfg.RateLimit.Backend)
	assert.Equal(t, 3, cfg.Dispatch.MaxJobsPerPull)
	assert.Equal(t, 45, cfg.Dispatch.BatchTimeoutSeconds)
	assert.Equal(t, "s3cret", cfg.Cron.Secret)
	assert.Equal(t, "ws-1", cfg.Auth.APIKeys["key-a"])
	assert.Equal(t, "s3", cfg.Storage.Type)
	assert.Equal(t, "dm-runs", cfg.Storage.S3Bucket)
	assert.Equal(t, []string{"chrome-extension://abc"}, cfg.CORS.AllowedOrigins)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "postgres", cfg.RateLimit.Backend)
	assert.Equal(t, 5, cfg.Dispatch.MaxJobsPerPull)
	assert.Equal(t, 30, cfg.Dispatch.BatchTimeoutSeconds)
	assert.Equal(t, 30, cfg.Cron.TimeoutSeconds)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, "runs", cfg.Storage.S3Prefix)
	assert.Equal(t, "dm-dispatch.events", cfg.Events.Exchange)
}

func TestDurations(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "30s", cfg.Dispatch.BatchTimeout().String())
	assert.Equal(t, "10s", cfg.Dispatch.CampaignTimeout().String())
	assert.Equal(t, "1m0s", cfg.Dispatch.LockTTL().String())
	assert.Equal(t, "30s", cfg.Cron.Timeout().String())
	assert.Equal(t, "5m0s", cfg.Database.ConnMaxLifetime().String())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated\n"))
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  url: "postgres://file"
cron:
  secret: "from-file"
`)
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("CRON_SECRET", "from-env")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("API_KEYS", "k1=ws-1, k2=ws-2,broken")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env", cfg.Database.URL)
	assert.Equal(t, "from-env", cfg.Cron.Secret)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, map[string]string{"k1": "ws-1", "k2": "ws-2"}, cfg.Auth.APIKeys)
}

func TestGetHost(t *testing.T) {
	t.Setenv("ECS_CONTAINER_METADATA_URI", "")
	t.Setenv("AWS_EXECUTION_ENV", "")
	t.Setenv("SERVER_HOST", "")
	assert.Equal(t, "127.0.0.1", ServerConfig{Host: "127.0.0.1"}.GetHost())

	t.Setenv("SERVER_HOST", "10.0.0.5")
	assert.Equal(t, "10.0.0.5", ServerConfig{Host: "127.0.0.1"}.GetHost())

	t.Setenv("ECS_CONTAINER_METADATA_URI", "http://169.254.170.2/v4")
	assert.Equal(t, "0.0.0.0", ServerConfig{Host: "127.0.0.1"}.GetHost())
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.RateLimit.Backend)
	assert.Equal(t, 5, cfg.Dispatch.MaxJobsPerPull)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.False(t, cfg.Auth.Enabled)
}
