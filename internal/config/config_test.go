package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "local", cfg.Server.ModelMode)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 2, cfg.Policy.PrefetchThreshold)
	assert.Equal(t, 86400, cfg.Policy.MaxTTLSeconds)
	assert.Equal(t, 0.2, cfg.Predictor.Beta)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 9000
  model_mode: baseline
store:
  backend: redis
  redis_address: redis:6379
policy:
  prefetch_threshold: 5
edges:
  - edge_id: edge-east
    region: us-east
    capacity_mb: 200
    default_ttl: 2h
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "baseline", cfg.Server.ModelMode)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis:6379", cfg.Store.RedisAddress)
	assert.Equal(t, 5, cfg.Policy.PrefetchThreshold)
	// Untouched keys keep their defaults.
	assert.Equal(t, 86400, cfg.Policy.MaxTTLSeconds)

	require.Len(t, cfg.Edges, 1)
	assert.Equal(t, "edge-east", cfg.Edges[0].EdgeID)
	assert.Equal(t, 200, cfg.Edges[0].CapacityMB)
	assert.Equal(t, 2*time.Hour, cfg.Edges[0].DefaultTTL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SMARTCDN_PORT", "7070")
	t.Setenv("SMARTCDN_STORE_BACKEND", "redis")
	t.Setenv("SMARTCDN_REDIS_ADDR", "cache:6379")
	t.Setenv("SMARTCDN_JWT_SECRET", "env-secret")

	cfg := Default()
	LoadFromEnv(cfg)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "cache:6379", cfg.Store.RedisAddress)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
}

func TestLoadFromEnv_BadPortIgnored(t *testing.T) {
	t.Setenv("SMARTCDN_PORT", "not-a-port")

	cfg := Default()
	LoadFromEnv(cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
}
