package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORAGE_ROOT", "/srv/qm")
	t.Setenv("JWT_SECRET", "testsecret123456789012345678901234")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/srv/qm", cfg.Storage.Root)
	assert.Equal(t, filepath.Join("/srv/qm", "qmdoc.sqlite"), cfg.Storage.DatabasePath)
	assert.Equal(t, 12, cfg.Documents.ReviewMonths)
	assert.Equal(t, 300*time.Second, cfg.Documents.LockTTL)
	assert.False(t, cfg.MinIO.Enabled())
	assert.Empty(t, cfg.Redis.Addr())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://qm.example.org, https://intranet.example.org")
	t.Setenv("RENDERER_ARGS", "--headless --convert-to pdf")
	t.Setenv("RATE_LIMIT_ENABLED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "cache:6380", cfg.Redis.Addr())
	assert.True(t, cfg.MinIO.Enabled())
	assert.Equal(t, []string{"https://qm.example.org", "https://intranet.example.org"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, []string{"--headless", "--convert-to", "pdf"}, cfg.Renderer.Args)
	assert.True(t, cfg.RateLimit.Enabled)
}
