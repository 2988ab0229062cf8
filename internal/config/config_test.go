package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("S3_USE_SSL", "")
	t.Setenv("MEDIA_BASE_URL", "")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "http://localhost:8080/media", cfg.MediaBaseURL)
	assert.Equal(t, StorageInMemory, cfg.Storage)
	assert.False(t, cfg.S3UseSSL)
	assert.True(t, cfg.Seed)
}

func TestLoad_EnvAndFlags(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/feed")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("MEDIA_BASE_URL", "https://feed.example.com/media")

	cfg, err := Load([]string{"-storage", "postgres", "-seed=false"})
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "https://feed.example.com/media", cfg.MediaBaseURL)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.True(t, cfg.S3UseSSL)
	assert.False(t, cfg.Seed)
}

func TestLoad_PostgresRequiresDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load([]string{"-storage", "postgres"})
	assert.Error(t, err)

	_, err = Load([]string{"-storage", "mongo"})
	assert.Error(t, err)
}
