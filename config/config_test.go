package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "saveher", cfg.MongoDB)
	assert.Equal(t, 3000.0, cfg.AlertRadiusMeters)
	assert.False(t, cfg.AllowMultipleActive)
	assert.Equal(t, 5*time.Second, cfg.UpstreamTimeout)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("MONGODB_URI", "")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MONGODB_URI")
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ALERT_RADIUS_METERS", "5000")
	t.Setenv("ALLOW_MULTIPLE_ACTIVE", "true")
	t.Setenv("UPSTREAM_TIMEOUT", "2s")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5000.0, cfg.AlertRadiusMeters)
	assert.True(t, cfg.AllowMultipleActive)
	assert.Equal(t, 2*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoadRejectsBadValues(t *testing.T) {
	setRequired(t)

	t.Run("bad radius", func(t *testing.T) {
		t.Setenv("ALERT_RADIUS_METERS", "-1")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad timeout", func(t *testing.T) {
		t.Setenv("UPSTREAM_TIMEOUT", "soon")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad redis db", func(t *testing.T) {
		t.Setenv("REDIS_DB", "three")
		_, err := Load()
		assert.Error(t, err)
	})
}
