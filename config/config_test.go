package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 1000, cfg.Business.SlugMaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PROVIDER_TIMEOUT", "3s")
	t.Setenv("SLUG_MAX_ATTEMPTS", "25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 25, cfg.Business.SlugMaxAttempts)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestLoadRejectsZeroSlugAttempts(t *testing.T) {
	t.Setenv("SLUG_MAX_ATTEMPTS", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresJWTSecretInProduction(t *testing.T) {
	t.Setenv("ENV", "production")

	t.Run("default secret", func(t *testing.T) {
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SECRET")
	})

	t.Run("empty secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("real secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "2f9c1e7a-prod-signing-key")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "2f9c1e7a-prod-signing-key", cfg.Auth.JWTSecret)
	})
}

func TestLoadAllowsDevSecretOutsideProduction(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev-secret", cfg.Auth.JWTSecret)
}
