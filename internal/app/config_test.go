package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PORT", "")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5000", cfg.Addr)
	assert.Equal(t, "http://localhost:3001", cfg.Upstream.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 4, cfg.Aggregator.Concurrency)
	assert.False(t, cfg.Aggregator.SkipMissing)
	assert.Equal(t, 3*time.Second, cfg.Graceful.ReadinessDelay)
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("SIMILAR_UPSTREAM_BASE_URL", "http://mocks:3001")
	t.Setenv("SIMILAR_UPSTREAM_TIMEOUT", "750ms")
	t.Setenv("SIMILAR_AGGREGATOR_CONCURRENCY", "1")
	t.Setenv("SIMILAR_AGGREGATOR_SKIP_MISSING", "true")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "http://mocks:3001", cfg.Upstream.BaseURL)
	assert.Equal(t, 750*time.Millisecond, cfg.Upstream.Timeout)
	assert.Equal(t, 1, cfg.Aggregator.Concurrency)
	assert.True(t, cfg.Aggregator.SkipMissing)
}

func TestLoadConfig_Port(t *testing.T) {
	t.Setenv("PORT", "8080")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"relative base url", "SIMILAR_UPSTREAM_BASE_URL", "localhost:3001"},
		{"non http scheme", "SIMILAR_UPSTREAM_BASE_URL", "ftp://mocks"},
		{"zero concurrency", "SIMILAR_AGGREGATOR_CONCURRENCY", "0"},
		{"negative timeout", "SIMILAR_UPSTREAM_TIMEOUT", "-1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)

			_, err := LoadConfig(nil)
			assert.Error(t, err)
		})
	}
}
