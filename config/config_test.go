package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	_, err := Validate(cfg)
	assert.Error(t, err)
}

func TestValidateRejectsBadBackpressureMode(t *testing.T) {
	cfg := Default()
	cfg.Backpressure.Mode = "turbo"
	_, err := Validate(cfg)
	assert.Error(t, err)
}

func TestValidateRejectsRedisWithoutURL(t *testing.T) {
	cfg := Default()
	cfg.Memory.Provider = "redis"
	cfg.Memory.RedisURL = ""
	_, err := Validate(cfg)
	assert.Error(t, err)
}

func TestValidateProducesNewtypes(t *testing.T) {
	cfg := Default()
	validated, err := Validate(cfg)
	require.NoError(t, err)
	assert.Equal(t, 100, validated.QueueSize.Int())
	assert.Equal(t, 4, validated.Concurrency.Int())
	assert.InDelta(t, 0.8, validated.LoadThreshold.Float(), 0.0001)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	os.Setenv("AGENTRT_PORT", "9090")
	os.Setenv("AGENTRT_BACKPRESSURE_MODE", "adaptive")
	defer os.Unsetenv("AGENTRT_PORT")
	defer os.Unsetenv("AGENTRT_BACKPRESSURE_MODE")

	cfg := Default()
	require.NoError(t, LoadEnv(cfg))
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "adaptive", cfg.Backpressure.Mode)
}

func TestWithPortOptionOverridesEnv(t *testing.T) {
	os.Setenv("AGENTRT_PORT", "9090")
	defer os.Unsetenv("AGENTRT_PORT")

	cfg, _, err := Load("", WithPort(7070))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
}
