package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newTestViper())
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Verify server defaults
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, float64(0), cfg.Server.ThrottleRPS)

	// Verify limiter defaults
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 100, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.BurstWindow)
	assert.Equal(t, 20, cfg.RateLimit.BurstLimit)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.BlockDuration)
	assert.Equal(t, time.Minute, cfg.RateLimit.SweepInterval)

	// Verify reputation defaults
	assert.Equal(t, 50, cfg.Reputation.Threshold)
	assert.Equal(t, time.Hour, cfg.Reputation.Retention)

	// Verify breaker defaults
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.ResetTimeout)
	assert.Equal(t, 3, cfg.Breaker.HalfOpenSuccesses)

	// Verify cache defaults
	assert.Equal(t, 1024, cfg.Cache.MaxSize)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)

	// Verify balancer defaults
	assert.Equal(t, "round_robin", cfg.Balancer.Strategy)
	assert.Equal(t, 15*time.Second, cfg.Balancer.ProbeInterval)
	assert.Equal(t, 3*time.Second, cfg.Balancer.ProbeTimeout)
	assert.Equal(t, 3, cfg.Balancer.MaxFailures)
	assert.Empty(t, cfg.Balancer.Backends)

	// Verify logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "structured", cfg.Logging.Profile)

	// Verify metrics defaults
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)

	// Verify health defaults
	assert.True(t, cfg.Health.Enabled)

	// Verify debug defaults
	assert.False(t, cfg.Debug.Enabled)
	assert.False(t, cfg.Debug.PprofEnabled)
}

func TestLoadDecodesBackendTopology(t *testing.T) {
	v := newTestViper()
	v.Set("balancer.strategy", "geo_nearest")
	v.Set("balancer.backends", []map[string]any{
		{
			"id":        "us-east",
			"url":       "http://10.0.0.1:8080",
			"cpu_cores": 8,
			"memory_gb": 32,
			"gpu":       true,
			"region":    "us-east-1",
			"latitude":  38.9,
			"longitude": -77.0,
		},
		{
			"id":        "eu-west",
			"url":       "http://10.0.1.1:8080",
			"cpu_cores": 4,
			"memory_gb": 16,
			"latitude":  53.3,
			"longitude": -6.2,
		},
	})

	cfg, err := Load(v)
	require.NoError(t, err)

	require.Len(t, cfg.Balancer.Backends, 2)
	assert.Equal(t, "us-east", cfg.Balancer.Backends[0].ID)
	assert.Equal(t, 8.0, cfg.Balancer.Backends[0].CPUCores)
	assert.True(t, cfg.Balancer.Backends[0].GPU)
	assert.Equal(t, "eu-west", cfg.Balancer.Backends[1].ID)
	assert.False(t, cfg.Balancer.Backends[1].GPU)
	assert.Equal(t, -6.2, cfg.Balancer.Backends[1].Longitude)
}

func TestLoadParsesDurationStrings(t *testing.T) {
	v := newTestViper()
	v.Set("ratelimit.window", "2m")
	v.Set("breaker.reset_timeout", "45s")
	v.Set("cache.ttl", "500ms")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 45*time.Second, cfg.Breaker.ResetTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Cache.TTL)
}

func TestLoadReadsYAMLConfigFile(t *testing.T) {
	doc := map[string]any{
		"server": map[string]any{
			"port":         9180,
			"throttle_rps": 250,
		},
		"balancer": map[string]any{
			"strategy": "least_connections",
			"backends": []map[string]any{
				{"id": "primary", "url": "http://127.0.0.1:8081"},
				{"id": "standby", "url": "http://127.0.0.1:8082"},
			},
		},
	}

	raw, err := yaml.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	v := newTestViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 9180, cfg.Server.Port)
	assert.Equal(t, 250.0, cfg.Server.ThrottleRPS)
	assert.Equal(t, "least_connections", cfg.Balancer.Strategy)
	require.Len(t, cfg.Balancer.Backends, 2)
	assert.Equal(t, "standby", cfg.Balancer.Backends[1].ID)

	// File values must not disturb untouched defaults.
	assert.Equal(t, 100, cfg.RateLimit.MaxRequests)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  any
		want string
	}{
		{"zero window", "ratelimit.window", "0s", "ratelimit.window"},
		{"negative block", "ratelimit.block_duration", "-5s", "ratelimit.block_duration"},
		{"burst exceeds window", "ratelimit.burst_window", "5m", "burst_window"},
		{"zero threshold", "reputation.threshold", 0, "reputation.threshold"},
		{"unknown strategy", "balancer.strategy", "fastest_first", "strategy"},
		{"port out of range", "server.port", 70000, "server.port"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := newTestViper()
			v.Set(tc.key, tc.val)

			_, err := Load(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateRejectsBadBackends(t *testing.T) {
	v := newTestViper()
	v.Set("balancer.backends", []map[string]any{
		{"id": "a", "url": "http://10.0.0.1:8080"},
		{"id": "a", "url": "http://10.0.0.2:8080"},
	})

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")

	v = newTestViper()
	v.Set("balancer.backends", []map[string]any{
		{"id": "north-pole", "url": "http://10.0.0.1:8080", "latitude": 91.0},
	})

	_, err = Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latitude")
}

func TestGetConfigReturnsLoadedConfig(t *testing.T) {
	cfg, err := Load(newTestViper())
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
	assert.Equal(t, cfg.RateLimit.MaxRequests, retrieved.RateLimit.MaxRequests)
}

func TestConfigReload(t *testing.T) {
	cfg1, err := Load(newTestViper())
	require.NoError(t, err)

	v := newTestViper()
	v.Set("server.port", cfg1.Server.Port+1000)

	cfg2, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, cfg1.Server.Port+1000, cfg2.Server.Port)

	current := GetConfig()
	assert.Equal(t, cfg2.Server.Port, current.Server.Port)
}
