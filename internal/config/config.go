package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration. Values come
// from the config file, WARDEN_* environment variables and built-in
// defaults, merged by viper and decoded here.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Reputation ReputationConfig `mapstructure:"reputation"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Balancer   BalancerConfig   `mapstructure:"balancer"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Health     HealthConfig     `mapstructure:"health"`
	Debug      DebugConfig      `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// ThrottleRPS caps total requests per second across all callers before
	// any per-client admission work runs. Zero disables the guard.
	ThrottleRPS   float64 `mapstructure:"throttle_rps"`
	ThrottleBurst int     `mapstructure:"throttle_burst"`
}

// RateLimitConfig tunes the sliding-window limiter.
type RateLimitConfig struct {
	Window        time.Duration `mapstructure:"window"`
	MaxRequests   int           `mapstructure:"max_requests"`
	BurstWindow   time.Duration `mapstructure:"burst_window"`
	BurstLimit    int           `mapstructure:"burst_limit"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ReputationConfig tunes the deny-list guard.
type ReputationConfig struct {
	Threshold     int           `mapstructure:"threshold"`
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// BreakerConfig tunes the circuit breaker around backend calls.
type BreakerConfig struct {
	FailureThreshold  int           `mapstructure:"failure_threshold"`
	ResetTimeout      time.Duration `mapstructure:"reset_timeout"`
	HalfOpenSuccesses int           `mapstructure:"half_open_successes"`
}

// CacheConfig tunes the bounded response cache.
type CacheConfig struct {
	MaxSize int           `mapstructure:"max_size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// BalancerConfig describes the backend topology and health probing.
type BalancerConfig struct {
	// Strategy selects the balancing algorithm.
	// Valid values: round_robin, weighted_random, least_connections, geo_nearest
	Strategy      string          `mapstructure:"strategy"`
	ProbeInterval time.Duration   `mapstructure:"probe_interval"`
	ProbeTimeout  time.Duration   `mapstructure:"probe_timeout"`
	MaxFailures   int             `mapstructure:"max_failures"`
	Backends      []BackendConfig `mapstructure:"backends"`
}

// BackendConfig describes one dispatch target.
type BackendConfig struct {
	ID          string  `mapstructure:"id"`
	URL         string  `mapstructure:"url"`
	HealthURL   string  `mapstructure:"health_url"`
	CPUCores    float64 `mapstructure:"cpu_cores"`
	MemoryGB    float64 `mapstructure:"memory_gb"`
	GPU         bool    `mapstructure:"gpu"`
	Region      string  `mapstructure:"region"`
	Latitude    float64 `mapstructure:"latitude"`
	Longitude   float64 `mapstructure:"longitude"`
	MaxInFlight int     `mapstructure:"max_in_flight"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
// - ENTERPRISE: Multiple sinks, middleware, throttling, policy enforcement (production)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	// Metrics are also proxied at the main HTTP port under /metrics
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	// Enabled controls whether debug mode is active
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// knownStrategies lists the balancing algorithms Validate accepts. An empty
// strategy falls back to round_robin at construction time.
var knownStrategies = map[string]struct{}{
	"":                  {},
	"round_robin":       {},
	"weighted_random":   {},
	"least_connections": {},
	"geo_nearest":       {},
}

// Validate checks cross-field consistency before any component is built.
// It reports the first problem found; callers surface it as CONFIG_INVALID.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Server.ThrottleRPS < 0 {
		return fmt.Errorf("server.throttle_rps must not be negative")
	}

	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("ratelimit.window must be positive")
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("ratelimit.max_requests must be positive")
	}
	if c.RateLimit.BurstWindow <= 0 {
		return fmt.Errorf("ratelimit.burst_window must be positive")
	}
	if c.RateLimit.BurstWindow > c.RateLimit.Window {
		return fmt.Errorf("ratelimit.burst_window must not exceed ratelimit.window")
	}
	if c.RateLimit.BurstLimit <= 0 {
		return fmt.Errorf("ratelimit.burst_limit must be positive")
	}
	if c.RateLimit.BlockDuration < 0 {
		return fmt.Errorf("ratelimit.block_duration must not be negative")
	}

	if c.Reputation.Threshold <= 0 {
		return fmt.Errorf("reputation.threshold must be positive")
	}
	if c.Reputation.Retention <= 0 {
		return fmt.Errorf("reputation.retention must be positive")
	}

	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker.failure_threshold must be positive")
	}
	if c.Breaker.ResetTimeout <= 0 {
		return fmt.Errorf("breaker.reset_timeout must be positive")
	}
	if c.Breaker.HalfOpenSuccesses <= 0 {
		return fmt.Errorf("breaker.half_open_successes must be positive")
	}

	if c.Cache.MaxSize < 0 {
		return fmt.Errorf("cache.max_size must not be negative")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}

	if _, ok := knownStrategies[c.Balancer.Strategy]; !ok {
		return fmt.Errorf("balancer.strategy %q is not recognized", c.Balancer.Strategy)
	}
	if c.Balancer.ProbeInterval < 0 {
		return fmt.Errorf("balancer.probe_interval must not be negative")
	}
	if c.Balancer.MaxFailures <= 0 {
		return fmt.Errorf("balancer.max_failures must be positive")
	}

	seen := make(map[string]struct{}, len(c.Balancer.Backends))
	for i, backend := range c.Balancer.Backends {
		if backend.ID == "" {
			return fmt.Errorf("balancer.backends[%d] has no id", i)
		}
		if _, dup := seen[backend.ID]; dup {
			return fmt.Errorf("balancer.backends has duplicate id %q", backend.ID)
		}
		seen[backend.ID] = struct{}{}
		if backend.URL == "" {
			return fmt.Errorf("balancer.backends[%d] (%s) has no url", i, backend.ID)
		}
		if backend.Latitude < -90 || backend.Latitude > 90 {
			return fmt.Errorf("balancer.backends[%d] (%s) latitude out of range", i, backend.ID)
		}
		if backend.Longitude < -180 || backend.Longitude > 180 {
			return fmt.Errorf("balancer.backends[%d] (%s) longitude out of range", i, backend.ID)
		}
	}

	return nil
}
