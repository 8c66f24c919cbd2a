package config

import "github.com/spf13/viper"

// SetDefaults installs the built-in defaults on v. Every key the typed
// Config decodes has a default here except balancer.backends, which must
// be configured explicitly for serving.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.throttle_rps", 0)
	v.SetDefault("server.throttle_burst", 0)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Rate limiter defaults
	v.SetDefault("ratelimit.window", "60s")
	v.SetDefault("ratelimit.max_requests", 100)
	v.SetDefault("ratelimit.burst_window", "10s")
	v.SetDefault("ratelimit.burst_limit", 20)
	v.SetDefault("ratelimit.block_duration", "30s")
	v.SetDefault("ratelimit.sweep_interval", "60s")

	// Reputation guard defaults
	v.SetDefault("reputation.threshold", 50)
	v.SetDefault("reputation.retention", "1h")
	v.SetDefault("reputation.sweep_interval", "60s")

	// Circuit breaker defaults
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout", "30s")
	v.SetDefault("breaker.half_open_successes", 3)

	// Response cache defaults
	v.SetDefault("cache.max_size", 1024)
	v.SetDefault("cache.ttl", "60s")

	// Balancer defaults
	v.SetDefault("balancer.strategy", "round_robin")
	v.SetDefault("balancer.probe_interval", "15s")
	v.SetDefault("balancer.probe_timeout", "3s")
	v.SetDefault("balancer.max_failures", 3)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}
