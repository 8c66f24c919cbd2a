package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/brendadeeznuts1111/warden/internal/config"
	"github.com/brendadeeznuts1111/warden/internal/core/balance"
	"github.com/brendadeeznuts1111/warden/internal/core/breaker"
	"github.com/brendadeeznuts1111/warden/internal/core/cache"
	"github.com/brendadeeznuts1111/warden/internal/core/engine"
	"github.com/brendadeeznuts1111/warden/internal/core/ratelimit"
	"github.com/brendadeeznuts1111/warden/internal/core/reputation"
	errwrap "github.com/brendadeeznuts1111/warden/internal/errors"
	"github.com/brendadeeznuts1111/warden/internal/metrics"
	"github.com/brendadeeznuts1111/warden/internal/observability"
	"github.com/brendadeeznuts1111/warden/internal/server"
	"github.com/brendadeeznuts1111/warden/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// gaugeSampleInterval is the cadence of the background gauge sampler.
const gaugeSampleInterval = 15 * time.Second

// signalHealthChecker implements HealthChecker for signal system
type signalHealthChecker struct{}

func (s signalHealthChecker) CheckHealth(ctx context.Context) error {
	return nil // Signal handlers are registered and ready
}

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// balancerHealthChecker reports unhealthy when the backend pool has no
// dispatchable target left.
type balancerHealthChecker struct {
	gate *engine.Gate
}

func (b balancerHealthChecker) CheckHealth(ctx context.Context) error {
	for _, target := range b.gate.Backends() {
		if target.Healthy {
			return nil
		}
	}
	return errwrap.NewNoHealthyBackendError("no healthy backend in pool")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gate HTTP server",
	Long: `Start the gate HTTP server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (re-validates; restart to apply)

The server will cleanly stop the gate, shut down the HTTP server, and
flush logs on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "configuration load failed")
		}
		if len(cfg.Balancer.Backends) == 0 {
			return errwrap.NewConfigInvalidError("at least one backend must be configured under balancer.backends")
		}

		// Initialize server logger with namespace
		observability.InitServerLogger(appName, cfg.Logging.Level, appName)

		metricsPort := cfg.Metrics.Port
		if metricsPort == 0 {
			metricsPort = 9090
		}

		// Initialize metrics with namespace
		if err := observability.InitMetrics(appName, metricsPort, appName); err != nil {
			observability.ServerLogger.Error("Failed to initialize metrics",
				zap.Error(err))
			return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
		}

		startedAt := time.Now()
		metrics.SetServerStartTime(startedAt.Unix())

		observability.ServerLogger.Info("Initializing gate",
			zap.String("service", appName),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("metrics_port", metricsPort),
			zap.String("strategy", cfg.Balancer.Strategy),
			zap.Int("backends", len(cfg.Balancer.Backends)))

		gate, err := buildGate(cfg)
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "gate construction failed")
		}
		gate.Start()

		// Initialize health manager
		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("signal_handlers", signalHealthChecker{})
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		hm.RegisterChecker("balancer", balancerHealthChecker{gate: gate})

		// Create server
		srv := server.New(cfg.Server.Host, cfg.Server.Port, gate, server.Options{
			ThrottleRPS:   cfg.Server.ThrottleRPS,
			ThrottleBurst: cfg.Server.ThrottleBurst,
		})

		handlers.SetServiceName(appName)

		// Get shutdown timeout from config
		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		// Handler 1: Flush logger (executed last)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Flushing logger...")
			if err := observability.ServerLogger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				observability.ServerLogger.Warn("Logger sync returned error (may be benign)",
					zap.Error(err))
			}
			return nil
		})

		// Handler 2: Shutdown HTTP server and stop the gate (executed first)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			gate.Close()
			observability.ServerLogger.Info("HTTP server stopped gracefully")
			return nil
		})

		// Register config reload handler (SIGHUP)
		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: attempting config reload")

			// Attempt to reload configuration
			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					observability.ServerLogger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				observability.ServerLogger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			if _, err := config.Load(viper.GetViper()); err != nil {
				observability.ServerLogger.Error("Reloaded configuration is invalid; keeping previous settings",
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			// Gate components keep their original tuning until restart; the
			// reload re-validates and refreshes the shared config snapshot.
			observability.ServerLogger.Info("Configuration reloaded successfully",
				zap.String("file", viper.ConfigFileUsed()))

			return nil
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit",
				zap.Error(err))
		}

		// Sample gate gauges in the background
		go sampleGateGauges(cmd.Context(), gate, startedAt)

		// Start server in background goroutine
		errChan := make(chan error, 1)
		go func() {
			observability.ServerLogger.Info("Starting HTTP server...",
				zap.String("host", cfg.Server.Host),
				zap.Int("port", cfg.Server.Port))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		// Start signal listener in background
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		// Wait for error or shutdown completion
		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

// configTargets converts configured backends into balancer targets.
func configTargets(cfg *config.Config) []balance.Target {
	targets := make([]balance.Target, 0, len(cfg.Balancer.Backends))
	for _, b := range cfg.Balancer.Backends {
		targets = append(targets, balance.Target{
			ID:          b.ID,
			URL:         b.URL,
			HealthURL:   b.HealthURL,
			CPUCores:    b.CPUCores,
			MemoryGB:    b.MemoryGB,
			GPU:         b.GPU,
			Region:      b.Region,
			Latitude:    b.Latitude,
			Longitude:   b.Longitude,
			MaxInFlight: b.MaxInFlight,
		})
	}
	return targets
}

// buildGate assembles the five gate components from validated configuration.
func buildGate(cfg *config.Config) (*engine.Gate, error) {
	balancer, err := balance.New(balance.Config{
		Strategy:      cfg.Balancer.Strategy,
		Targets:       configTargets(cfg),
		ProbeInterval: cfg.Balancer.ProbeInterval,
		ProbeTimeout:  cfg.Balancer.ProbeTimeout,
		MaxFailures:   cfg.Balancer.MaxFailures,
		OnHealthChange: func(id string, healthy bool) {
			metrics.RecordBackendHealthTransition(id, healthy)
			if healthy {
				observability.ServerLogger.Info("Backend recovered", zap.String("backend", id))
			} else {
				observability.ServerLogger.Warn("Backend marked unhealthy", zap.String("backend", id))
			}
		},
	})
	if err != nil {
		return nil, err
	}

	guard := reputation.New(reputation.Config{
		Threshold:     cfg.Reputation.Threshold,
		Retention:     cfg.Reputation.Retention,
		SweepInterval: cfg.Reputation.SweepInterval,
		OnPromote: func(id string, count int) {
			metrics.RecordReputationPromotion()
			observability.ServerLogger.Warn("Client promoted to deny-list",
				zap.String("client_id", id),
				zap.Int("request_count", count))
		},
	})

	limiter := ratelimit.New(ratelimit.Config{
		Window:        cfg.RateLimit.Window,
		MaxRequests:   cfg.RateLimit.MaxRequests,
		BurstWindow:   cfg.RateLimit.BurstWindow,
		BurstLimit:    cfg.RateLimit.BurstLimit,
		BlockDuration: cfg.RateLimit.BlockDuration,
		SweepInterval: cfg.RateLimit.SweepInterval,
	})

	responseCache := cache.New(cache.Config{
		MaxSize: cfg.Cache.MaxSize,
		TTL:     cfg.Cache.TTL,
	})

	brk := breaker.New(breaker.Config{
		Name:              "backend",
		FailureThreshold:  uint32(cfg.Breaker.FailureThreshold),
		ResetTimeout:      cfg.Breaker.ResetTimeout,
		HalfOpenSuccesses: uint32(cfg.Breaker.HalfOpenSuccesses),
		OnStateChange: func(name, from, to string) {
			metrics.RecordBreakerTransition(name, from, to)
			metrics.SetBreakerState(name, to)
			observability.ServerLogger.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from),
				zap.String("to", to))
		},
	})

	return engine.New(engine.Components{
		Guard:    guard,
		Limiter:  limiter,
		Cache:    responseCache,
		Breaker:  brk,
		Balancer: balancer,
	})
}

// sampleGateGauges refreshes the point-in-time gauges the counters cannot
// derive: cache occupancy, deny-list size, breaker state, healthy backends,
// in-flight dispatches, and uptime.
func sampleGateGauges(ctx context.Context, gate *engine.Gate, startedAt time.Time) {
	ticker := time.NewTicker(gaugeSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := gate.Stats()
			metrics.SetCacheSize(stats.Cache.Size)
			metrics.SetReputationDeniedSize(stats.Reputation.Denied)
			metrics.SetBreakerState(stats.Breaker.Name, stats.Breaker.State)
			healthy := 0
			inFlight := int64(0)
			for _, b := range stats.Backends {
				if b.Healthy {
					healthy++
				}
				inFlight += b.InFlight
			}
			metrics.SetBackendsHealthy(healthy)
			metrics.SetActiveConnections(inFlight)
			metrics.SetServerUptime(int64(time.Since(startedAt).Seconds()))
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
