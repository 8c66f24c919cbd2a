package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/brendadeeznuts1111/warden/internal/config"
	"github.com/brendadeeznuts1111/warden/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display comprehensive environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		version := crucible.GetVersion()

		observability.CLILogger.Info("=== Warden Environment Information ===")
		observability.CLILogger.Info("")

		// Application Info
		observability.CLILogger.Info("Application:")
		observability.CLILogger.Info("  Name:       " + appName)
		observability.CLILogger.Info("  Version:    " + versionInfo.Version)
		observability.CLILogger.Info("  Commit:     " + versionInfo.Commit)
		observability.CLILogger.Info("  Built:      " + versionInfo.BuildDate)
		observability.CLILogger.Info("")

		// SSOT Info
		observability.CLILogger.Info("SSOT:")
		observability.CLILogger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		observability.CLILogger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		observability.CLILogger.Info("")

		// Runtime Info
		observability.CLILogger.Info("Runtime:")
		observability.CLILogger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		observability.CLILogger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		observability.CLILogger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		observability.CLILogger.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		observability.CLILogger.Info("")

		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			observability.CLILogger.Warn("Config load failed", zap.Error(err))
			return
		}

		// Configuration
		observability.CLILogger.Info("Configuration:")
		observability.CLILogger.Info("  Server Host:    "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		observability.CLILogger.Info(fmt.Sprintf("  Server Port:    %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		observability.CLILogger.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		observability.CLILogger.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		observability.CLILogger.Info(fmt.Sprintf("  Metrics Port:   %d", cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		observability.CLILogger.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		observability.CLILogger.Info("")

		// Admission Configuration
		observability.CLILogger.Info("Admission:")
		observability.CLILogger.Info(fmt.Sprintf("  Rate Window:    %s / %d requests", cfg.RateLimit.Window, cfg.RateLimit.MaxRequests))
		observability.CLILogger.Info(fmt.Sprintf("  Burst Window:   %s / %d requests", cfg.RateLimit.BurstWindow, cfg.RateLimit.BurstLimit))
		observability.CLILogger.Info("  Block Duration: " + cfg.RateLimit.BlockDuration.String())
		observability.CLILogger.Info(fmt.Sprintf("  Deny Threshold: %d per %s", cfg.Reputation.Threshold, cfg.Reputation.Retention))
		observability.CLILogger.Info("")

		// Dispatch Configuration
		observability.CLILogger.Info("Dispatch:")
		observability.CLILogger.Info(fmt.Sprintf("  Cache:          %d entries, TTL %s", cfg.Cache.MaxSize, cfg.Cache.TTL))
		observability.CLILogger.Info(fmt.Sprintf("  Breaker:        opens after %d failures, resets after %s", cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeout))
		observability.CLILogger.Info("  Strategy:       " + cfg.Balancer.Strategy)
		observability.CLILogger.Info(fmt.Sprintf("  Backends:       %d configured", len(cfg.Balancer.Backends)))
		for _, b := range cfg.Balancer.Backends {
			observability.CLILogger.Info(fmt.Sprintf("    %s: %s", b.ID, b.URL))
		}
		observability.CLILogger.Info("")

		observability.CLILogger.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
