package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/brendadeeznuts1111/warden/internal/config"
	errwrap "github.com/brendadeeznuts1111/warden/internal/errors"
	"github.com/brendadeeznuts1111/warden/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Run a self-health check to verify the application can start successfully.",
	Run: func(cmd *cobra.Command, args []string) {
		observability.CLILogger.Info("Running health check...")

		// Check 1: Version info available
		if versionInfo.Version == "" {
			observability.CLILogger.Error("❌ FAIL: Version information missing")
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		observability.CLILogger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		observability.CLILogger.Info("✅ Version information available")

		// Check 2: Logger initialized
		if observability.CLILogger == nil {
			// Can't log if logger is nil, so use stderr
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}
		observability.CLILogger.Info("✅ Logger initialized")

		// Check 3: Configuration valid
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			observability.CLILogger.Error("❌ FAIL: Configuration invalid", zap.Error(err))
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}
		observability.CLILogger.Info("✅ Configuration valid")

		// Check 4: Gate components assemble
		if len(cfg.Balancer.Backends) > 0 {
			gate, err := buildGate(cfg)
			if err != nil {
				observability.CLILogger.Error("❌ FAIL: Gate construction failed", zap.Error(err))
				ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Gate construction failed", err)
				return
			}
			gate.Close()
			observability.CLILogger.Info("✅ Gate components assemble")
		} else {
			observability.CLILogger.Info("⚠️  No backends configured (serve requires at least one)")
		}

		// Overall status
		observability.CLILogger.Info("")
		observability.CLILogger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
