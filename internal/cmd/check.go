package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/brendadeeznuts1111/warden/internal/config"
	"github.com/brendadeeznuts1111/warden/internal/core"
	"github.com/brendadeeznuts1111/warden/internal/core/engine"
	"github.com/brendadeeznuts1111/warden/internal/core/ratelimit"
	"github.com/brendadeeznuts1111/warden/internal/core/reputation"
	"github.com/brendadeeznuts1111/warden/internal/observability"
	"github.com/brendadeeznuts1111/warden/internal/output"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe admission decisions for a client",
	Long: `Run the admission sequence locally against the configured limits.

Each probe walks the same path a request takes at the gate: the reputation
deny-list first, then the sliding-window rate limiter. The run shows when a
client starts being throttled or denied under the current configuration.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().String("client", "", "client identity to probe")
	checkCmd.Flags().IntP("count", "n", 10, "number of probes to run")
	checkCmd.Flags().String("output", "table", "Output format: table, json, markdown")
}

func runCheck(cmd *cobra.Command, args []string) error {
	clientID, err := cmd.Flags().GetString("client")
	if err != nil {
		return err
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return errors.New("--client is required")
	}

	count, err := cmd.Flags().GetInt("count")
	if err != nil {
		return err
	}
	if count < 1 {
		return errors.New("--count must be at least 1")
	}

	formatValue, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	guard := reputation.New(reputation.Config{
		Threshold: cfg.Reputation.Threshold,
		Retention: cfg.Reputation.Retention,
	})
	defer guard.Close()

	limiter := ratelimit.New(ratelimit.Config{
		Window:        cfg.RateLimit.Window,
		MaxRequests:   cfg.RateLimit.MaxRequests,
		BurstWindow:   cfg.RateLimit.BurstWindow,
		BurstLimit:    cfg.RateLimit.BurstLimit,
		BlockDuration: cfg.RateLimit.BlockDuration,
	})
	defer limiter.Close()

	decisions := make([]core.Decision, 0, count)
	for i := 0; i < count; i++ {
		decisions = append(decisions, engine.AdmitWith(guard, limiter, clientID, nil))
	}
	report := core.Summarize(clientID, decisions)

	formatter := output.NewFormatter(format)
	rendered, err := formatter.FormatReport(report)
	if err != nil {
		return err
	}
	if rendered != "" {
		fmt.Println(rendered)
	}

	if format != output.FormatJSON {
		observability.CLILogger.Info("Admission probe complete",
			zap.String("client_id", clientID),
			zap.Int("allowed", report.Allowed),
			zap.Int("denied", report.Denied))
	}
	return nil
}
