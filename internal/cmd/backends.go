package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brendadeeznuts1111/warden/internal/config"
	"github.com/brendadeeznuts1111/warden/internal/core/balance"
	"github.com/brendadeeznuts1111/warden/internal/output"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "Show the configured backend pool",
	Long: `Show the configured backend pool with the capability weight each
target would carry under the configured strategy. Health reflects the
initial state only; a running gate probes targets continuously.`,
	RunE: runBackends,
}

func init() {
	rootCmd.AddCommand(backendsCmd)

	backendsCmd.Flags().String("output", "table", "Output format: table, json, markdown")
}

func runBackends(cmd *cobra.Command, args []string) error {
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
	if len(cfg.Balancer.Backends) == 0 {
		fmt.Println("(no backends configured)")
		return nil
	}

	// Build the balancer without starting probes so weights come out the
	// same way serve computes them.
	balancer, err := balance.New(balance.Config{
		Strategy:    cfg.Balancer.Strategy,
		Targets:     configTargets(cfg),
		MaxFailures: cfg.Balancer.MaxFailures,
	})
	if err != nil {
		return err
	}
	defer balancer.Close()

	report := &output.BackendReport{
		Strategy: balancer.StrategyName(),
		Backends: balancer.Snapshot(),
	}

	formatter := output.NewFormatter(format)
	rendered, err := formatter.FormatBackends(report)
	if err != nil {
		return err
	}
	if rendered != "" {
		fmt.Println(rendered)
	}
	return nil
}
