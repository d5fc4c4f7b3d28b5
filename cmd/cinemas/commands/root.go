package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"londoncinemas/internal/components/telemetry"

	"github.com/spf13/cobra"
)

var (
	verbose    *bool
	configPath *string
	otelSetup  telemetry.Otel
)

var rootCmd = &cobra.Command{
	Use:   "cinemas",
	Short: "cinemas aggregates London cinema listings into a snapshot and serves it.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(*verbose)
		setup, err := telemetry.SetupFromEnv(cmd.Context(), "cinemas")
		if err != nil {
			return fmt.Errorf("setup telemetry: %w", err)
		}
		otelSetup = setup
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		err := otelSetup.Shutdown(context.Background())
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	},
	SilenceUsage: true,
}

func init() {
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "The config file, <name>.local.json5 is merged over it.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
