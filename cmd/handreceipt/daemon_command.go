package main

import (
	"github.com/spf13/cobra"

	"handreceipt/internal/agentrun"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool
	var offline bool
	cmd := &cobra.Command{
		Use:    "daemon",
		Short:  "Run the handreceipt agent in the foreground (internal)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return agentrun.Run(cmd.Context(), cfg, agentrun.Options{
				LogLevel:    logLevel,
				Development: development,
				Offline:     offline,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in logs")
	cmd.Flags().BoolVar(&offline, "offline", false, "Queue transfers without probing or syncing")
	return cmd
}
