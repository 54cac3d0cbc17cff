package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"handreceipt/internal/agentctl"
)

func newAgentCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	var startOffline bool
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the handreceipt agent in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := agentctl.EnsureStarted(ctx.socketPath(), exe, launchOptions(ctx, startLogLevel, startOffline), 10*time.Second)
			if err != nil {
				return err
			}
			switch result.State {
			case agentctl.StartStateStarted:
				fmt.Fprintf(stdout, "Agent started (pid %d)\n", result.PID)
			case agentctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Agent already running")
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override the configured log level")
	startCmd.Flags().BoolVar(&startOffline, "offline", false, "Queue transfers without probing or syncing")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the handreceipt agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := agentctl.StopAndTerminate(ctx.configValue(), 5*time.Second)
			if errors.Is(err, agentctl.ErrAgentNotRunning) {
				fmt.Fprintln(stdout, "Agent is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Agent did not exit in time; killed pid %d\n", result.PID)
			}
			fmt.Fprintln(stdout, "Agent stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show agent, connectivity and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := agentctl.BuildStatusSnapshot(cmd.Context(), ctx.configValue())
			if err != nil {
				return err
			}
			if ctx.jsonMode() {
				return writeJSON(cmd, snapshot)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("System Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range snapshot.SystemChecks {
				fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Paths", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range snapshot.Paths {
				fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
			}
			fmt.Fprintln(stdout)

			if last := snapshot.Agent.LastSync; last != nil {
				for _, line := range renderSectionHeader("Last Sync", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintf(stdout, "%sTrigger: %s, started %s\n", statusIndent, last.Trigger, formatDisplayTime(last.StartedAt))
				fmt.Fprint(stdout, statusIndent)
				printSyncSummary(stdout, *last)
				fmt.Fprintln(stdout)
			}

			for _, line := range renderSectionHeader("Queue Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := buildQueueStatusRows(snapshot.Agent.Counts)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "Queue is empty")
				return nil
			}
			fmt.Fprint(stdout, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func launchOptions(ctx *commandContext, logLevel string, offline bool) agentctl.LaunchOptions {
	opts := agentctl.LaunchOptions{LogLevel: strings.TrimSpace(logLevel), Offline: offline}
	if ctx.configFlag != nil {
		opts.ConfigPath = strings.TrimSpace(*ctx.configFlag)
	}
	return opts
}
