package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"handreceipt/internal/api"
	"handreceipt/internal/ipc"
)

func newTransferCommands(ctx *commandContext) []*cobra.Command {
	var req ipc.EnqueueRequest
	enqueueCmd := &cobra.Command{
		Use:   "enqueue <property-id>",
		Short: "Record a custody transfer for a property item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.PropertyID = strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Enqueue(req)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Queued transfer %s for %s (%s → %s)\n",
					resp.Item.ID, resp.Item.PropertyID, resp.Item.FromUserID, resp.Item.ToUserID)
				if !resp.Online {
					fmt.Fprintln(out, "Offline: the transfer will sync when connectivity returns")
				}
				return nil
			})
		},
	}
	enqueueCmd.Flags().StringVar(&req.FromUserID, "from", "", "User releasing custody")
	enqueueCmd.Flags().StringVar(&req.ToUserID, "to", "", "User receiving custody")
	enqueueCmd.Flags().StringVar(&req.ID, "id", "", "Transfer id (generated when empty)")
	enqueueCmd.Flags().StringVar(&req.Timestamp, "timestamp", "", "RFC 3339 time of the handoff (defaults to now)")
	enqueueCmd.Flags().StringVar(&req.Signature, "signature", "", "Base64 signature image")
	_ = enqueueCmd.MarkFlagRequired("from")
	_ = enqueueCmd.MarkFlagRequired("to")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Submit queued transfers now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SyncNow()
				if err != nil {
					return err
				}
				return renderSummary(cmd, ctx, resp.Summary)
			})
		},
	}

	foregroundCmd := &cobra.Command{
		Use:   "foreground",
		Short: "Signal that the operator is back and re-check connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Foreground()
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, resp)
				}
				if resp.Started {
					fmt.Fprintln(cmd.OutOrStdout(), "Sync started")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Connectivity re-check requested")
				}
				return nil
			})
		},
	}

	return []*cobra.Command{enqueueCmd, syncCmd, foregroundCmd}
}

func renderSummary(cmd *cobra.Command, ctx *commandContext, summary api.SyncSummary) error {
	if ctx.jsonMode() {
		return writeJSON(cmd, summary)
	}
	printSyncSummary(cmd.OutOrStdout(), summary)
	return nil
}
