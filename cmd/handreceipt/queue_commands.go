package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"handreceipt/internal/api"
	"handreceipt/internal/ipc"
	"handreceipt/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage queued transfers",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending and failed counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(client *ipc.Client, q *queue.Queue) error {
				var counts api.QueueCounts
				if client != nil {
					resp, err := client.Status()
					if err != nil {
						return err
					}
					counts = resp.Status.Counts
				} else {
					q.Load(cmd.Context())
					counts = api.FromCounts(q.Counts())
				}

				if ctx.jsonMode() {
					return writeJSON(cmd, counts)
				}
				rows := buildQueueStatusRows(counts)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued transfers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(client *ipc.Client, q *queue.Queue) error {
				var items []api.QueueItem
				if client != nil {
					resp, err := client.QueueList(statuses)
					if err != nil {
						return err
					}
					items = resp.Items
				} else {
					filter, err := api.ParseStatuses(statuses)
					if err != nil {
						return err
					}
					items = api.FromTransfers(api.FilterByStatus(q.Load(cmd.Context()), filter), q.Policy())
				}

				if ctx.jsonMode() {
					return writeJSON(cmd, api.QueueListResponse{Items: items})
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Property", "Custody", "Status", "Retries", "Recorded"},
					buildQueueListRows(items),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (pending, syncing, completed, failed)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one queued transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withQueue(func(client *ipc.Client, q *queue.Queue) error {
				var item api.QueueItem
				if client != nil {
					resp, err := client.QueueDescribe(id)
					if err != nil {
						return err
					}
					item = resp.Item
				} else {
					q.Load(cmd.Context())
					found, ok := q.Get(id)
					if !ok {
						return fmt.Errorf("transfer %s: %w", id, queue.ErrNotFound)
					}
					item = api.FromTransfer(found, q.Policy())
				}

				if ctx.jsonMode() {
					return writeJSON(cmd, api.QueueItemResponse{Item: item})
				}
				printQueueItem(cmd.OutOrStdout(), item)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove transfers from the queue without submitting them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]string, 0, len(args))
			for _, arg := range args {
				if id := strings.TrimSpace(arg); id != "" {
					ids = append(ids, id)
				}
			}
			if len(ids) == 0 {
				return errors.New("at least one transfer id is required")
			}
			return ctx.withQueue(func(client *ipc.Client, q *queue.Queue) error {
				var resp ipc.QueueRemoveResponse
				if client != nil {
					remote, err := client.QueueRemove(ids)
					if err != nil {
						return err
					}
					resp = *remote
				} else {
					q.Load(cmd.Context())
					for _, id := range ids {
						err := q.Remove(cmd.Context(), id)
						switch {
						case err == nil:
							resp.Removed++
						case errors.Is(err, queue.ErrNotFound):
							resp.Missing = append(resp.Missing, id)
						default:
							return err
						}
					}
				}

				if ctx.jsonMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				for _, id := range resp.Missing {
					fmt.Fprintf(out, "Transfer %s not found\n", id)
				}
				fmt.Fprintf(out, "Removed %d transfer(s)\n", resp.Removed)
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Reset failed transfers and sync them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(client *ipc.Client, q *queue.Queue) error {
				if client != nil {
					resp, err := client.RetryFailed()
					if err != nil {
						return err
					}
					if ctx.jsonMode() {
						return writeJSON(cmd, resp)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed transfer(s)\n", resp.Reset)
					printSyncSummary(cmd.OutOrStdout(), resp.Summary)
					return nil
				}

				q.Load(cmd.Context())
				reset, err := q.RetryFailed(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, ipc.RetryFailedResponse{Reset: reset})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed transfer(s); they sync once the agent is running\n", reset)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop failed transfers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(client *ipc.Client, q *queue.Queue) error {
				var removed int
				if client != nil {
					resp, err := client.ClearFailed()
					if err != nil {
						return err
					}
					removed = resp.Removed
				} else {
					q.Load(cmd.Context())
					n, err := q.ClearFailed(cmd.Context())
					if err != nil {
						return err
					}
					removed = n
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, ipc.ClearFailedResponse{Removed: removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d failed transfer(s)\n", removed)
				return nil
			})
		},
	}
}
