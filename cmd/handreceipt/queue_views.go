package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"handreceipt/internal/api"
)

var statusTitle = cases.Title(language.Und)

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return "Unknown"
	}
	return statusTitle.String(strings.ToLower(status))
}

// formatDisplayTime renders RFC 3339 values in local time; anything else is
// shown as stored.
func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return parsed.Local().Format("2006-01-02 15:04:05")
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func buildQueueStatusRows(counts api.QueueCounts) [][]string {
	rows := make([][]string, 0, 5)
	for _, entry := range []struct {
		label string
		count int
	}{
		{"PENDING", counts.Pending},
		{"SYNCING", counts.Syncing},
		{"FAILED", counts.Failed},
		{"COMPLETED", counts.Completed},
	} {
		if entry.count == 0 {
			continue
		}
		rows = append(rows, []string{formatStatusLabel(entry.label), strconv.Itoa(entry.count)})
	}
	if counts.Exhausted > 0 {
		rows = append(rows, []string{"Needs Attention", strconv.Itoa(counts.Exhausted)})
	}
	return rows
}

// buildQueueListRows orders transfers oldest first, matching submission order
// within each property.
func buildQueueListRows(items []api.QueueItem) [][]string {
	if len(items) == 0 {
		return nil
	}
	sorted := make([]api.QueueItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp == sorted[j].Timestamp {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	rows := make([][]string, 0, len(sorted))
	for _, item := range sorted {
		rows = append(rows, []string{
			shortID(item.ID),
			item.PropertyID,
			fmt.Sprintf("%s → %s", item.FromUserID, item.ToUserID),
			formatStatusLabel(item.Status),
			retryLabel(item),
			formatDisplayTime(item.Timestamp),
		})
	}
	return rows
}

func retryLabel(item api.QueueItem) string {
	switch {
	case item.Exhausted:
		return fmt.Sprintf("%d (exhausted)", item.RetryCount)
	case item.RetryCount == 0:
		return "-"
	default:
		return fmt.Sprintf("%d (%d left)", item.RetryCount, item.RetriesLeft)
	}
}

func printQueueItem(out io.Writer, item api.QueueItem) {
	fields := [][2]string{
		{"ID", item.ID},
		{"Property", item.PropertyID},
		{"From", item.FromUserID},
		{"To", item.ToUserID},
		{"Recorded", formatDisplayTime(item.Timestamp)},
		{"Status", formatStatusLabel(item.Status)},
		{"Retries", retryLabel(item)},
	}
	if item.Error != "" {
		fields = append(fields, [2]string{"Last Error", item.Error})
	}
	if item.LastRetry != "" {
		fields = append(fields, [2]string{"Last Failure", formatDisplayTime(item.LastRetry)})
	}
	if item.NextRetry != "" {
		fields = append(fields, [2]string{"Next Retry", formatDisplayTime(item.NextRetry)})
	}
	if item.Signature != "" {
		fields = append(fields, [2]string{"Signed", "yes"})
	}
	for _, f := range fields {
		fmt.Fprintf(out, "%-13s %s\n", f[0]+":", f[1])
	}
}

func printSyncSummary(out io.Writer, summary api.SyncSummary) {
	if !summary.Ran {
		reason := summary.Reason
		if reason == "" {
			reason = "not run"
		}
		fmt.Fprintf(out, "Sync skipped: %s\n", reason)
		return
	}
	fmt.Fprintf(out, "Sync finished in %s: %d synced, %d failed, %d waiting on cooldown\n",
		(time.Duration(summary.DurationMillis) * time.Millisecond).String(),
		summary.Succeeded, summary.Failed, summary.Skipped)
	if summary.Exhausted > 0 {
		fmt.Fprintf(out, "%d transfer(s) exhausted their retries; run `handreceipt queue retry` after fixing the cause\n", summary.Exhausted)
	}
	if summary.StoreErrors > 0 {
		fmt.Fprintf(out, "Warning: %d queue storage write(s) failed during the pass\n", summary.StoreErrors)
	}
	if summary.Interrupted {
		fmt.Fprintln(out, "Pass was interrupted; remaining transfers sync on the next pass")
	}
}
