package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"handreceipt/internal/api"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("HandReceipt", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "HandReceipt:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("HandReceipt", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestFormatStatusLabel(t *testing.T) {
	tests := map[string]string{
		"PENDING":   "Pending",
		"failed":    "Failed",
		" SYNCING ": "Syncing",
		"":          "Unknown",
	}
	for in, want := range tests {
		if got := formatStatusLabel(in); got != want {
			t.Errorf("formatStatusLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildQueueStatusRowsSkipsZeroes(t *testing.T) {
	rows := buildQueueStatusRows(api.QueueCounts{Total: 4, Pending: 3, Failed: 1, Exhausted: 1})
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %v", rows)
	}
	if rows[0][0] != "Pending" || rows[0][1] != "3" {
		t.Fatalf("unexpected first row %v", rows[0])
	}
	if rows[2][0] != "Needs Attention" {
		t.Fatalf("expected exhausted row last, got %v", rows[2])
	}
	if rows := buildQueueStatusRows(api.QueueCounts{}); len(rows) != 0 {
		t.Fatal("expected no rows for empty queue")
	}
}

func TestBuildQueueListRowsOrdersByTimestamp(t *testing.T) {
	rows := buildQueueListRows([]api.QueueItem{
		{ID: "bbbbbbbb-2", PropertyID: "P1", Timestamp: "2026-01-02T00:00:00Z", Status: "PENDING"},
		{ID: "aaaaaaaa-1", PropertyID: "P1", Timestamp: "2026-01-01T00:00:00Z", Status: "FAILED", RetryCount: 3, Exhausted: true},
	})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "aaaaaaaa" {
		t.Fatalf("expected oldest first with short id, got %v", rows[0])
	}
	if rows[0][4] != "3 (exhausted)" || rows[1][4] != "-" {
		t.Fatalf("unexpected retry labels %q %q", rows[0][4], rows[1][4])
	}
}

func TestPrintSyncSummary(t *testing.T) {
	var buf bytes.Buffer
	printSyncSummary(&buf, api.SyncSummary{Reason: "already running"})
	if !strings.Contains(buf.String(), "Sync skipped: already running") {
		t.Fatalf("unexpected skip output %q", buf.String())
	}

	buf.Reset()
	printSyncSummary(&buf, api.SyncSummary{Ran: true, DurationMillis: 1500, Succeeded: 2, Failed: 1, Exhausted: 1})
	out := buf.String()
	if !strings.Contains(out, "2 synced, 1 failed") || !strings.Contains(out, "exhausted their retries") {
		t.Fatalf("unexpected summary output %q", out)
	}
}
