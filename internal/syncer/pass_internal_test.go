package syncer

import (
	"context"
	"errors"
	"testing"

	"handreceipt/internal/queue"
	"handreceipt/internal/remote"
)

func TestGroupByPropertyFallsBackToLexicalOrder(t *testing.T) {
	items := []queue.Transfer{
		{ID: "3", PropertyID: "P1", Timestamp: "c"},
		{ID: "1", PropertyID: "P1", Timestamp: "a"},
		{ID: "x", PropertyID: "P2", Timestamp: "2026-01-01T00:00:00Z"},
		{ID: "2", PropertyID: "P1", Timestamp: "b"},
	}
	groups := groupByProperty(items)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	got := groups["P1"]
	for i, want := range []string{"1", "2", "3"} {
		if got[i].ID != want {
			t.Fatalf("group order = %+v", got)
		}
	}
}

func TestCompareTimestampHandlesOffsets(t *testing.T) {
	a := queue.Transfer{Timestamp: "2026-03-01T12:00:00+02:00"}
	b := queue.Transfer{Timestamp: "2026-03-01T11:00:00Z"}
	if compareTimestamp(a, b) >= 0 {
		t.Fatal("expected 10:00Z to sort before 11:00Z")
	}
}

func TestFailureMessage(t *testing.T) {
	tests := []struct {
		name   string
		result remote.SubmitResult
		err    error
		want   string
	}{
		{name: "error wins", err: errors.New("dial tcp: refused"), want: "dial tcp: refused"},
		{name: "timeout", err: context.DeadlineExceeded, want: "request timed out"},
		{name: "server message", result: remote.SubmitResult{Error: " not holder "}, want: "not holder"},
		{name: "default", want: queue.DefaultFailureMessage},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := failureMessage(tc.result, tc.err); got != tc.want {
				t.Fatalf("failureMessage = %q, want %q", got, tc.want)
			}
		})
	}
}
