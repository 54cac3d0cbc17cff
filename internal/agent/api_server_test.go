package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"handreceipt/internal/api"
	"handreceipt/internal/config"
	"handreceipt/internal/connectivity"
	"handreceipt/internal/metrics"
	"handreceipt/internal/queue"
	"handreceipt/internal/remote"
	"handreceipt/internal/syncer"
	"handreceipt/internal/testsupport"
)

type acceptAll struct{}

func (acceptAll) Submit(context.Context, remote.SubmitRequest) (remote.SubmitResult, error) {
	return remote.SubmitResult{Success: true}, nil
}

func newTestAgent(t *testing.T, mutate func(*config.Config)) (*Agent, *queue.Queue) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if mutate != nil {
		mutate(cfg)
	}
	q, backend := testsupport.MustOpenQueue(t, cfg)
	engine := syncer.New(q, acceptAll{}, connectivity.NewStatic(true))
	a, err := New(cfg, Components{Backend: backend, Queue: q, Engine: engine, Metrics: metrics.New()}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.api == nil {
		t.Fatal("expected api server for non-empty bind")
	}
	return a, q
}

func serve(a *Agent, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.api.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return out
}

func TestAPIQueueListAndFilter(t *testing.T) {
	a, q := newTestAgent(t, nil)
	ctx := context.Background()
	first := testsupport.NewTransfer(t, q, "P1", "")
	second := testsupport.NewTransfer(t, q, "P2", "")
	if _, err := q.UpdateStatus(ctx, second.ID, queue.StatusFailed, "boom"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	rec := serve(a, http.MethodGet, "/api/queue", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	list := decodeBody[api.QueueListResponse](t, rec)
	if len(list.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(list.Items))
	}

	rec = serve(a, http.MethodGet, "/api/queue?status=failed", "")
	list = decodeBody[api.QueueListResponse](t, rec)
	if len(list.Items) != 1 || list.Items[0].ID != second.ID {
		t.Fatalf("expected only failed transfer, got %+v", list.Items)
	}
	if list.Items[0].RetryCount != 1 || list.Items[0].Error != "boom" {
		t.Fatalf("unexpected failed item %+v", list.Items[0])
	}

	rec = serve(a, http.MethodGet, "/api/queue?status=bogus", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status filter, got %d", rec.Code)
	}

	rec = serve(a, http.MethodGet, "/api/queue/"+first.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	item := decodeBody[api.QueueItemResponse](t, rec)
	if item.Item.PropertyID != "P1" || item.Item.Status != string(queue.StatusPending) {
		t.Fatalf("unexpected item %+v", item.Item)
	}

	rec = serve(a, http.MethodGet, "/api/queue/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAPISyncDrainsQueue(t *testing.T) {
	a, q := newTestAgent(t, nil)
	testsupport.NewTransfer(t, q, "P1", "")

	rec := serve(a, http.MethodPost, "/api/sync", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[api.SyncResponse](t, rec)
	if !resp.Summary.Ran || resp.Summary.Succeeded != 1 {
		t.Fatalf("unexpected summary %+v", resp.Summary)
	}
	if q.Len() != 0 {
		t.Fatalf("expected completed transfer purged, queue len %d", q.Len())
	}

	rec = serve(a, http.MethodGet, "/api/sync", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestAPIStatus(t *testing.T) {
	a, q := newTestAgent(t, nil)
	testsupport.NewTransfer(t, q, "P1", "")

	rec := serve(a, http.MethodGet, "/api/status", "")
	status := decodeBody[api.AgentStatus](t, rec)
	if status.Counts.Pending != 1 || !status.Online {
		t.Fatalf("unexpected status %+v", status)
	}
	if !status.Storage.Exists {
		t.Fatalf("expected storage to exist: %+v", status.Storage)
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	a, _ := newTestAgent(t, func(cfg *config.Config) {
		cfg.Paths.APIToken = "s3cret"
	})

	if rec := serve(a, http.MethodGet, "/api/queue", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := serve(a, http.MethodGet, "/api/queue", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}
	if rec := serve(a, http.MethodGet, "/api/queue", "s3cret"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
	rec := serve(a, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "handreceipt_online") {
		t.Fatalf("expected unauthenticated metrics scrape, got %d", rec.Code)
	}
}
