package agent_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"handreceipt/internal/agent"
	"handreceipt/internal/config"
	"handreceipt/internal/connectivity"
	"handreceipt/internal/metrics"
	"handreceipt/internal/queue"
	"handreceipt/internal/queue/storage"
	"handreceipt/internal/remote"
	"handreceipt/internal/syncer"
	"handreceipt/internal/testsupport"
)

type recordingSubmitter struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingSubmitter) Submit(context.Context, remote.SubmitRequest) (remote.SubmitResult, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return remote.SubmitResult{Success: true}, nil
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fixture struct {
	cfg     *config.Config
	backend storage.Backend
	queue   *queue.Queue
	net     *connectivity.Static
	sub     *recordingSubmitter
	engine  *syncer.Engine
	agent   *agent.Agent
}

func newFixture(t *testing.T, online bool, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	q, backend := testsupport.MustOpenQueue(t, cfg)
	f := &fixture{cfg: cfg, backend: backend, queue: q, net: connectivity.NewStatic(online), sub: &recordingSubmitter{}}
	engine := syncer.New(q, f.sub, f.net)
	f.engine = engine
	a, err := agent.New(cfg, agent.Components{
		Backend: backend,
		Queue:   q,
		Engine:  engine,
		Metrics: metrics.New(),
	}, nil)
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}
	t.Cleanup(a.Stop)
	f.agent = a
	return f
}

func TestAgentStartStop(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if err := f.agent.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := f.agent.Status(ctx)
	if !status.Running || status.StartedAt.IsZero() {
		t.Fatalf("expected running status, got %+v", status)
	}
	if status.LockFilePath != f.cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}

	if err := f.agent.Start(ctx); !errors.Is(err, agent.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning on second start, got %v", err)
	}

	f.agent.Stop()
	if f.agent.Status(ctx).Running {
		t.Fatal("expected agent to be stopped")
	}
}

func TestAgentRecoversInterruptedTransfers(t *testing.T) {
	f := newFixture(t, false, testsupport.WithoutAPI())
	ctx := context.Background()
	item := testsupport.NewTransfer(t, f.queue, "P1", "")
	if _, err := f.queue.UpdateStatus(ctx, item.ID, queue.StatusSyncing, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	if err := f.agent.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	got, err := f.agent.GetTransfer(item.ID)
	if err != nil {
		t.Fatalf("GetTransfer: %v", err)
	}
	if got.Status != queue.StatusPending {
		t.Fatalf("expected recovered transfer to be PENDING, got %s", got.Status)
	}
}

func TestAgentEnqueueSyncsWhenOnline(t *testing.T) {
	f := newFixture(t, true, testsupport.WithoutAPI())
	ctx := context.Background()
	if err := f.agent.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := f.agent.Enqueue(ctx, queue.Transfer{PropertyID: "P1", FromUserID: "a", ToUserID: "b"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	f.engine.Wait()
	if f.sub.count() != 1 {
		t.Fatalf("expected one submission, got %d", f.sub.count())
	}
	if f.agent.Status(ctx).Counts.Total != 0 {
		t.Fatalf("expected queue drained")
	}
}

func TestAgentRemoveTransfer(t *testing.T) {
	f := newFixture(t, false, testsupport.WithoutAPI())
	ctx := context.Background()
	item := testsupport.NewTransfer(t, f.queue, "P1", "")

	if err := f.agent.RemoveTransfer(ctx, item.ID); err != nil {
		t.Fatalf("RemoveTransfer: %v", err)
	}
	if err := f.agent.RemoveTransfer(ctx, item.ID); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAgentTestNotificationWithoutTopic(t *testing.T) {
	f := newFixture(t, false, testsupport.WithoutAPI())
	sent, message, err := f.agent.TestNotification(context.Background())
	if err != nil || sent {
		t.Fatalf("expected unsent notification without error, got sent=%v err=%v", sent, err)
	}
	if !strings.Contains(message, "not configured") {
		t.Fatalf("unexpected message %q", message)
	}
}

func TestNewRequiresComponents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := agent.New(cfg, agent.Components{}, nil); err == nil {
		t.Fatal("expected error for missing components")
	}
}
