package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"handreceipt/internal/config"
)

const userAgent = "HandReceipt-Agent/0.1.0"

// Service defines the notification surface exposed to the sync engine and agent.
type Service interface {
	NotifySyncCompleted(ctx context.Context, succeeded, failed int, duration time.Duration) error
	NotifyRetryExhausted(ctx context.Context, transferID, propertyID, reason string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		sync:      cfg.Notifications.Sync,
		exhausted: cfg.Notifications.Exhausted,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	sync      bool
	exhausted bool
}

func (n *ntfyService) NotifySyncCompleted(ctx context.Context, succeeded, failed int, duration time.Duration) error {
	if !n.sync {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	data := payload{
		title:   "HandReceipt - Sync Complete",
		message: fmt.Sprintf("Synced %d transfer(s) in %s", succeeded, duration),
		tags:    []string{"handreceipt", "sync", "completed"},
	}
	if failed > 0 {
		data.title = "HandReceipt - Sync Complete (with errors)"
		data.message = fmt.Sprintf("%d succeeded, %d failed in %s", succeeded, failed, duration)
		data.tags = []string{"handreceipt", "sync", "warning"}
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRetryExhausted(ctx context.Context, transferID, propertyID, reason string) error {
	if !n.exhausted {
		return nil
	}
	message := fmt.Sprintf("Transfer %s for property %s stopped retrying", strings.TrimSpace(transferID), strings.TrimSpace(propertyID))
	if reason = strings.TrimSpace(reason); reason != "" {
		message += "\nLast error: " + reason
	}
	message += "\nRun 'handreceipt queue retry' or 'handreceipt queue clear --failed'"
	return n.send(ctx, payload{
		title:    "HandReceipt - Transfer Needs Attention",
		message:  message,
		tags:     []string{"handreceipt", "transfer", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "HandReceipt - Error",
		message:  builder.String(),
		tags:     []string{"handreceipt", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "HandReceipt - Test",
		message:  "Notification system test",
		tags:     []string{"handreceipt", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifySyncCompleted(context.Context, int, int, time.Duration) error { return nil }
func (noopService) NotifyRetryExhausted(context.Context, string, string, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error                   { return nil }
func (noopService) TestNotification(context.Context) error                             { return nil }
