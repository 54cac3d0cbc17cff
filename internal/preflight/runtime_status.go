package preflight

import (
	"context"
	"strings"

	"handreceipt/internal/config"
)

// CheckRemoteFromConfig evaluates custody service status from config and connectivity.
func CheckRemoteFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Custody service"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Remote.BaseURL) == "" {
		return Result{Name: name, Detail: "Missing URL"}
	}
	check := CheckRemote(ctx, cfg.Remote.BaseURL, cfg.Remote.APIToken)
	if check.Passed {
		return Result{Name: name, Passed: true, Detail: cfg.Remote.BaseURL}
	}
	return Result{Name: name, Detail: check.Detail}
}

// CheckNotificationsFromConfig reports whether push notifications are set up.
func CheckNotificationsFromConfig(cfg *config.Config) Result {
	const name = "Notifications"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return Result{Name: name, Detail: "Not configured"}
	}
	return Result{Name: name, Passed: true, Detail: "Configured"}
}
