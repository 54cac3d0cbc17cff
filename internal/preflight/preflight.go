package preflight

import (
	"context"

	"handreceipt/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Remote.BaseURL != "" {
		results = append(results, CheckRemote(ctx, cfg.Remote.BaseURL, cfg.Remote.APIToken))
	}
	return results
}
