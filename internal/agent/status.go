package agent

import (
	"time"

	"handreceipt/internal/api"
)

// StatusDTO converts a runtime Status into its wire representation.
func StatusDTO(status Status) api.AgentStatus {
	dto := api.AgentStatus{
		Running:       status.Running,
		PID:           status.PID,
		Online:        status.Online,
		Syncing:       status.Syncing,
		NetlinkActive: status.NetlinkActive,
		RemoteURL:     status.RemoteURL,
		LockFilePath:  status.LockFilePath,
		Storage:       api.FromHealth(status.Storage),
		Counts:        api.FromCounts(status.Counts),
	}
	if !status.StartedAt.IsZero() {
		dto.StartedAt = status.StartedAt.UTC().Format(time.RFC3339)
	}
	if !status.LastOnline.IsZero() {
		dto.LastOnline = status.LastOnline.UTC().Format(time.RFC3339)
	}
	if status.LastSync != nil {
		summary := api.FromSummary(*status.LastSync)
		dto.LastSync = &summary
	}
	return dto
}
