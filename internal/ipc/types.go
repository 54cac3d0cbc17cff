package ipc

import "handreceipt/internal/api"

// StatusRequest fetches agent status.
type StatusRequest struct{}

// StatusResponse wraps the agent status DTO.
type StatusResponse struct {
	Status api.AgentStatus `json:"status"`
}

// QueueItem mirrors the HTTP API queue DTO for internal IPC callers.
type QueueItem = api.QueueItem

// EnqueueRequest records a new custody transfer. ID and Timestamp are
// generated when empty.
type EnqueueRequest struct {
	ID         string `json:"id,omitempty"`
	PropertyID string `json:"property_id"`
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Timestamp  string `json:"timestamp,omitempty"`
	Signature  string `json:"signature,omitempty"`
}

// EnqueueResponse returns the stored transfer.
type EnqueueResponse struct {
	Item   QueueItem `json:"item"`
	Online bool      `json:"online"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueDescribeRequest fetches a single transfer by id.
type QueueDescribeRequest struct {
	ID string `json:"id"`
}

// QueueDescribeResponse contains a single queue entry.
type QueueDescribeResponse struct {
	Item QueueItem `json:"item"`
}

// QueueRemoveRequest removes specific transfers by id.
type QueueRemoveRequest struct {
	IDs []string `json:"ids"`
}

// QueueRemoveResponse reports removed entries.
type QueueRemoveResponse struct {
	Removed int      `json:"removed"`
	Missing []string `json:"missing,omitempty"`
}

// SyncNowRequest runs a sync pass.
type SyncNowRequest struct{}

// SyncResponse carries the summary of a pass.
type SyncResponse struct {
	Summary api.SyncSummary `json:"summary"`
}

// RetryFailedRequest resets FAILED transfers and syncs.
type RetryFailedRequest struct{}

// RetryFailedResponse reports reset transfers and the resulting pass.
type RetryFailedResponse struct {
	Reset   int             `json:"reset"`
	Summary api.SyncSummary `json:"summary"`
}

// ClearFailedRequest drops FAILED transfers.
type ClearFailedRequest struct{}

// ClearFailedResponse reports number of removed entries.
type ClearFailedResponse struct {
	Removed int `json:"removed"`
}

// ForegroundRequest signals that the operator returned to the app.
type ForegroundRequest struct{}

// ForegroundResponse reports whether a pass was started.
type ForegroundResponse struct {
	Started bool `json:"started"`
}

// StopRequest stops the agent.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
