package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueItem describes a queued transfer in a transport-friendly format.
type QueueItem struct {
	ID          string `json:"id"`
	PropertyID  string `json:"propertyId"`
	FromUserID  string `json:"fromUserId"`
	ToUserID    string `json:"toUserId"`
	Timestamp   string `json:"timestamp"`
	Status      string `json:"status"`
	Signature   string `json:"signature,omitempty"`
	RetryCount  int    `json:"retryCount"`
	RetriesLeft int    `json:"retriesLeft"`
	Exhausted   bool   `json:"exhausted"`
	Error       string `json:"error,omitempty"`
	LastRetry   string `json:"lastRetry,omitempty"`
	NextRetry   string `json:"nextRetry,omitempty"`
}

// QueueCounts tallies the queue by status.
type QueueCounts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Syncing   int `json:"syncing"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Exhausted int `json:"exhausted"`
}

// SyncSummary reports the outcome of one sync pass.
type SyncSummary struct {
	Trigger        string `json:"trigger"`
	Ran            bool   `json:"ran"`
	Reason         string `json:"reason,omitempty"`
	StartedAt      string `json:"startedAt,omitempty"`
	DurationMillis int64  `json:"durationMillis"`
	Attempted      int    `json:"attempted"`
	Succeeded      int    `json:"succeeded"`
	Failed         int    `json:"failed"`
	Skipped        int    `json:"skipped"`
	Exhausted      int    `json:"exhausted"`
	Purged         int    `json:"purged"`
	StoreErrors    int    `json:"storeErrors"`
	Interrupted    bool   `json:"interrupted,omitempty"`
}

// StatusLine is a single labelled health line for status output.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// StorageStatus describes the queue backend.
type StorageStatus struct {
	Backend   string `json:"backend"`
	Path      string `json:"path"`
	Exists    bool   `json:"exists"`
	Readable  bool   `json:"readable"`
	Integrity string `json:"integrity,omitempty"`
	Error     string `json:"error,omitempty"`
}

// AgentStatus aggregates agent runtime information for API consumers.
type AgentStatus struct {
	Running       bool          `json:"running"`
	PID           int           `json:"pid"`
	StartedAt     string        `json:"startedAt,omitempty"`
	Online        bool          `json:"online"`
	LastOnline    string        `json:"lastOnline,omitempty"`
	Syncing       bool          `json:"syncing"`
	NetlinkActive bool          `json:"netlinkActive"`
	RemoteURL     string        `json:"remoteUrl"`
	LockFilePath  string        `json:"lockFilePath"`
	Storage       StorageStatus `json:"storage"`
	Counts        QueueCounts   `json:"counts"`
	LastSync      *SyncSummary  `json:"lastSync,omitempty"`
}

// QueueListResponse wraps a collection of queue items.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueItemResponse wraps a single queue item.
type QueueItemResponse struct {
	Item QueueItem `json:"item"`
}

// SyncResponse wraps the result of a requested pass.
type SyncResponse struct {
	Summary SyncSummary `json:"summary"`
}
