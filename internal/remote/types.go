package remote

import "handreceipt/internal/queue"

// SubmitRequest is the transfer payload sent to the custody service. Queue
// bookkeeping (retry count, last error, last retry) is never sent.
type SubmitRequest struct {
	ID         string `json:"id"`
	PropertyID string `json:"propertyId"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
	Timestamp  string `json:"timestamp"`
	Status     string `json:"status"`
	Signature  string `json:"signature"`
}

// NewSubmitRequest builds the wire payload for t. Status is always PENDING:
// the receiver owns the server-side lifecycle.
func NewSubmitRequest(t queue.Transfer) SubmitRequest {
	return SubmitRequest{
		ID:         t.ID,
		PropertyID: t.PropertyID,
		FromUserID: t.FromUserID,
		ToUserID:   t.ToUserID,
		Timestamp:  t.Timestamp,
		Status:     string(queue.StatusPending),
		Signature:  t.Signature,
	}
}

// SubmitResponse is the wire response. Success is a pointer so a missing
// field can be told apart from false.
type SubmitResponse struct {
	Success *bool  `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SubmitResult is the validated outcome of one submission.
type SubmitResult struct {
	Success bool
	Error   string
}
