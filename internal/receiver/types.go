package receiver

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPropertyNotFound is returned for a property with no accepted transfers.
	ErrPropertyNotFound = errors.New("property not found")
	// ErrIdempotencyMismatch marks a reused transfer id with a different payload.
	ErrIdempotencyMismatch = errors.New("transfer id reused with a different payload")
	// ErrConflict marks a transfer id that is being recorded concurrently.
	ErrConflict = errors.New("transfer is being recorded")
)

// Transfer is the payload agents submit.
type Transfer struct {
	ID         string `json:"id"`
	PropertyID string `json:"propertyId"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
	Timestamp  string `json:"timestamp"`
	Status     string `json:"status,omitempty"`
	Signature  string `json:"signature,omitempty"`
}

func (t Transfer) normalize() Transfer {
	t.ID = strings.TrimSpace(t.ID)
	t.PropertyID = strings.TrimSpace(t.PropertyID)
	t.FromUserID = strings.TrimSpace(t.FromUserID)
	t.ToUserID = strings.TrimSpace(t.ToUserID)
	t.Timestamp = strings.TrimSpace(t.Timestamp)
	return t
}

func (t Transfer) validate() error {
	switch {
	case t.ID == "":
		return errors.New("id is required")
	case t.PropertyID == "":
		return errors.New("propertyId is required")
	case t.FromUserID == "":
		return errors.New("fromUserId is required")
	case t.ToUserID == "":
		return errors.New("toUserId is required")
	}
	return nil
}

// samePayload reports whether other describes the same custody change.
// Status is ignored since agents always send PENDING.
func (t Transfer) samePayload(other Transfer) bool {
	return t.PropertyID == other.PropertyID &&
		t.FromUserID == other.FromUserID &&
		t.ToUserID == other.ToUserID &&
		t.Timestamp == other.Timestamp &&
		t.Signature == other.Signature
}

// Outcome is the result of recording one transfer.
type Outcome struct {
	Accepted bool
	Replayed bool
	Reason   string
}

// Property is the custody record for a single item.
type Property struct {
	ID      string     `json:"id"`
	Holder  string     `json:"holder"`
	History []Transfer `json:"history"`
}

// checkCustody applies the chain rule for a property currently held by
// holder. An empty holder accepts any sender.
func checkCustody(holder string, t Transfer) (Outcome, bool) {
	if holder == "" || holder == t.FromUserID {
		return Outcome{Accepted: true}, true
	}
	return Outcome{
		Reason: fmt.Sprintf("custody mismatch: property %s is held by %s, not %s", t.PropertyID, holder, t.FromUserID),
	}, false
}
