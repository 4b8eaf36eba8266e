package models

import "time"

// Notification is the envelope every message in the pipeline travels in,
// both storage upload notifications arriving on the input topic and batch
// lifecycle events published on the output topic.
type Notification struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	Type      string                 `json:"type,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"` // upload notifications carry at least "url"
	Metadata  Metadata               `json:"metadata"`
}

type Metadata struct {
	TraceID  string                 `json:"trace_id,omitempty"`
	Gate     *GateInfo              `json:"gate,omitempty"`
	Dispatch *DispatchInfo          `json:"dispatch,omitempty"`
	Extra    map[string]interface{} `json:"extra,omitempty"`
}

// GateInfo records which acceptance rules a notification passed.
type GateInfo struct {
	PassedAt time.Time `json:"passed_at"`
	Rules    []string  `json:"rules"`
}

// DispatchInfo records what the dispatcher extracted from the notification.
type DispatchInfo struct {
	BatchID    string    `json:"batch_id"`
	ItemName   string    `json:"item_name"`
	Valid      bool      `json:"valid"`
	ReceivedAt time.Time `json:"received_at"`
}

// URL returns the blob URL carried in the payload, if present.
func (n *Notification) URL() (string, bool) {
	if n.Payload == nil {
		return "", false
	}
	v, ok := n.Payload["url"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

const (
	TypeBatchCompleted = "batch_completed"
	TypeBatchFailed    = "batch_failed"
)

// NewBatchEvent builds the lifecycle event published when a batch reaches a
// terminal phase.
func NewBatchEvent(id, eventType, batchID, reason string) Notification {
	payload := map[string]interface{}{
		"batch_id": batchID,
	}
	if reason != "" {
		payload["reason"] = reason
	}
	return Notification{
		ID:        id,
		Source:    "orchestrator",
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
