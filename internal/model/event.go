package model

import (
	"time"
)

// EventType classifies a sales event published for downstream
// notification and delivery consumers.
type EventType string

const (
	EventTypePurchaseTriggered EventType = "purchase_triggered"
	EventTypeCartUpdated       EventType = "cart_updated"
	EventTypeCompletionFailure EventType = "completion_failure"
	EventTypeSessionEvicted    EventType = "session_evicted"
)

// SalesEvent is an event in a sales conversation.
type SalesEvent struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Type      EventType      `json:"type"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
