package model

import (
	"time"
)

// Role represents the sender of a conversation message.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleAssistant Role = "assistant"
)

// CartAction is the cart mutation implied by an assistant reply.
// Modeled as a closed enum so the orchestrator never has to sniff
// button labels to decide what to do with the cart.
type CartAction string

const (
	CartActionNone     CartAction = ""
	CartActionAdd      CartAction = "add_to_cart"
	CartActionCheckout CartAction = "checkout"
	CartActionClear    CartAction = "clear_cart"
)

// MessageMeta carries structured annotations on an assistant message.
type MessageMeta struct {
	NextPhase  Phase      `json:"next_phase,omitempty"`
	Technique  string     `json:"technique,omitempty"`
	CartAction CartAction `json:"cart_action,omitempty"`
	// OrderFragment holds a partial order when the reply triggers a purchase.
	OrderFragment *OrderFragment `json:"order_fragment,omitempty"`
	Recovered     bool           `json:"recovered,omitempty"`
}

// OrderFragment is the structured purchase payload attached to a
// purchase-triggering reply.
type OrderFragment struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// Message is one turn in a session's append-only log. Messages are
// immutable once appended.
type Message struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Role      Role         `json:"role"`
	Text      string       `json:"text"`
	Choices   []string     `json:"choices,omitempty"`
	Meta      *MessageMeta `json:"meta,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// ChatRequest is the inbound payload for POST /api/v1/chat.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	ProductID string `json:"product_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is the reply returned to the UI layer.
type ChatResponse struct {
	SessionID string       `json:"session_id"`
	Text      string       `json:"text"`
	Choices   []string     `json:"choices,omitempty"`
	Phase     Phase        `json:"phase"`
	Meta      *MessageMeta `json:"meta,omitempty"`
}
