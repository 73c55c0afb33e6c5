// Package model defines data structures for the sales orchestrator.
package model

import (
	"time"
)

// Phase is the current stage of a sales conversation. It is reclassified
// on every turn rather than advanced through a fixed transition table.
type Phase string

const (
	PhaseRapportBuilding      Phase = "rapport_building"
	PhaseNeedDiscovery        Phase = "need_discovery"
	PhaseSolutionPresentation Phase = "solution_presentation"
	PhaseObjectionHandling    Phase = "objection_handling"
	PhaseClosing              Phase = "closing"
)

// Session is the per-customer conversation aggregate. It is owned by the
// session store and mutated only through orchestrator commands.
type Session struct {
	ID           string            `json:"id"`
	ProductID    string            `json:"product_id,omitempty"`
	CustomerID   string            `json:"customer_id,omitempty"`
	Messages     []Message         `json:"messages"`
	CurrentPhase Phase             `json:"current_phase"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
}

// Clone returns a deep copy safe to read or marshal while the original
// keeps being mutated by its owner.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// LastIntentScore reads the previous turn's intent score from metadata.
// Returns 0 when no turn has been scored yet.
func (s *Session) LastIntentScore() int {
	return metaInt(s.Metadata, MetaLastIntentScore)
}

// CustomerTexts returns the text of customer messages, oldest first.
func (s *Session) CustomerTexts() []string {
	var texts []string
	for _, m := range s.Messages {
		if m.Role == RoleCustomer {
			texts = append(texts, m.Text)
		}
	}
	return texts
}

// CustomerMessageCount counts customer turns in the history.
func (s *Session) CustomerMessageCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == RoleCustomer {
			n++
		}
	}
	return n
}

// SecondsElapsed returns the age of the conversation in whole seconds.
func (s *Session) SecondsElapsed(now time.Time) int {
	if s.CreatedAt.IsZero() {
		return 0
	}
	return int(now.Sub(s.CreatedAt) / time.Second)
}

// Well-known session metadata keys.
const (
	MetaInitialized     = "initialized"
	MetaLastIntentScore = "last_intent_score"
	MetaPrevIntentScore = "prev_intent_score"
	MetaProductName     = "product_name"
	MetaProductPrice    = "product_price"
)

func metaInt(meta map[string]string, key string) int {
	if meta == nil {
		return 0
	}
	v := meta[key]
	n := 0
	for _, r := range v {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
