package model

// KnowledgeItem is a curated question/answer record used for
// deterministic, low-latency replies before falling back to the
// completion service. Items without trigger keywords are unreachable
// by search and are dropped at load time.
type KnowledgeItem struct {
	ID                 string   `json:"id"`
	Category           string   `json:"category"`
	TriggerKeywords    []string `json:"trigger_keywords"`
	Question           string   `json:"question"`
	Answer             string   `json:"answer"`
	Priority           int      `json:"priority"`
	SuggestedFollowUps []string `json:"suggested_follow_ups,omitempty"`
}

// ScoredItem is a knowledge item ranked against a query.
type ScoredItem struct {
	Item  KnowledgeItem `json:"item"`
	Score float64       `json:"score"`
}
