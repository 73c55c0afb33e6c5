package model

// Confidence qualifies how reliable an intent score is.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Recommendation is the categorical action derived from an intent score.
type Recommendation string

const (
	RecommendContinue        Recommendation = "continue"
	RecommendNudge           Recommendation = "nudge"
	RecommendTriggerPurchase Recommendation = "trigger_purchase"
)

// PurchaseIntent is the computed readiness-to-buy estimate for one
// customer message. It is never persisted; identical inputs always
// produce identical output.
type PurchaseIntent struct {
	Score          int            `json:"score"`
	Confidence     Confidence     `json:"confidence"`
	MatchedSignals []string       `json:"matched_signals"`
	Recommendation Recommendation `json:"recommendation"`
}

// IntentContext is the numeric conversation context fed to the scorer
// alongside the message text.
type IntentContext struct {
	MessageCount   int
	SecondsElapsed int
	PreviousScore  int
}
