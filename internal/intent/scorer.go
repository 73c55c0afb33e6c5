// Package intent converts raw customer messages into bounded
// purchase-intent scores.
package intent

import (
	"strings"

	"github.com/tekkistudio/sales-orchestrator/internal/model"
)

// Weights applied per signal table. A phrase may legitimately match
// more than one table; the sums accumulate.
const (
	strongWeight   = 85
	mediumWeight   = 60
	weakWeight     = 30
	blockingWeight = -40

	practicalQuestionBonus = 25
	positiveEmotionBonus   = 15
	validationBonus        = 20
	personalizationBonus   = 30
	urgencyBonus           = 25
)

// Scorer computes purchase intent. Scoring is a pure function of its
// inputs; the scorer holds only the immutable signal tables and does
// no I/O, so it is cheap to call on every message.
type Scorer struct {
	tables *SignalTables
}

// NewScorer creates a scorer over the given signal tables. Passing nil
// uses the built-in defaults.
func NewScorer(tables *SignalTables) *Scorer {
	if tables == nil {
		tables = DefaultSignalTables()
	}
	return &Scorer{tables: tables}
}

// Score evaluates one customer message against its conversation
// context. The history parameter carries recent customer texts and is
// reserved for matched-signal reporting; the numeric context drives
// the contextual bonuses.
func (s *Scorer) Score(message string, history []string, ctx model.IntentContext) model.PurchaseIntent {
	text := normalize(message)

	score := 0
	var matched []string

	score += s.matchTable(text, s.tables.Strong, strongWeight, "strong", &matched)
	score += s.matchTable(text, s.tables.Medium, mediumWeight, "medium", &matched)
	score += s.matchTable(text, s.tables.Weak, weakWeight, "weak", &matched)
	score += s.matchTable(text, s.tables.Blocking, blockingWeight, "blocking", &matched)

	// Contextual bonuses: sustained conversations signal commitment.
	if ctx.MessageCount > 3 {
		score += min(20, 2*ctx.MessageCount)
	}
	if ctx.SecondsElapsed > 120 {
		score += min(15, ctx.SecondsElapsed/60)
	}
	if ctx.PreviousScore > 40 {
		score += 10
	}

	// Linguistic bonuses.
	if n := countMatches(text, s.tables.PracticalQuestions); n > 0 {
		score += practicalQuestionBonus * n
		matched = append(matched, "practical_question")
	}
	if n := countMatches(text, s.tables.PositiveEmotions); n > 0 {
		score += positiveEmotionBonus * n
		matched = append(matched, "positive_emotion")
	}
	if countMatches(text, s.tables.Validations) > 0 {
		score += validationBonus
		matched = append(matched, "validation")
	}
	if countMatches(text, s.tables.Personalizations) > 0 {
		score += personalizationBonus
		matched = append(matched, "personalization")
	}
	if countMatches(text, s.tables.Urgency) > 0 {
		score += urgencyBonus
		matched = append(matched, "urgency")
	}

	score = clamp(score, 0, 100)

	intent := model.PurchaseIntent{
		Score:          score,
		MatchedSignals: matched,
	}
	switch {
	case score >= 75:
		intent.Confidence = model.ConfidenceHigh
		intent.Recommendation = model.RecommendTriggerPurchase
	case score >= 45:
		intent.Confidence = model.ConfidenceMedium
		intent.Recommendation = model.RecommendNudge
	default:
		intent.Confidence = model.ConfidenceLow
		intent.Recommendation = model.RecommendContinue
	}
	return intent
}

// Tables exposes the active signal tables, e.g. for version reporting.
func (s *Scorer) Tables() *SignalTables {
	return s.tables
}

func (s *Scorer) matchTable(text string, phrases []string, weight int, label string, matched *[]string) int {
	total := 0
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			total += weight
			*matched = append(*matched, label+":"+phrase)
		}
	}
	return total
}

func countMatches(text string, phrases []string) int {
	n := 0
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			n++
		}
	}
	return n
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
