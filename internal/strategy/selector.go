// Package strategy classifies the current sales phase and emits
// tactical recommendations for the response generator.
package strategy

import (
	"strings"
	"time"

	"github.com/tekkistudio/sales-orchestrator/internal/model"
	"github.com/tekkistudio/sales-orchestrator/pkg/metrics"
)

// Priority qualifies an optimization suggestion.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// DropOffRisk estimates how likely the customer is to abandon the
// conversation.
type DropOffRisk string

const (
	RiskLow    DropOffRisk = "low"
	RiskMedium DropOffRisk = "medium"
	RiskHigh   DropOffRisk = "high"
)

// OptimizationSuggestion is one tactical recommendation, used to pick
// a response template family.
type OptimizationSuggestion struct {
	Priority Priority `json:"priority"`
	Tactic   string   `json:"tactic"`
	Reason   string   `json:"reason"`
}

// Metrics is the accumulated per-session input to the classifier.
type Metrics struct {
	EngagementScore int
	ObjectionCount  int
	QuestionCount   int
	Turns           int
	ElapsedTime     time.Duration
	// LastScores holds the two most recent intent scores, newest last.
	LastScores []int
}

// Assessment is the classifier output for one turn.
type Assessment struct {
	Phase       model.Phase              `json:"phase"`
	Suggestions []OptimizationSuggestion `json:"suggestions"`
	DropOffRisk DropOffRisk              `json:"drop_off_risk"`
}

// Selector reclassifies the sales phase every turn. It is not a
// transition-table state machine: the phase is recomputed from the
// session metrics and the latest intent score, so any phase may
// re-enter objection handling or jump to closing when intent spikes.
type Selector struct {
	abandonPhrases []string
	objectionWords []string
}

// NewSelector creates a selector with the built-in French lexicons.
func NewSelector() *Selector {
	return &Selector{
		abandonPhrases: []string{
			"je dois y aller",
			"pas le temps",
			"plus tard",
			"je reviendrai",
			"on verra",
			"laissez tomber",
		},
		objectionWords: []string{
			"trop cher",
			"très cher",
			"prix élevé",
			"pas sûr",
			"pas sûre",
			"pas convaincu",
			"pas convaincue",
			"ça marche vraiment",
			"pas le temps de jouer",
			"déjà essayé",
		},
	}
}

// Classify computes the phase, suggestions and drop-off risk for the
// current turn. Pure computation, no I/O.
func (s *Selector) Classify(message string, m Metrics, intent model.PurchaseIntent) Assessment {
	text := strings.ToLower(message)

	objections := m.ObjectionCount
	if s.HasObjection(text) {
		objections++
	}

	phase := s.phase(m, objections, intent.Score)
	metrics.PhaseTransitions.WithLabelValues(string(phase)).Inc()

	return Assessment{
		Phase:       phase,
		Suggestions: s.suggest(phase, m, intent),
		DropOffRisk: s.dropOffRisk(text, m),
	}
}

// HasObjection reports whether the message matches the objection
// lexicon.
func (s *Selector) HasObjection(message string) bool {
	text := strings.ToLower(message)
	for _, w := range s.objectionWords {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// phase applies the classification priority order: closing on intent
// spikes, objection handling above everything else, then presentation,
// discovery and rapport.
func (s *Selector) phase(m Metrics, objections, intentScore int) model.Phase {
	switch {
	case intentScore >= 70:
		return model.PhaseClosing
	case objections > 0:
		return model.PhaseObjectionHandling
	case m.EngagementScore >= 60 && intentScore >= 30:
		return model.PhaseSolutionPresentation
	case m.QuestionCount > 0 && m.Turns >= 2:
		return model.PhaseNeedDiscovery
	default:
		return model.PhaseRapportBuilding
	}
}

func (s *Selector) suggest(phase model.Phase, m Metrics, intent model.PurchaseIntent) []OptimizationSuggestion {
	var out []OptimizationSuggestion

	switch phase {
	case model.PhaseClosing:
		out = append(out, OptimizationSuggestion{
			Priority: PriorityCritical,
			Tactic:   "assumptive_close",
			Reason:   "intent score is in the purchase band",
		})
	case model.PhaseObjectionHandling:
		out = append(out, OptimizationSuggestion{
			Priority: PriorityHigh,
			Tactic:   "empathy_reframe",
			Reason:   "active objection on the table",
		})
		if intent.Score >= 45 {
			out = append(out, OptimizationSuggestion{
				Priority: PriorityMedium,
				Tactic:   "social_proof",
				Reason:   "warm prospect with a blocker",
			})
		}
	case model.PhaseSolutionPresentation:
		out = append(out, OptimizationSuggestion{
			Priority: PriorityMedium,
			Tactic:   "benefit_framing",
			Reason:   "engaged customer ready for specifics",
		})
	case model.PhaseNeedDiscovery:
		out = append(out, OptimizationSuggestion{
			Priority: PriorityMedium,
			Tactic:   "open_question",
			Reason:   "customer is asking, keep them talking",
		})
	default:
		out = append(out, OptimizationSuggestion{
			Priority: PriorityLow,
			Tactic:   "warm_welcome",
			Reason:   "conversation is still warming up",
		})
	}

	if m.ElapsedTime > 8*time.Minute && intent.Score < 75 {
		out = append(out, OptimizationSuggestion{
			Priority: PriorityHigh,
			Tactic:   "inject_urgency",
			Reason:   "long conversation without a close",
		})
	}
	return out
}

// dropOffRisk combines abandonment phrases, the intent trend over the
// last two scores, and elapsed-time thresholds.
func (s *Selector) dropOffRisk(text string, m Metrics) DropOffRisk {
	for _, phrase := range s.abandonPhrases {
		if strings.Contains(text, phrase) {
			return RiskHigh
		}
	}

	if len(m.LastScores) >= 2 {
		prev, last := m.LastScores[len(m.LastScores)-2], m.LastScores[len(m.LastScores)-1]
		if last < prev {
			return RiskMedium
		}
	}

	switch {
	case m.ElapsedTime > 15*time.Minute:
		return RiskHigh
	case m.ElapsedTime > 8*time.Minute:
		return RiskMedium
	default:
		return RiskLow
	}
}

// BuildMetrics derives classifier metrics from a session history plus
// the timestamp of the current turn.
func BuildMetrics(sess *model.Session, now time.Time) Metrics {
	m := Metrics{
		Turns:       sess.CustomerMessageCount(),
		ElapsedTime: now.Sub(sess.CreatedAt),
	}
	if sess.CreatedAt.IsZero() {
		m.ElapsedTime = 0
	}

	sel := NewSelector()
	var totalLen int
	for _, msg := range sess.Messages {
		if msg.Role != model.RoleCustomer {
			continue
		}
		text := strings.ToLower(msg.Text)
		totalLen += len(text)
		if strings.Contains(text, "?") {
			m.QuestionCount++
		}
		if sel.HasObjection(text) {
			m.ObjectionCount++
		}
	}

	// Engagement blends turn count and message length: ten points per
	// turn plus one per ten characters, capped at 100.
	engagement := m.Turns*10 + totalLen/10
	if engagement > 100 {
		engagement = 100
	}
	m.EngagementScore = engagement

	if prev := sess.Metadata[model.MetaPrevIntentScore]; prev != "" {
		if last := sess.Metadata[model.MetaLastIntentScore]; last != "" {
			m.LastScores = []int{atoi(prev), atoi(last)}
		}
	}
	return m
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
