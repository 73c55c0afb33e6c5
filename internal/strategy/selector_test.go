package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tekkistudio/sales-orchestrator/internal/model"
)

func intentWithScore(score int) model.PurchaseIntent {
	return model.PurchaseIntent{Score: score}
}

func TestClosingWinsOnIntentSpike(t *testing.T) {
	s := NewSelector()

	// Even with objections in the history, a spiking intent closes.
	a := s.Classify("je le prends", Metrics{ObjectionCount: 2, Turns: 5}, intentWithScore(80))

	assert.Equal(t, model.PhaseClosing, a.Phase)
	require.NotEmpty(t, a.Suggestions)
	assert.Equal(t, PriorityCritical, a.Suggestions[0].Priority)
	assert.Equal(t, "assumptive_close", a.Suggestions[0].Tactic)
}

func TestObjectionHandlingOnPriceObjection(t *testing.T) {
	s := NewSelector()

	a := s.Classify("c'est trop cher", Metrics{Turns: 3}, intentWithScore(20))

	assert.Equal(t, model.PhaseObjectionHandling, a.Phase)
	assert.Equal(t, "empathy_reframe", a.Suggestions[0].Tactic)
}

func TestSolutionPresentationForEngagedCustomers(t *testing.T) {
	s := NewSelector()

	a := s.Classify("d'accord", Metrics{EngagementScore: 70, Turns: 4}, intentWithScore(40))

	assert.Equal(t, model.PhaseSolutionPresentation, a.Phase)
}

func TestNeedDiscoveryAfterQuestions(t *testing.T) {
	s := NewSelector()

	a := s.Classify("d'accord", Metrics{QuestionCount: 2, Turns: 2}, intentWithScore(10))

	assert.Equal(t, model.PhaseNeedDiscovery, a.Phase)
}

func TestRapportBuildingByDefault(t *testing.T) {
	s := NewSelector()

	a := s.Classify("bonjour", Metrics{Turns: 1}, intentWithScore(0))

	assert.Equal(t, model.PhaseRapportBuilding, a.Phase)
	assert.Equal(t, RiskLow, a.DropOffRisk)
}

func TestDropOffRiskFromAbandonmentPhrase(t *testing.T) {
	s := NewSelector()

	a := s.Classify("je dois y aller", Metrics{Turns: 2}, intentWithScore(10))

	assert.Equal(t, RiskHigh, a.DropOffRisk)
}

func TestDropOffRiskFromNegativeTrend(t *testing.T) {
	s := NewSelector()

	a := s.Classify("bon", Metrics{Turns: 3, LastScores: []int{60, 30}}, intentWithScore(30))

	assert.Equal(t, RiskMedium, a.DropOffRisk)
}

func TestDropOffRiskFromElapsedTime(t *testing.T) {
	s := NewSelector()

	medium := s.Classify("ok", Metrics{ElapsedTime: 9 * time.Minute}, intentWithScore(10))
	high := s.Classify("ok", Metrics{ElapsedTime: 16 * time.Minute}, intentWithScore(10))

	assert.Equal(t, RiskMedium, medium.DropOffRisk)
	assert.Equal(t, RiskHigh, high.DropOffRisk)
}

func TestUrgencySuggestionOnLongConversations(t *testing.T) {
	s := NewSelector()

	a := s.Classify("je réfléchis", Metrics{ElapsedTime: 10 * time.Minute, Turns: 6}, intentWithScore(40))

	var tactics []string
	for _, sug := range a.Suggestions {
		tactics = append(tactics, sug.Tactic)
	}
	assert.Contains(t, tactics, "inject_urgency")
}

func TestBuildMetricsCountsQuestionsAndObjections(t *testing.T) {
	now := time.Now()
	sess := &model.Session{
		CreatedAt: now.Add(-3 * time.Minute),
		Messages: []model.Message{
			{Role: model.RoleCustomer, Text: "Comment ça marche ?"},
			{Role: model.RoleAssistant, Text: "Très simplement."},
			{Role: model.RoleCustomer, Text: "C'est trop cher pour moi"},
		},
	}

	m := BuildMetrics(sess, now)

	assert.Equal(t, 2, m.Turns)
	assert.Equal(t, 1, m.QuestionCount)
	assert.Equal(t, 1, m.ObjectionCount)
	assert.InDelta(t, 3*time.Minute, m.ElapsedTime, float64(time.Second))
	assert.Greater(t, m.EngagementScore, 0)
}
