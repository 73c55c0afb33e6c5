package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tekkistudio/sales-orchestrator/internal/model"
)

func TestScoreIsClamped(t *testing.T) {
	s := NewScorer(nil)

	// Stack every bonus the tables know about.
	loaded := s.Score(
		"Je vais le prendre maintenant, c'est parfait pour nous, comment payer ? super génial",
		nil,
		model.IntentContext{MessageCount: 10, SecondsElapsed: 900, PreviousScore: 80},
	)
	assert.LessOrEqual(t, loaded.Score, 100)
	assert.GreaterOrEqual(t, loaded.Score, 0)

	// A pile of blockers must clamp at zero, not go negative.
	blocked := s.Score("trop cher, pas intéressé, non merci, arnaque", nil, model.IntentContext{})
	assert.Equal(t, 0, blocked.Score)
	assert.Equal(t, model.RecommendContinue, blocked.Recommendation)
}

func TestScoreSignalAdditivity(t *testing.T) {
	s := NewScorer(nil)
	ctx := model.IntentContext{MessageCount: 2}

	base := s.Score("je réfléchis encore", nil, ctx)
	more := s.Score("je réfléchis encore mais je veux commander", nil, ctx)

	assert.GreaterOrEqual(t, more.Score, base.Score,
		"adding a strong signal must never lower the score")
}

func TestScoreIsDeterministic(t *testing.T) {
	s := NewScorer(nil)
	ctx := model.IntentContext{MessageCount: 4, SecondsElapsed: 300, PreviousScore: 50}

	first := s.Score("combien ça coûte avec la livraison ?", nil, ctx)
	second := s.Score("combien ça coûte avec la livraison ?", nil, ctx)

	assert.Equal(t, first, second)
}

func TestImmediatePurchaseTriggersOnFreshSession(t *testing.T) {
	s := NewScorer(nil)

	intent := s.Score("Je vais le prendre maintenant", nil, model.IntentContext{MessageCount: 1})

	assert.GreaterOrEqual(t, intent.Score, 85)
	assert.Equal(t, model.RecommendTriggerPurchase, intent.Recommendation)
	assert.Equal(t, model.ConfidenceHigh, intent.Confidence)
	assert.NotEmpty(t, intent.MatchedSignals)
}

func TestContextualBonuses(t *testing.T) {
	s := NewScorer(nil)
	msg := "dites-moi plus"

	short := s.Score(msg, nil, model.IntentContext{MessageCount: 1})
	long := s.Score(msg, nil, model.IntentContext{MessageCount: 6, SecondsElapsed: 240, PreviousScore: 50})

	// weak(30) vs weak(30) + min(20,12) + min(15,4) + 10
	assert.Equal(t, 30, short.Score)
	assert.Equal(t, 30+12+4+10, long.Score)
}

func TestBlockingSignalLowersScore(t *testing.T) {
	s := NewScorer(nil)
	ctx := model.IntentContext{}

	plain := s.Score("le prix m'intéresse", nil, ctx)
	blocked := s.Score("le prix m'intéresse mais c'est trop cher", nil, ctx)

	assert.Less(t, blocked.Score, plain.Score)
}

func TestNudgeBand(t *testing.T) {
	s := NewScorer(nil)

	intent := s.Score("c'est disponible en ce moment ?", nil, model.IntentContext{})

	// exactly one medium signal, no linguistic bonuses
	require.GreaterOrEqual(t, intent.Score, 45)
	require.Less(t, intent.Score, 75)
	assert.Equal(t, model.RecommendNudge, intent.Recommendation)
	assert.Equal(t, model.ConfidenceMedium, intent.Confidence)
}

func TestScorerUsesLoadedTables(t *testing.T) {
	tables := DefaultSignalTables()
	tables.Strong = append(tables.Strong, "i will take it")
	s := NewScorer(tables)

	intent := s.Score("I will take it", nil, model.IntentContext{})

	assert.GreaterOrEqual(t, intent.Score, 85)
	assert.Equal(t, model.RecommendTriggerPurchase, intent.Recommendation)
}
