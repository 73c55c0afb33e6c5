package response

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tekkistudio/sales-orchestrator/internal/llm"
	"github.com/tekkistudio/sales-orchestrator/internal/model"
	"github.com/tekkistudio/sales-orchestrator/internal/strategy"
	"github.com/tekkistudio/sales-orchestrator/pkg/logger"
)

type stubLLM struct {
	content string
	err     error
	calls   int
}

func (s *stubLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.content}, nil
}

func (s *stubLLM) Name() string     { return "stub" }
func (s *stubLLM) Models() []string { return nil }

func newGenerator(t *testing.T, client llm.Client) (*Generator, *stubLLM) {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)
	stub, _ := client.(*stubLLM)
	return NewGenerator(llm.NewStructured(client, time.Second, 512), log), stub
}

func highIntent() model.PurchaseIntent {
	return model.PurchaseIntent{Score: 90, Confidence: model.ConfidenceHigh, Recommendation: model.RecommendTriggerPurchase}
}

func lowIntent() model.PurchaseIntent {
	return model.PurchaseIntent{Score: 20, Confidence: model.ConfidenceLow, Recommendation: model.RecommendContinue}
}

func TestHighIntentUsesClosingTemplateWithoutNetworkCall(t *testing.T) {
	g, stub := newGenerator(t, &stubLLM{content: `{"content":"x","choices":[]}`})

	reply := g.Generate(context.Background(), "je le prends", model.PhaseSolutionPresentation, highIntent(), SalesContext{ProductName: "VOSC"})

	assert.Equal(t, 0, stub.calls, "closing path must not call the completion service")
	assert.Equal(t, model.PhaseClosing, reply.NextPhase)
	assert.Equal(t, TechniqueAssumptiveClose, reply.Technique)
	assert.Equal(t, model.CartActionAdd, reply.CartAction)
	require.NotEmpty(t, reply.Choices)
	assert.Equal(t, "Je veux commander maintenant", reply.Choices[0],
		"purchase option is promoted first on high intent")
}

func TestClosingVariantFollowsDropOffRisk(t *testing.T) {
	g, _ := newGenerator(t, &stubLLM{})

	urgent := g.Generate(context.Background(), "ok", model.PhaseClosing, highIntent(), SalesContext{DropOffRisk: strategy.RiskHigh})
	alternative := g.Generate(context.Background(), "ok", model.PhaseClosing, highIntent(), SalesContext{DropOffRisk: strategy.RiskMedium})

	assert.Equal(t, TechniqueUrgencyClose, urgent.Technique)
	assert.Equal(t, TechniqueAlternativeClose, alternative.Technique)
}

func TestPriceObjectionUsesTemplateWithTestimonialChoice(t *testing.T) {
	g, stub := newGenerator(t, &stubLLM{content: `{"content":"x","choices":[]}`})

	reply := g.Generate(context.Background(), "c'est trop cher", model.PhaseNeedDiscovery, lowIntent(), SalesContext{ProductName: "VOSC"})

	assert.Equal(t, 0, stub.calls, "price objections are templated, not generated")
	assert.Equal(t, model.PhaseObjectionHandling, reply.NextPhase)
	assert.Contains(t, reply.Choices, "Je veux commander maintenant")
	assert.Contains(t, reply.Choices, "Voir les témoignages")
}

func TestComplexObjectionEscalatesToCompletionService(t *testing.T) {
	g, stub := newGenerator(t, &stubLLM{content: `{"content":"Je comprends, parlons-en.","choices":["D'accord"]}`})

	reply := g.Generate(context.Background(), "on a déjà essayé ce genre de jeu", model.PhaseNeedDiscovery, lowIntent(), SalesContext{})

	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, "Je comprends, parlons-en.", reply.Text)
	assert.Equal(t, model.PhaseObjectionHandling, reply.NextPhase)
	assert.Equal(t, TechniqueGenerative, reply.Technique)
}

func TestKnowledgeHitShortCircuitsGeneration(t *testing.T) {
	g, stub := newGenerator(t, &stubLLM{content: `{"content":"x","choices":[]}`})

	hit := &model.ScoredItem{
		Item: model.KnowledgeItem{
			Answer:             "Livraison en 24h à Dakar.",
			SuggestedFollowUps: []string{"Quels sont les modes de paiement ?"},
		},
		Score: 2.5,
	}
	reply := g.Generate(context.Background(), "la livraison ?", model.PhaseNeedDiscovery, lowIntent(), SalesContext{KnowledgeHit: hit})

	assert.Equal(t, 0, stub.calls)
	assert.Equal(t, "Livraison en 24h à Dakar.", reply.Text)
	assert.Equal(t, TechniqueKnowledgeAnswer, reply.Technique)
	assert.Contains(t, reply.Choices, "Je veux commander maintenant")
}

func TestCompletionFailureFallsBackToTemplate(t *testing.T) {
	g, stub := newGenerator(t, &stubLLM{err: errors.New("connection refused")})

	reply := g.Generate(context.Background(), "parlez-moi du jeu", model.PhaseSolutionPresentation, lowIntent(), SalesContext{ProductName: "VOSC"})

	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, TechniqueFallback, reply.Technique)
	assert.NotEmpty(t, reply.Text)
	assert.Contains(t, reply.Choices, "Je veux commander maintenant")
}

func TestMalformedCompletionFallsBackAfterRetry(t *testing.T) {
	g, stub := newGenerator(t, &stubLLM{content: "pas du JSON"})

	reply := g.Generate(context.Background(), "parlez-moi du jeu", model.PhaseRapportBuilding, lowIntent(), SalesContext{})

	assert.Equal(t, 2, stub.calls, "one retry on contract violation")
	assert.Equal(t, TechniqueFallback, reply.Technique)
}

func TestChoiceListCapAndPurchaseOption(t *testing.T) {
	g, _ := newGenerator(t, &stubLLM{content: `{"content":"ok","choices":["a","b","c","d","e"]}`})

	reply := g.Generate(context.Background(), "dites-moi tout", model.PhaseRapportBuilding, lowIntent(), SalesContext{})

	assert.LessOrEqual(t, len(reply.Choices), 4)
	assert.Contains(t, reply.Choices, "Je veux commander maintenant")
}

func TestWelcomeAndRecovery(t *testing.T) {
	g, _ := newGenerator(t, &stubLLM{})

	welcome := g.Welcome(SalesContext{ProductName: "VOSC"})
	assert.Equal(t, TechniqueWelcome, welcome.Technique)
	assert.Equal(t, model.PhaseRapportBuilding, welcome.NextPhase)
	assert.Contains(t, welcome.Text, "VOSC")

	recovery := g.Recovery(model.PhaseNeedDiscovery)
	assert.Equal(t, TechniqueRecovery, recovery.Technique)
	assert.Contains(t, recovery.Choices, "Parler à un conseiller")
}
