// Package response turns a phase/intent pair into the assistant's
// reply, preferring deterministic templates and delegating to the
// completion service only when generation is worth the latency.
package response

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tekkistudio/sales-orchestrator/internal/llm"
	"github.com/tekkistudio/sales-orchestrator/internal/model"
	"github.com/tekkistudio/sales-orchestrator/internal/strategy"
	"github.com/tekkistudio/sales-orchestrator/pkg/logger"
	"github.com/tekkistudio/sales-orchestrator/pkg/metrics"
)

// maxChoices caps every generated choice list.
const maxChoices = 4

// closingThreshold is the intent score at which the deterministic
// closing path takes over. No network call above it, for latency and
// determinism.
const closingThreshold = 70

// SalesContext carries the product facts the generator threads into
// templates and prompts.
type SalesContext struct {
	ProductName  string
	ProductID    string
	Price        int64
	Currency     string
	RecentTurns  []llm.ChatMessage
	DropOffRisk  strategy.DropOffRisk
	Suggestions  []strategy.OptimizationSuggestion
	KnowledgeHit *model.ScoredItem
}

// Reply is the generated assistant reply.
type Reply struct {
	Text       string
	Choices    []string
	NextPhase  model.Phase
	Technique  string
	CartAction model.CartAction
}

// Generator builds replies from templates and the completion service.
type Generator struct {
	completer *llm.Structured
	logger    *logger.Logger
}

// NewGenerator creates a generator. The completer may wrap a nil
// client; every generative path then falls back to templates.
func NewGenerator(completer *llm.Structured, log *logger.Logger) *Generator {
	return &Generator{completer: completer, logger: log}
}

// Generate produces the reply for one turn.
func (g *Generator) Generate(ctx context.Context, message string, phase model.Phase, intent model.PurchaseIntent, sc SalesContext) Reply {
	// High intent: deterministic closing template, never a network call.
	if intent.Score >= closingThreshold {
		text, technique, choices := closingTemplate(sc.ProductName, sc.DropOffRisk)
		return Reply{
			Text:       text,
			Choices:    normalizeChoices(choices, intent),
			NextPhase:  model.PhaseClosing,
			Technique:  technique,
			CartAction: model.CartActionAdd,
		}
	}

	// Objections: template for the known families, completion service
	// only for complex ones.
	if kind, ok := classifyObjection(message); ok {
		if text, choices, templated := objectionTemplate(kind, sc.ProductName); templated {
			return Reply{
				Text:      text,
				Choices:   normalizeChoices(choices, intent),
				NextPhase: model.PhaseObjectionHandling,
				Technique: TechniqueObjectionEmpathy,
			}
		}
		return g.generative(ctx, message, model.PhaseObjectionHandling, intent, sc)
	}

	// A confident knowledge hit answers without generation.
	if sc.KnowledgeHit != nil {
		item := sc.KnowledgeHit.Item
		choices := append([]string(nil), item.SuggestedFollowUps...)
		return Reply{
			Text:      item.Answer,
			Choices:   normalizeChoices(choices, intent),
			NextPhase: phase,
			Technique: TechniqueKnowledgeAnswer,
		}
	}

	return g.generative(ctx, message, phase, intent, sc)
}

// Welcome produces the idempotent opening message for a new session.
func (g *Generator) Welcome(sc SalesContext) Reply {
	text, choices := welcomeTemplate(sc.ProductName)
	return Reply{
		Text:      text,
		Choices:   choices,
		NextPhase: model.PhaseRapportBuilding,
		Technique: TechniqueWelcome,
	}
}

// Recovery produces the user-facing reply for an unexpected pipeline
// failure.
func (g *Generator) Recovery(phase model.Phase) Reply {
	text, choices := recoveryTemplate()
	return Reply{
		Text:      text,
		Choices:   choices,
		NextPhase: phase,
		Technique: TechniqueRecovery,
	}
}

// generative delegates to the completion service and falls back to the
// phase template on any failure.
func (g *Generator) generative(ctx context.Context, message string, phase model.Phase, intent model.PurchaseIntent, sc SalesContext) Reply {
	req := &llm.CompletionRequest{
		System:   g.systemPrompt(phase, intent, sc),
		Messages: append(append([]llm.ChatMessage(nil), sc.RecentTurns...), llm.ChatMessage{Role: "user", Content: message}),
	}

	structured, err := g.completer.Complete(ctx, req)
	if err != nil {
		g.logger.Warn("completion failed, using template fallback",
			zap.String("phase", string(phase)), zap.Error(err))
		metrics.CompletionFallbacks.WithLabelValues(fallbackReason(err)).Inc()

		text, choices := fallbackTemplate(phase, sc.ProductName)
		return Reply{
			Text:      text,
			Choices:   normalizeChoices(choices, intent),
			NextPhase: phase,
			Technique: TechniqueFallback,
		}
	}

	return Reply{
		Text:      structured.Content,
		Choices:   normalizeChoices(structured.Choices, intent),
		NextPhase: phase,
		Technique: TechniqueGenerative,
	}
}

// systemPrompt builds the structured prompt contract: product facts,
// price, phase, intent, register requirements and the JSON shape.
func (g *Generator) systemPrompt(phase model.Phase, intent model.PurchaseIntent, sc SalesContext) string {
	currency := sc.Currency
	if currency == "" {
		currency = "FCFA"
	}

	facts := map[string]any{
		"produit":      displayName(sc.ProductName),
		"prix":         fmt.Sprintf("%d %s", sc.Price, currency),
		"phase":        string(phase),
		"score_intent": intent.Score,
	}
	if len(sc.Suggestions) > 0 {
		facts["tactique"] = sc.Suggestions[0].Tactic
	}
	factsJSON, _ := json.Marshal(facts)

	var b strings.Builder
	b.WriteString("Tu es Rose, conseillère de vente pour une boutique de jeux de cartes relationnels. ")
	b.WriteString("Réponds en français, vouvoiement, registre chaleureux mais soutenu. ")
	b.WriteString("Termine toujours par une question qui fait avancer la vente.\n")
	b.WriteString("Contexte: " + string(factsJSON) + "\n")
	b.WriteString(`Réponds UNIQUEMENT avec un objet JSON de la forme {"content": "...", "choices": ["...", "..."]}. `)
	b.WriteString("Maximum 3 choices, courtes, orientées achat.")
	return b.String()
}

// classifyObjection maps an objection message onto its family. The
// second return is false when the message carries no objection at all.
func classifyObjection(message string) (ObjectionKind, bool) {
	text := strings.ToLower(message)

	switch {
	case containsAny(text, "trop cher", "très cher", "prix élevé", "budget", "pas les moyens"):
		return ObjectionPrice, true
	case containsAny(text, "ça marche vraiment", "pas convaincu", "pas convaincue", "pas sûr que ça", "preuve"):
		return ObjectionEfficacy, true
	case containsAny(text, "pas le temps de jouer", "pas le temps d'y jouer", "trop occupé"):
		return ObjectionTime, true
	case containsAny(text, "déjà essayé", "pas pour moi", "je doute"):
		return ObjectionComplex, true
	default:
		return "", false
	}
}

// normalizeChoices enforces the choice-list contract: a purchase
// option is always present, promoted to the front on high intent, and
// the list is capped at maxChoices.
func normalizeChoices(choices []string, intent model.PurchaseIntent) []string {
	rest := make([]string, 0, len(choices))
	for _, c := range choices {
		if c != purchaseChoice {
			rest = append(rest, c)
		}
	}
	if len(rest) > maxChoices-1 {
		rest = rest[:maxChoices-1]
	}

	if intent.Score >= closingThreshold || intent.Recommendation == model.RecommendTriggerPurchase {
		return append([]string{purchaseChoice}, rest...)
	}
	return append(rest, purchaseChoice)
}

func containsAny(text string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func fallbackReason(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "malformed"):
		return "malformed_output"
	case strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "no provider"):
		return "no_provider"
	default:
		return "transport"
	}
}
