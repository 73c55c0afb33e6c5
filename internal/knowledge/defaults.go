package knowledge

import (
	"github.com/tekkistudio/sales-orchestrator/internal/model"
)

// defaultItems is the built-in fallback set served when the store has
// never been reachable. Small on purpose: just enough to answer the
// questions every customer asks, so the assistant degrades gracefully
// instead of going silent.
func defaultItems() []model.KnowledgeItem {
	return []model.KnowledgeItem{
		{
			ID:              "default-delivery",
			Category:        "livraison",
			TriggerKeywords: []string{"livraison", "livrer", "délai", "expédition"},
			Question:        "Comment se passe la livraison ?",
			Answer:          "Nous livrons à Dakar en 24h et partout au Sénégal sous 48 à 72h. La livraison est gratuite à Dakar.",
			Priority:        10,
			SuggestedFollowUps: []string{
				"Quels sont les modes de paiement ?",
				"Je veux commander maintenant",
			},
		},
		{
			ID:              "default-payment",
			Category:        "paiement",
			TriggerKeywords: []string{"paiement", "payer", "wave", "orange money", "carte"},
			Question:        "Quels sont les modes de paiement ?",
			Answer:          "Vous pouvez payer par Wave, Orange Money, carte bancaire ou à la livraison.",
			Priority:        10,
			SuggestedFollowUps: []string{
				"Comment se passe la livraison ?",
				"Je veux commander maintenant",
			},
		},
		{
			ID:              "default-howto",
			Category:        "produit",
			TriggerKeywords: []string{"comment jouer", "règles", "fonctionne", "utiliser"},
			Question:        "Comment fonctionne le jeu ?",
			Answer:          "{product} contient 150 cartes de questions pour créer des conversations profondes. Tirez une carte à tour de rôle et laissez la discussion se faire.",
			Priority:        5,
			SuggestedFollowUps: []string{
				"Pour qui est ce jeu ?",
				"Je veux commander maintenant",
			},
		},
	}
}
