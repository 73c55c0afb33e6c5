package response

import (
	"fmt"

	"github.com/tekkistudio/sales-orchestrator/internal/model"
	"github.com/tekkistudio/sales-orchestrator/internal/strategy"
)

// Technique names recorded on generated messages.
const (
	TechniqueAssumptiveClose  = "assumptive_close"
	TechniqueAlternativeClose = "alternative_close"
	TechniqueUrgencyClose     = "urgency_close"
	TechniqueObjectionEmpathy = "objection_empathy"
	TechniqueKnowledgeAnswer  = "knowledge_answer"
	TechniqueGenerative       = "generative"
	TechniqueFallback         = "template_fallback"
	TechniqueRecovery         = "recovery"
	TechniqueWelcome          = "welcome"
)

// The purchase-triggering choice present in every choice list.
const purchaseChoice = "Je veux commander maintenant"

// ObjectionKind partitions objections into the families with a
// deterministic template versus the ones worth a generative reply.
type ObjectionKind string

const (
	ObjectionPrice    ObjectionKind = "price"
	ObjectionEfficacy ObjectionKind = "efficacy"
	ObjectionTime     ObjectionKind = "time"
	ObjectionComplex  ObjectionKind = "complex"
)

// closingTemplate returns the deterministic closing reply. The variant
// is chosen by drop-off risk: urgency content only when the customer
// is slipping away.
func closingTemplate(productName string, risk strategy.DropOffRisk) (string, string, []string) {
	product := displayName(productName)

	switch risk {
	case strategy.RiskHigh:
		return fmt.Sprintf(
				"Ne partez pas sans %s ! Il ne reste que quelques exemplaires en stock et la livraison est gratuite à Dakar aujourd'hui. Voulez-vous que je prépare votre commande tout de suite ?",
				product),
			TechniqueUrgencyClose,
			[]string{purchaseChoice, "J'ai une dernière question"}
	case strategy.RiskMedium:
		return fmt.Sprintf(
				"Parfait ! Préférez-vous recevoir %s dès demain à Dakar, ou choisir une livraison en région sous 72h ?",
				product),
			TechniqueAlternativeClose,
			[]string{purchaseChoice, "Livraison à Dakar", "Livraison en région"}
	default:
		return fmt.Sprintf(
				"Excellent choix ! Je prépare votre commande de %s. Combien d'exemplaires souhaitez-vous ?",
				product),
			TechniqueAssumptiveClose,
			[]string{purchaseChoice, "Un exemplaire", "Deux exemplaires"}
	}
}

// objectionTemplate returns the empathetic reply for price, efficacy
// and time objections. Complex objections have no deterministic
// template; the caller escalates those to the completion service.
func objectionTemplate(kind ObjectionKind, productName string) (string, []string, bool) {
	product := displayName(productName)

	switch kind {
	case ObjectionPrice:
		return fmt.Sprintf(
				"Je comprends que le budget compte. Pensez-y autrement : %s, c'est des centaines de conversations profondes pour le prix d'un dîner. Et plus de 1000 couples l'ont déjà adopté.",
				product),
			[]string{purchaseChoice, "Voir les témoignages", "Y a-t-il une garantie ?"},
			true
	case ObjectionEfficacy:
		return fmt.Sprintf(
				"C'est une question qu'on nous pose souvent ! %s a été conçu avec des thérapeutes de couple, et nos clients nous écrivent chaque semaine pour nous raconter leurs soirées. Satisfait ou remboursé sous 14 jours.",
				product),
			[]string{purchaseChoice, "Voir les témoignages", "Comment ça fonctionne ?"},
			true
	case ObjectionTime:
		return fmt.Sprintf(
				"Justement : %s se joue par sessions de 15 minutes, quand vous voulez. Une carte au dîner suffit pour lancer la conversation.",
				product),
			[]string{purchaseChoice, "Comment ça fonctionne ?"},
			true
	default:
		return "", nil, false
	}
}

// fallbackTemplate is the deterministic reply used when the completion
// service is unavailable.
func fallbackTemplate(phase model.Phase, productName string) (string, []string) {
	product := displayName(productName)

	switch phase {
	case model.PhaseNeedDiscovery:
		return fmt.Sprintf("Très bonne question ! Dites-m'en un peu plus : qu'est-ce qui vous attire dans %s ?", product),
			[]string{purchaseChoice, "Le prix et la livraison", "Comment ça fonctionne ?"}
	case model.PhaseSolutionPresentation:
		return fmt.Sprintf("%s contient 150 cartes pour créer des conversations qu'on n'a jamais autrement. La plupart de nos clients y jouent dès le premier soir.", product),
			[]string{purchaseChoice, "Voir les témoignages", "Le prix et la livraison"}
	case model.PhaseObjectionHandling:
		return "Je comprends votre hésitation, et c'est tout à fait normal. Qu'est-ce qui vous ferait dire oui ?",
			[]string{purchaseChoice, "Voir les témoignages", "Y a-t-il une garantie ?"}
	default:
		return fmt.Sprintf("Bienvenue ! Je suis là pour répondre à toutes vos questions sur %s. Qu'aimeriez-vous savoir ?", product),
			[]string{purchaseChoice, "Comment ça fonctionne ?", "Le prix et la livraison"}
	}
}

// welcomeTemplate opens a brand-new conversation.
func welcomeTemplate(productName string) (string, []string) {
	product := displayName(productName)
	return fmt.Sprintf("Bonjour et bienvenue ! Je suis Rose, votre conseillère. %s est l'un de nos best-sellers. Comment puis-je vous aider ?", product),
		[]string{"Comment ça fonctionne ?", "Le prix et la livraison", purchaseChoice}
}

// recoveryTemplate is the user-facing reply when the pipeline fails
// unexpectedly. The raw error never reaches the customer.
func recoveryTemplate() (string, []string) {
	return "Désolée, j'ai eu un petit souci technique. Pouvez-vous reformuler votre question ? Si ça persiste, je peux vous mettre en contact avec un conseiller.",
		[]string{"Réessayer", "Parler à un conseiller", purchaseChoice}
}

func displayName(productName string) string {
	if productName == "" {
		return "notre jeu"
	}
	return "le jeu " + productName
}
