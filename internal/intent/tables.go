package intent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tekkistudio/sales-orchestrator/internal/store"
)

// SignalTables is the versioned lexicon document driving the scorer.
// Tables are loaded from the store so scoring rules can be tuned
// without a redeploy; the built-in defaults cover a fresh install.
type SignalTables struct {
	Version int `json:"version"`

	Strong   []string `json:"strong"`
	Medium   []string `json:"medium"`
	Weak     []string `json:"weak"`
	Blocking []string `json:"blocking"`

	PracticalQuestions []string `json:"practical_questions"`
	PositiveEmotions   []string `json:"positive_emotions"`
	Validations        []string `json:"validations"`
	Personalizations   []string `json:"personalizations"`
	Urgency            []string `json:"urgency"`
}

// DefaultSignalTables returns the built-in French lexicons.
func DefaultSignalTables() *SignalTables {
	return &SignalTables{
		Version: 1,
		Strong: []string{
			"je vais le prendre",
			"je le prends",
			"je veux acheter",
			"je veux commander",
			"je passe commande",
			"je commande",
			"c'est bon pour moi",
			"je valide",
			"ok pour commander",
			"je suis convaincu",
			"je suis convaincue",
			"on le prend",
			"je l'achète",
		},
		Medium: []string{
			"combien ça coûte",
			"quel est le prix",
			"le prix",
			"la livraison",
			"comment commander",
			"modes de paiement",
			"comment payer",
			"délai de livraison",
			"c'est disponible",
		},
		Weak: []string{
			"intéressant",
			"pourquoi pas",
			"peut-être",
			"je réfléchis",
			"pas mal",
			"dites-moi plus",
			"j'hésite",
		},
		Blocking: []string{
			"trop cher",
			"pas intéressé",
			"pas intéressée",
			"non merci",
			"pas pour moi",
			"je ne veux pas",
			"une autre fois",
			"arnaque",
		},
		PracticalQuestions: []string{
			"comment",
			"combien",
			"quand",
			"livraison",
			"paiement",
		},
		PositiveEmotions: []string{
			"super",
			"génial",
			"parfait",
			"excellent",
			"j'adore",
			"top",
			"magnifique",
		},
		Validations: []string{
			"c'est exactement",
			"vous avez raison",
			"tout à fait",
			"effectivement",
		},
		Personalizations: []string{
			"pour nous",
			"pour mon couple",
			"pour ma famille",
			"avec ma femme",
			"avec mon mari",
			"avec mon copain",
			"avec ma copine",
		},
		Urgency: []string{
			"maintenant",
			"aujourd'hui",
			"tout de suite",
			"rapidement",
			"urgent",
			"ce soir",
		},
	}
}

// LoadSignalTables fetches the newest signal document from the store,
// falling back to the built-in defaults when none has been uploaded or
// the document is unreadable.
func LoadSignalTables(ctx context.Context, st store.Store) (*SignalTables, error) {
	doc, version, err := st.LoadSignalTables(ctx)
	if err != nil {
		return DefaultSignalTables(), err
	}

	var tables SignalTables
	if err := json.Unmarshal(doc, &tables); err != nil {
		return DefaultSignalTables(), fmt.Errorf("decode signal tables v%d: %w", version, err)
	}
	if tables.Version == 0 {
		tables.Version = version
	}
	return &tables, nil
}
