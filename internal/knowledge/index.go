// Package knowledge ranks curated question/answer entries against
// customer queries, backed by a TTL-cached snapshot of the store's
// knowledge base.
package knowledge

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tekkistudio/sales-orchestrator/internal/model"
	"github.com/tekkistudio/sales-orchestrator/internal/store"
	"github.com/tekkistudio/sales-orchestrator/pkg/logger"
	"github.com/tekkistudio/sales-orchestrator/pkg/metrics"
)

// DefaultTTL is how long a cached snapshot is served before a lazy
// refresh is attempted.
const DefaultTTL = 5 * time.Minute

// Per-item score weights. An item's total is clamped to maxItemScore;
// items at or below minItemScore are discarded.
const (
	phraseInQueryWeight  = 1.5
	exactKeywordWeight   = 1.2
	partialKeywordWeight = 0.8
	phraseBonusWeight    = 0.7
	questionWordWeight   = 0.5
	answerWordWeight     = 0.3
	categoryHintWeight   = 0.3

	maxItemScore = 3.0
	minItemScore = 0.3
)

// snapshot is an immutable cached item set. Refresh races are
// tolerated: concurrent refreshers both recompute and the last write
// wins, which is safe because snapshots are read-only.
type snapshot struct {
	items    []model.KnowledgeItem
	loadedAt time.Time
}

// Index is the keyword-ranked knowledge retrieval index.
type Index struct {
	store  store.Store
	ttl    time.Duration
	logger *logger.Logger

	mu   sync.RWMutex
	snap *snapshot
}

// NewIndex creates an index over the given store. A ttl of zero uses
// DefaultTTL.
func NewIndex(st store.Store, ttl time.Duration, log *logger.Logger) *Index {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Index{store: st, ttl: ttl, logger: log}
}

// Search ranks knowledge items against the query, best first. The
// category hint is optional. Search never fails: on store errors it
// serves the previous snapshot, or the built-in defaults when the
// cache has never been populated.
func (ix *Index) Search(ctx context.Context, query, category string) []model.ScoredItem {
	items := ix.currentItems(ctx)
	words := tokenize(query)
	rawQuery := strings.ToLower(query)

	var results []model.ScoredItem
	for _, item := range items {
		score := scoreItem(item, rawQuery, words, category)
		if score <= minItemScore {
			continue
		}
		results = append(results, model.ScoredItem{Item: item, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Item.Priority > results[j].Item.Priority
	})

	if len(results) > 0 {
		metrics.KnowledgeHits.Inc()
	} else {
		metrics.KnowledgeMisses.Inc()
	}
	return results
}

// Refresh forces a reload from the store, bypassing the TTL.
func (ix *Index) Refresh(ctx context.Context) error {
	items, err := ix.store.LoadKnowledgeItems(ctx)
	if err != nil {
		return err
	}
	ix.mu.Lock()
	ix.snap = &snapshot{items: items, loadedAt: time.Now()}
	ix.mu.Unlock()
	return nil
}

// currentItems returns the freshest item set it can get without
// failing: fresh cache, lazily refreshed cache, stale cache, then
// built-in defaults, in that order.
func (ix *Index) currentItems(ctx context.Context) []model.KnowledgeItem {
	ix.mu.RLock()
	snap := ix.snap
	ix.mu.RUnlock()

	if snap != nil && time.Since(snap.loadedAt) < ix.ttl {
		return snap.items
	}

	if err := ix.Refresh(ctx); err != nil {
		ix.logger.Warn("knowledge refresh failed, serving degraded set", zap.Error(err))
		metrics.KnowledgeRefreshFailures.Inc()
		if snap != nil {
			return snap.items
		}
		return defaultItems()
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.snap.items
}

func scoreItem(item model.KnowledgeItem, rawQuery string, words []string, category string) float64 {
	score := 0.0

	for _, keyword := range item.TriggerKeywords {
		kw := strings.ToLower(keyword)

		// Whole-phrase containment of the keyword in the raw query.
		if strings.Contains(rawQuery, kw) {
			score += phraseInQueryWeight
		}

		for _, word := range words {
			switch {
			case word == kw:
				score += exactKeywordWeight
			case strings.Contains(kw, word) || strings.Contains(word, kw):
				score += partialKeywordWeight
			}
		}

		// Multi-word keywords that survive tokenization intact.
		if strings.Contains(kw, " ") && strings.Contains(rawQuery, kw) {
			score += phraseBonusWeight
		}
	}

	question := strings.ToLower(item.Question)
	answer := strings.ToLower(item.Answer)
	for _, word := range words {
		if strings.Contains(question, word) {
			score += questionWordWeight
		}
		if strings.Contains(answer, word) {
			score += answerWordWeight
		}
	}

	if category != "" && strings.EqualFold(category, item.Category) {
		score += categoryHintWeight
	}

	if score > maxItemScore {
		score = maxItemScore
	}
	return score
}

// tokenize splits a query into lowercase words of at least 3 runes.
func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !isWordRune(r)
	})
	var words []string
	for _, f := range fields {
		if len([]rune(f)) >= 3 {
			words = append(words, f)
		}
	}
	return words
}

func isWordRune(r rune) bool {
	return r == '\'' || r == '-' ||
		(r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 127
}

// ExpandAnswer substitutes the product placeholder in an answer
// template. Product naming is normalized to a canonical "le jeu {name}"
// phrasing so downstream text stays consistent no matter how the
// caller spelled the product.
func ExpandAnswer(answer, productName string) string {
	if !strings.Contains(answer, "{product}") {
		return answer
	}
	name := strings.TrimSpace(productName)
	if name == "" {
		return strings.ReplaceAll(answer, "{product}", "le jeu")
	}
	name = strings.TrimPrefix(strings.TrimPrefix(name, "le jeu "), "Le jeu ")
	return strings.ReplaceAll(answer, "{product}", "le jeu "+name)
}
