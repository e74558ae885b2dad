package retrieval

import (
	"context"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/observability"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/storage"
)

// Augmenter appends chunks matched by substring for domain intents whose
// vocabulary diverges from the question (language switch, synonyms).
type Augmenter struct {
	store     storage.Store
	intents   *Intents
	logger    *observability.Logger
	scanLimit int
	score     float64
}

// NewAugmenter creates an augmenter. Appended chunks carry score.
func NewAugmenter(store storage.Store, intents *Intents, logger *observability.Logger, scanLimit int, score float64) *Augmenter {
	if intents == nil {
		intents = DefaultIntents()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if scanLimit <= 0 {
		scanLimit = 5000
	}
	return &Augmenter{
		store:     store,
		intents:   intents,
		logger:    logger.WithComponent("augmenter"),
		scanLimit: scanLimit,
		score:     score,
	}
}

// Augment returns results followed by any scanned chunk containing an
// augmentation term of a triggered intent. It never fails: scan errors and
// panics leave results unchanged.
func (a *Augmenter) Augment(ctx context.Context, results []storage.Result, question string, filter storage.Filter) (out []storage.Result) {
	out = results

	triggered := a.intents.matchIntents(normalizeText(question))
	var terms []termSet
	var names []string
	for _, ci := range triggered {
		if !ci.augment.empty() {
			terms = append(terms, ci.augment)
			names = append(names, ci.rule.Name)
		}
	}
	if len(terms) == 0 {
		return out
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn().Interface("panic", r).Msg("Augmentation aborted")
			out = results
		}
	}()

	scanned, err := a.store.Scan(ctx, a.scanLimit, filter)
	if err != nil {
		a.logger.Warn().Err(err).Strs("intents", names).Msg("Augmentation scan failed")
		return results
	}

	seen := make(map[string]bool, len(results))
	for _, r := range results {
		seen[r.ID] = true
	}

	augmented := make([]storage.Result, len(results), len(results)+8)
	copy(augmented, results)
	added := 0
	for _, r := range scanned {
		if seen[r.ID] {
			continue
		}
		text := normalizeText(r.Text)
		for _, ts := range terms {
			if ts.Contains(text) {
				augmented = append(augmented, r.WithScore(a.score))
				seen[r.ID] = true
				added++
				break
			}
		}
	}

	a.logger.Debug().
		Strs("intents", names).
		Int("scanned", len(scanned)).
		Int("added", added).
		Msg("Lexical augmentation complete")

	return augmented
}
