package retrieval

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/config"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/observability"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/storage"
)

// Selector picks the bounded, deduplicated set of chunks sent to the model.
// The ranking is heuristic: keyword hits are preferred over raw score so
// that the one row holding a total is not crowded out by near duplicates.
type Selector struct {
	intents    *Intents
	classifier *Classifier
	weights    config.WeightsConfig
	logger     *observability.Logger
}

// NewSelector creates a selector over in, or the built-in tables when nil.
func NewSelector(in *Intents, weights config.WeightsConfig, logger *observability.Logger) *Selector {
	if in == nil {
		in = DefaultIntents()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Selector{
		intents:    in,
		classifier: NewClassifier(in),
		weights:    weights,
		logger:     logger.WithComponent("selector"),
	}
}

type keywordMatcher struct {
	term string
	re   *regexp.Regexp
}

func (k keywordMatcher) match(normalized string) bool {
	if k.re != nil {
		return k.re.MatchString(normalized)
	}
	return strings.Contains(normalized, k.term)
}

type scoredResult struct {
	result storage.Result
	text   string
	key    float64
	hits   int
}

// EffectiveKeywords returns the extracted keywords, the question's raw
// tokens (short ones only when allowlisted) and their synonym expansions.
func (s *Selector) EffectiveKeywords(qc QueryContext) []string {
	keywords := append([]string(nil), qc.Keywords...)
	if qc.Keywords == nil {
		keywords = ExtractKeywords(qc.Question)
	}

	for _, tok := range rawTokens(qc.Question) {
		if stopWords[tok] || turkishWords[tok] {
			continue
		}
		if utf8.RuneCountInString(tok) > 2 || s.intents.shortTokens[tok] {
			keywords = append(keywords, tok)
		}
		for _, syn := range s.intents.synonyms[tok] {
			keywords = append(keywords, normalizeText(syn))
		}
	}
	return dedupe(keywords)
}

// Select returns at most maxChunks candidates: anchor chunks for triggered
// sub-categories first, then up to preferred keyword-hit chunks, then the
// best remaining chunks by boosted score. Without keywords it returns the
// first maxChunks candidates unchanged.
func (s *Selector) Select(qc QueryContext, candidates []storage.Result, maxChunks, preferred int) []storage.Result {
	if len(candidates) == 0 {
		return []storage.Result{}
	}
	if maxChunks <= 0 || maxChunks > len(candidates) {
		maxChunks = len(candidates)
	}

	keywords := s.EffectiveKeywords(qc)
	if len(keywords) == 0 {
		out := make([]storage.Result, maxChunks)
		copy(out, candidates[:maxChunks])
		return out
	}

	matchers := make([]keywordMatcher, len(keywords))
	for i, k := range keywords {
		matchers[i] = keywordMatcher{term: k}
		if utf8.RuneCountInString(k) <= 2 && k != "%" {
			matchers[i].re = boundaryPattern(regexp.QuoteMeta(k))
		}
	}

	normalized := qc.normalized
	if normalized == "" {
		normalized = normalizeText(qc.Question)
	}
	intents := qc.intents
	if intents == nil {
		intents = s.intents.matchIntents(normalized)
	}

	pool := s.entityPool(qc, candidates)
	scored := s.score(qc, pool, matchers, intents)

	selected := make([]storage.Result, 0, maxChunks)
	seen := make(map[string]bool, maxChunks)
	add := func(sc scoredResult) bool {
		if seen[sc.result.ID] || len(selected) >= maxChunks {
			return false
		}
		seen[sc.result.ID] = true
		selected = append(selected, sc.result)
		return true
	}

	anchors := 0
	for _, ci := range intents {
		for _, anchor := range ci.anchors {
			for _, sc := range scored {
				if anchor.terms.Contains(sc.text) {
					if add(sc) {
						anchors++
					}
					break
				}
			}
		}
	}

	keywordPicks := 0
	for _, sc := range scored {
		if keywordPicks >= preferred {
			break
		}
		if sc.hits > 0 && add(sc) {
			keywordPicks++
		}
	}

	for _, sc := range scored {
		if len(selected) >= maxChunks {
			break
		}
		add(sc)
	}

	scores := make([]float64, len(selected))
	for i, r := range selected {
		scores[i] = r.Score
	}
	s.logger.Debug().
		Str("class", string(qc.Class)).
		Bool("entity_lookup", qc.EntityLookup).
		Strs("keywords", keywords).
		Int("candidates", len(candidates)).
		Int("pool", len(pool)).
		Int("anchors", anchors).
		Int("keyword_picks", keywordPicks).
		Int("selected", len(selected)).
		Floats64("scores", scores).
		Msg("Chunk selection complete")

	return selected
}

// entityPool narrows entity lookups to documents of the entity domain when
// any are present.
func (s *Selector) entityPool(qc QueryContext, candidates []storage.Result) []storage.Result {
	domain := s.intents.entity.rule.Domain
	if !qc.EntityLookup || domain == "" {
		return candidates
	}
	var subset []storage.Result
	for _, r := range candidates {
		if s.intents.DocumentDomain(r.Metadata) == domain {
			subset = append(subset, r)
		}
	}
	if len(subset) == 0 {
		return candidates
	}
	return subset
}

func (s *Selector) score(qc QueryContext, pool []storage.Result, matchers []keywordMatcher, intents []compiledIntent) []scoredResult {
	rule, hasRule := s.classifier.classRule(qc.Class)
	entity := s.intents.entity

	scored := make([]scoredResult, len(pool))
	for i, r := range pool {
		sc := scoredResult{result: r, text: normalizeText(r.Text), key: r.Score}

		for _, m := range matchers {
			if m.match(sc.text) {
				sc.hits++
			}
		}
		sc.key += s.weights.KeywordHit * float64(sc.hits) / float64(len(matchers))

		if hasRule {
			if rule.rule.Role != "" && r.Kind() == rule.rule.Role {
				if rule.rule.Boost > 0 {
					sc.key += rule.rule.Boost
				} else {
					sc.key += s.weights.RoleMatch
				}
			}
			if rule.docTypes[r.Metadata.DocType] {
				sc.key += rule.rule.DocTypeBoost
			}
		}

		domain := s.intents.DocumentDomain(r.Metadata)
		for _, ci := range intents {
			if ci.rule.Domain == "" {
				continue
			}
			if domain == ci.rule.Domain {
				sc.key += ci.rule.DocMatchBoost
			} else {
				sc.key -= ci.rule.DocMismatchPenalty
			}
		}

		if qc.EntityLookup {
			if entity.rule.Domain != "" && domain == entity.rule.Domain {
				sc.key += entity.rule.DomainBoost
			}
			if entity.equipment.Match(sc.text) {
				sc.key -= entity.rule.EquipmentPenalty
			}
		}

		scored[i] = sc
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].key > scored[j].key })
	return scored
}
