package retrieval

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/storage"
)

//go:embed intents.yaml
var defaultIntentsYAML []byte

// IntentTables is the declarative form of every query heuristic. New
// domain intents are added to the YAML document, not to code.
type IntentTables struct {
	QueryClasses  []QueryClassRule    `yaml:"query_classes"`
	DomainIntents []DomainIntentRule  `yaml:"domain_intents"`
	Domains       []DomainRule        `yaml:"domains"`
	EntityLookup  EntityLookupRule    `yaml:"entity_lookup"`
	Synonyms      map[string][]string `yaml:"synonyms"`
	ShortTokens   []string            `yaml:"short_tokens"`
	Countables    []CountableRule     `yaml:"countables"`
}

// QueryClassRule maps trigger terms to a query class and the chunk role it
// favours. The first matching rule wins.
type QueryClassRule struct {
	Name         QueryClass         `yaml:"name"`
	Terms        []string           `yaml:"terms"`
	Role         storage.OriginKind `yaml:"role"`
	Boost        float64            `yaml:"boost"`
	DocTypes     []storage.DocType  `yaml:"doc_types"`
	DocTypeBoost float64            `yaml:"doc_type_boost"`
}

// DomainIntentRule triggers lexical augmentation and document boosting.
type DomainIntentRule struct {
	Name               string       `yaml:"name"`
	Triggers           []string     `yaml:"triggers"`
	AugmentTerms       []string     `yaml:"augment_terms"`
	Domain             string       `yaml:"domain"`
	DocMatchBoost      float64      `yaml:"doc_match_boost"`
	DocMismatchPenalty float64      `yaml:"doc_mismatch_penalty"`
	Anchors            []AnchorRule `yaml:"anchors"`
}

// AnchorRule names a sub-category that should be represented in the
// selection when its domain intent fires.
type AnchorRule struct {
	Name  string   `yaml:"name"`
	Terms []string `yaml:"terms"`
}

// DomainRule classifies documents by name when metadata carries no domain.
type DomainRule struct {
	Name         string   `yaml:"name"`
	DocNameTerms []string `yaml:"doc_name_terms"`
}

// EntityLookupRule steers short proper-noun queries toward one domain.
type EntityLookupRule struct {
	Domain           string   `yaml:"domain"`
	MaxTokens        int      `yaml:"max_tokens"`
	Names            []string `yaml:"names"`
	EquipmentTerms   []string `yaml:"equipment_terms"`
	DomainBoost      float64  `yaml:"domain_boost"`
	EquipmentPenalty float64  `yaml:"equipment_penalty"`
}

// CountableRule enables deterministic counting for one entity.
type CountableRule struct {
	Name       string   `yaml:"name"`
	LabelEN    string   `yaml:"label_en"`
	LabelTR    string   `yaml:"label_tr"`
	Terms      []string `yaml:"terms"`
	CountTerms []string `yaml:"count_terms"`
	GroupTerms []string `yaml:"group_terms"`
	TotalTerms []string `yaml:"total_terms"`

	// QuantityKeys are field keys holding the count when the entity is
	// named in another field ("Equipment: Inverter, Qty: 27").
	QuantityKeys []string `yaml:"quantity_keys"`
}

// Intents is the compiled form of IntentTables.
type Intents struct {
	classes     []compiledClass
	domains     []compiledDomain
	intents     []compiledIntent
	entity      compiledEntity
	synonyms    map[string][]string
	shortTokens map[string]bool
	countables  []compiledCountable
}

type compiledClass struct {
	rule     QueryClassRule
	terms    termSet
	docTypes map[storage.DocType]bool
}

type compiledDomain struct {
	name     string
	docTerms termSet
}

type compiledIntent struct {
	rule     DomainIntentRule
	triggers termSet
	augment  termSet
	anchors  []compiledAnchor
}

type compiledAnchor struct {
	name  string
	terms termSet
}

type compiledEntity struct {
	rule      EntityLookupRule
	names     termSet
	equipment termSet
}

type compiledCountable struct {
	rule     CountableRule
	terms    termSet
	count    termSet
	group    termSet
	total    termSet
	quantity termSet
}

// ParseIntents decodes and compiles a YAML intent document.
func ParseIntents(data []byte) (*Intents, error) {
	var tables IntentTables
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("parse intent tables: %w", err)
	}
	return CompileIntents(tables)
}

// LoadIntents reads intent tables from path, or the built-in tables when
// path is empty.
func LoadIntents(path string) (*Intents, error) {
	if path == "" {
		return ParseIntents(defaultIntentsYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read intent tables: %w", err)
	}
	return ParseIntents(data)
}

// DefaultIntents returns the built-in intent tables.
func DefaultIntents() *Intents {
	in, err := ParseIntents(defaultIntentsYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in intent tables: %v", err))
	}
	return in
}

// CompileIntents validates tables and builds their matchers.
func CompileIntents(t IntentTables) (*Intents, error) {
	in := &Intents{
		synonyms:    make(map[string][]string, len(t.Synonyms)),
		shortTokens: make(map[string]bool, len(t.ShortTokens)),
	}

	for i, r := range t.QueryClasses {
		switch r.Name {
		case ClassDefinition, ClassReference, ClassIdentity, ClassTable:
		default:
			return nil, fmt.Errorf("query class %d: unknown class %q", i, r.Name)
		}
		if len(r.Terms) == 0 {
			return nil, fmt.Errorf("query class %s: no terms", r.Name)
		}
		if r.Boost < 0 || r.DocTypeBoost < 0 {
			return nil, fmt.Errorf("query class %s: negative boost", r.Name)
		}
		types := make(map[storage.DocType]bool, len(r.DocTypes))
		for _, dt := range r.DocTypes {
			types[dt] = true
		}
		in.classes = append(in.classes, compiledClass{rule: r, terms: newTermSet(r.Terms), docTypes: types})
	}

	for _, d := range t.Domains {
		if d.Name == "" {
			return nil, fmt.Errorf("domain without name")
		}
		in.domains = append(in.domains, compiledDomain{name: d.Name, docTerms: newTermSet(d.DocNameTerms)})
	}

	for _, r := range t.DomainIntents {
		if r.Name == "" || len(r.Triggers) == 0 {
			return nil, fmt.Errorf("domain intent %q: name and triggers are required", r.Name)
		}
		ci := compiledIntent{rule: r, triggers: newTermSet(r.Triggers), augment: newTermSet(r.AugmentTerms)}
		for _, a := range r.Anchors {
			ci.anchors = append(ci.anchors, compiledAnchor{name: a.Name, terms: newTermSet(a.Terms)})
		}
		in.intents = append(in.intents, ci)
	}

	in.entity = compiledEntity{
		rule:      t.EntityLookup,
		names:     newTermSet(t.EntityLookup.Names),
		equipment: newTermSet(t.EntityLookup.EquipmentTerms),
	}
	if in.entity.rule.MaxTokens <= 0 {
		in.entity.rule.MaxTokens = 2
	}

	for k, v := range t.Synonyms {
		in.synonyms[normalizeText(k)] = v
	}
	for _, s := range t.ShortTokens {
		in.shortTokens[normalizeText(s)] = true
	}

	for _, c := range t.Countables {
		if len(c.Terms) == 0 || len(c.CountTerms) == 0 {
			return nil, fmt.Errorf("countable %q: terms and count_terms are required", c.Name)
		}
		in.countables = append(in.countables, compiledCountable{
			rule:     c,
			terms:    newTermSet(c.Terms),
			count:    newTermSet(c.CountTerms),
			group:    newTermSet(c.GroupTerms),
			total:    newTermSet(c.TotalTerms),
			quantity: newTermSet(c.QuantityKeys),
		})
	}

	return in, nil
}

// DocumentDomain returns the domain of a result: metadata wins, then the
// first domain whose name terms occur in the document name.
func (in *Intents) DocumentDomain(meta storage.ChunkMetadata) string {
	if meta.Domain != "" {
		return strings.ToLower(meta.Domain)
	}
	name := normalizeText(meta.DocName)
	for _, d := range in.domains {
		if d.docTerms.Contains(name) {
			return d.name
		}
	}
	return ""
}

// matchIntents returns the domain intents triggered by normalized question text.
func (in *Intents) matchIntents(normalized string) []compiledIntent {
	var out []compiledIntent
	for _, ci := range in.intents {
		if ci.triggers.Match(normalized) {
			out = append(out, ci)
		}
	}
	return out
}
