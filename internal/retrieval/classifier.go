package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// QueryClass is the coarse intent of a question.
type QueryClass string

const (
	ClassNormal     QueryClass = "normal"
	ClassDefinition QueryClass = "definition"
	ClassReference  QueryClass = "reference"
	ClassIdentity   QueryClass = "identity"
	ClassTable      QueryClass = "table"
)

// QueryContext carries everything derived from the question once per request.
type QueryContext struct {
	Question     string
	Language     Language
	Keywords     []string
	Class        QueryClass
	EntityLookup bool

	normalized string
	intents    []compiledIntent
}

// DomainIntents returns the names of the domain intents the question triggers.
func (qc QueryContext) DomainIntents() []string {
	names := make([]string, len(qc.intents))
	for i, ci := range qc.intents {
		names[i] = ci.rule.Name
	}
	return names
}

// Classifier derives a QueryContext from a question using the intent tables.
type Classifier struct {
	intents *Intents
}

// NewClassifier returns a classifier over in, or the built-in tables when nil.
func NewClassifier(in *Intents) *Classifier {
	if in == nil {
		in = DefaultIntents()
	}
	return &Classifier{intents: in}
}

// Analyze builds the query context for question.
func (c *Classifier) Analyze(question string) QueryContext {
	normalized := normalizeText(question)
	return QueryContext{
		Question:     question,
		Language:     DetectLanguage(question),
		Keywords:     dedupe(ExtractKeywords(question)),
		Class:        c.classify(normalized),
		EntityLookup: c.IsEntityLookup(question),
		normalized:   normalized,
		intents:      c.intents.matchIntents(normalized),
	}
}

// Classify returns the first query class whose terms occur in question.
func (c *Classifier) Classify(question string) QueryClass {
	return c.classify(normalizeText(question))
}

func (c *Classifier) classify(normalized string) QueryClass {
	for _, cl := range c.intents.classes {
		if cl.terms.Match(normalized) {
			return cl.rule.Name
		}
	}
	return ClassNormal
}

// IsEntityLookup reports whether question is a short, digit-free query
// naming a proper noun, such as "Tyler?".
func (c *Classifier) IsEntityLookup(question string) bool {
	words := wordPattern.FindAllString(question, -1)
	if len(words) == 0 || len(words) > c.intents.entity.rule.MaxTokens {
		return false
	}
	if strings.IndexFunc(question, unicode.IsDigit) >= 0 {
		return false
	}
	normalized := normalizeText(question)
	if c.intents.entity.names.Match(normalized) {
		return true
	}
	// Capitalised equipment names ("Jinko?") belong to the technical documents.
	if c.intents.entity.equipment.Match(normalized) {
		return false
	}
	for _, w := range words {
		if r, _ := utf8.DecodeRuneInString(w); unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

// classRule returns the compiled rule for class, if any.
func (c *Classifier) classRule(class QueryClass) (compiledClass, bool) {
	for _, cl := range c.intents.classes {
		if cl.rule.Name == class {
			return cl, true
		}
	}
	return compiledClass{}, false
}
