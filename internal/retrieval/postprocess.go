package retrieval

import (
	"regexp"
	"strings"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/storage"
)

// maxFallbackDocs bounds the document list disclosed on a fallback answer.
const maxFallbackDocs = 5

var (
	citationPattern = regexp.MustCompile(`(?i)\[\s*(?:source|sources|kaynak|kaynaklar)\s*\d*\s*:\s*([^\]]*)\]`)

	fallbackPhrases = []string{
		"cannot find this information",
		"can't find this information",
		"could not find this information",
		"couldn't find this information",
		"unable to find this information",
		"not found in the provided",
		"not available in the provided",
		"no information about this",
		"the provided documents do not contain",
		"the documents do not contain",
		"bu bilgiyi mevcut",
		"bulamıyorum",
		"bulamadım",
		"bilgi bulunmamaktadır",
		"bilgi bulunamadı",
		"belgelerde yer almıyor",
	}
)

// Answer is the final answer text with its source, nil when none applies.
type Answer struct {
	Text     string
	Source   *string
	Fallback bool
}

// PostProcessor normalizes model output and enforces the citation contract.
// Process is idempotent: feeding its output back yields the same Answer.
type PostProcessor struct{}

// NewPostProcessor returns a PostProcessor.
func NewPostProcessor() *PostProcessor { return &PostProcessor{} }

// IsFallback reports whether text is a refusal in either language.
func IsFallback(text string) bool {
	lower := normalizeText(text)
	for _, p := range fallbackPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Process applies, in order: fallback normalization, primary source from
// the first selected chunk, preference for a document the answer cites,
// document disclosure on fallback and a citation suffix when missing.
func (p *PostProcessor) Process(raw string, lang Language, selection []storage.Result) Answer {
	text := strings.TrimSpace(raw)

	if IsFallback(text) {
		text = FallbackMessage(lang)
		docs := distinctDocNames(selection, maxFallbackDocs)
		if len(docs) == 0 {
			return Answer{Text: text, Fallback: true}
		}
		list := strings.Join(docs, ", ")
		return Answer{
			Text:     text + " " + citation(lang, list),
			Source:   &list,
			Fallback: true,
		}
	}

	var source string
	if len(selection) > 0 {
		source = selection[0].Source()
	}

	cited, hasCitation := citedDocument(text, selection)
	if hasCitation && cited != "" && !strings.EqualFold(cited, primaryDocName(selection)) {
		source = cited
		for _, r := range selection {
			if strings.EqualFold(r.Metadata.DocName, cited) {
				source = r.Source()
				break
			}
		}
	}

	if source == "" {
		return Answer{Text: text}
	}
	if !hasCitation {
		text = text + " " + citation(lang, source)
	}
	return Answer{Text: text, Source: &source}
}

// HasCitation reports whether text carries a [Source: ...] or [Kaynak: ...]
// bracket.
func HasCitation(text string) bool {
	return citationPattern.MatchString(text)
}

func citation(lang Language, source string) string {
	if lang == LanguageTurkish {
		return "[Kaynak: " + source + "]"
	}
	return "[Source: " + source + "]"
}

// citedDocument returns the document named by the first citation bracket,
// stripped of any "| Page" or " (Sheet: ...)" location. A comma ends the
// name only when the longer name is not one of the selected documents, so
// "Layout, Rev 2.pdf" survives while "a.pdf, b.pdf" yields "a.pdf".
func citedDocument(text string, selection []storage.Result) (string, bool) {
	m := citationPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	name := m[1]
	if i := strings.Index(name, "|"); i >= 0 {
		name = name[:i]
	}
	if i := strings.Index(name, " ("); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSpace(name)
	if selectedDoc(selection, name) {
		return name, true
	}
	if i := strings.Index(name, ","); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name), true
}

func selectedDoc(selection []storage.Result, name string) bool {
	for _, r := range selection {
		if strings.EqualFold(r.Metadata.DocName, name) {
			return true
		}
	}
	return false
}

func primaryDocName(selection []storage.Result) string {
	if len(selection) == 0 {
		return ""
	}
	return selection[0].Metadata.DocName
}

func distinctDocNames(selection []storage.Result, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range selection {
		name := r.Metadata.DocName
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
		if len(out) == limit {
			break
		}
	}
	return out
}
