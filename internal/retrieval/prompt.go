package retrieval

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/storage"
)

//go:embed system_prompt.txt
var systemPromptTemplate string

// SystemPrompt returns the system prompt for lang.
func SystemPrompt(lang Language) string {
	r := strings.NewReplacer(
		"{{LANGUAGE}}", lang.Name(),
		"{{FALLBACK_MESSAGE}}", FallbackMessage(lang),
	)
	return r.Replace(systemPromptTemplate)
}

// BuildContext renders selected chunks as source-tagged excerpt blocks.
func BuildContext(selection []storage.Result) string {
	blocks := make([]string, len(selection))
	for i, r := range selection {
		name := r.Metadata.DocName
		if name == "" {
			name = "Unknown Document"
		}
		if loc := r.Metadata.Location(); loc != "" {
			name += " | " + loc
		}
		blocks[i] = fmt.Sprintf("[Source: %s]\n%s", name, r.Text)
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

// UserPrompt combines the question with the excerpt context.
func UserPrompt(question, context string) string {
	return "QUESTION:\n" + question +
		"\n\nRELEVANT DOCUMENT EXCERPTS:\n" + context +
		"\n\nAnswer the question using ONLY the information above. Cite the source document."
}
