package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/storage"
)

func TestSystemPrompt(t *testing.T) {
	tr := SystemPrompt(LanguageTurkish)
	assert.Contains(t, tr, "Answer in Turkish")
	assert.Contains(t, tr, FallbackMessage(LanguageTurkish))
	assert.NotContains(t, tr, "{{")

	en := SystemPrompt(LanguageEnglish)
	assert.Contains(t, en, "Answer in English")
	assert.Contains(t, en, FallbackMessage(LanguageEnglish))
}

func TestBuildContext(t *testing.T) {
	selection := []storage.Result{
		sheetResult("bom-1", "bom.xlsx", "BOM", 0.9, "SOURCE: bom.xlsx | SHEET: BOM | DATA: Brand: Jinko"),
		pageResult("sld-3", "sld.pdf", 3, 0.6, "MV cable 3x240 mm2"),
		result("notes", "", 0.1, "loose note"),
	}

	want := "[Source: bom.xlsx | Sheet: BOM]\nSOURCE: bom.xlsx | SHEET: BOM | DATA: Brand: Jinko" +
		"\n\n---\n\n" +
		"[Source: sld.pdf | Page 3]\nMV cable 3x240 mm2" +
		"\n\n---\n\n" +
		"[Source: Unknown Document]\nloose note"
	assert.Equal(t, want, BuildContext(selection))
	assert.Equal(t, "", BuildContext(nil))
}

func TestUserPrompt(t *testing.T) {
	got := UserPrompt("Panel markası nedir?", "[Source: bom.xlsx | Sheet: BOM]\nBrand: Jinko")
	assert.Equal(t,
		"QUESTION:\nPanel markası nedir?\n\nRELEVANT DOCUMENT EXCERPTS:\n[Source: bom.xlsx | Sheet: BOM]\nBrand: Jinko\n\nAnswer the question using ONLY the information above. Cite the source document.",
		got)
}
