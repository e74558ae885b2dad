package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Language
	}{
		{"turkish letters", "Panel markası nedir?", LanguageTurkish},
		{"dotted capital", "İNVERTER SAYISI", LanguageTurkish},
		{"two common words", "toplam kac inverter var", LanguageTurkish},
		{"question pattern", "panel kac adet", LanguageTurkish},
		{"single common word", "ne", LanguageEnglish},
		{"english", "What is the panel brand?", LanguageEnglish},
		{"english count", "How many inverters are there?", LanguageEnglish},
		{"empty", "   ", LanguageEnglish},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectLanguage(tc.text))
		})
	}
}

func TestFallbackMessage(t *testing.T) {
	assert.Equal(t, "I cannot find this information in the provided records/documents.", FallbackMessage(LanguageEnglish))
	assert.Equal(t, "Bu bilgiyi mevcut kayıtlarda/belgelerde bulamıyorum.", FallbackMessage(LanguageTurkish))
	assert.Equal(t, FallbackMessage(LanguageEnglish), FallbackMessage("de"))
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "Turkish", LanguageTurkish.Name())
	assert.Equal(t, "English", LanguageEnglish.Name())
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"stopwords and short words", "What is the total DC cable length in mm2?", []string{"total", "cable", "length", "mm2"}},
		{"non ascii words skipped", "Panel markası nedir?", []string{"panel", "nedir"}},
		{"case folded", "INVERTER Substation", []string{"inverter", "substation"}},
		{"nothing left", "Is it?", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractKeywords(tc.text))
		})
	}
}

func TestRawTokens(t *testing.T) {
	assert.Equal(t, []string{"kesit", "4", "mm2", "%"}, rawTokens("Kesit 4 mm2 %"))
	assert.Equal(t, []string{"a", "b", "a"}, rawTokens("a b a"))
	assert.Equal(t, []string{"a", "b"}, dedupe(rawTokens("a b a")))
}

func TestTermSet(t *testing.T) {
	ts := newTermSet([]string{"bat box*", "Kablo", " "})

	assert.True(t, ts.Match("where are the bat boxes"))
	assert.True(t, ts.Match("kablo kesiti"))
	assert.False(t, ts.Match("kablolar"))
	assert.True(t, ts.Contains("kablolar"))
	assert.False(t, ts.Match("combat boxes"))
	assert.True(t, newTermSet(nil).empty())
	assert.False(t, newTermSet(nil).Match("anything"))
}

func TestBoundaryPatternUnicode(t *testing.T) {
	re := boundaryPattern("kaç")
	assert.True(t, re.MatchString("panel kaç adet"))
	assert.True(t, re.MatchString("kaç"))
	assert.False(t, re.MatchString("kaçak"))
}
