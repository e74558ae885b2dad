package retrieval

import (
	"regexp"
	"strings"
)

// Language is a supported answer language.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageTurkish Language = "tr"
)

// Name returns the English name used in prompts.
func (l Language) Name() string {
	if l == LanguageTurkish {
		return "Turkish"
	}
	return "English"
}

var (
	turkishChars = regexp.MustCompile(`[şŞğĞüÜçÇöÖıİ]`)
	wordPattern  = regexp.MustCompile(`[\p{L}\p{N}_]+`)

	turkishQuestionPatterns = []*regexp.Regexp{
		boundaryPattern(`ne kadar|kaç tane|kac tane|kac|toplam ne|toplam kac|hangi|nedir`),
		boundaryPattern(`yapıldı|yapılmış|tamamlandı|bitti`),
		boundaryPattern(`taşeron|işçi|metre|gün`),
	}
)

var turkishWords = toSet([]string{
	"ve", "veya", "için", "ile", "bu", "bir", "olan", "olarak",
	"da", "de", "mi", "mı", "ne", "nasıl", "neden", "kaç", "toplam",
	"tarafından", "göre", "arasında", "üzerinde", "altında", "sonra",
	"önce", "şu", "hangi", "kadar", "değil", "var", "yok", "evet",
	"hayır", "lütfen", "teşekkür", "merhaba", "günaydın", "iyi",
	"kötü", "büyük", "küçük", "çok", "az", "hepsi", "hiç", "bazı",
})

// DetectLanguage classifies text as Turkish or English. Turkish wins on any
// Turkish-specific letter, on two distinct common Turkish words, or on a
// Turkish question pattern; everything else is English.
func DetectLanguage(text string) Language {
	if strings.TrimSpace(text) == "" {
		return LanguageEnglish
	}
	if turkishChars.MatchString(text) {
		return LanguageTurkish
	}

	lower := normalizeText(text)

	seen := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(lower, -1) {
		if turkishWords[w] {
			seen[w] = true
		}
	}
	if len(seen) >= 2 {
		return LanguageTurkish
	}

	for _, p := range turkishQuestionPatterns {
		if p.MatchString(lower) {
			return LanguageTurkish
		}
	}
	return LanguageEnglish
}

const (
	fallbackEnglish = "I cannot find this information in the provided records/documents."
	fallbackTurkish = "Bu bilgiyi mevcut kayıtlarda/belgelerde bulamıyorum."
)

// FallbackMessage returns the canonical "not found" sentence for lang.
func FallbackMessage(lang Language) string {
	if lang == LanguageTurkish {
		return fallbackTurkish
	}
	return fallbackEnglish
}
