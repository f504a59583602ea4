// Package langdetect detects the language of recognized text.
package langdetect

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"
	_ "github.com/pemistahl/lingua-go/language-models/ar"
	_ "github.com/pemistahl/lingua-go/language-models/de"
	_ "github.com/pemistahl/lingua-go/language-models/en"
	_ "github.com/pemistahl/lingua-go/language-models/es"
	_ "github.com/pemistahl/lingua-go/language-models/fa"
	_ "github.com/pemistahl/lingua-go/language-models/fr"
	_ "github.com/pemistahl/lingua-go/language-models/tr"
	_ "github.com/pemistahl/lingua-go/language-models/ur"
)

// minRunes is the shortest text worth classifying; shorter signs such as
// "EXIT" or "خروج" are still detected, single letters are not.
const minRunes = 2

var languages = []lingua.Language{
	lingua.Arabic,
	lingua.English,
	lingua.French,
	lingua.German,
	lingua.Spanish,
	lingua.Turkish,
	lingua.Persian,
	lingua.Urdu,
}

var (
	once     sync.Once
	detector lingua.LanguageDetector
)

func get() lingua.LanguageDetector {
	once.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			Build()
	})
	return detector
}

// Detect returns the ISO 639-1 code and English name of the language of
// text, or empty strings if it cannot be told.
func Detect(text string) (code, name string) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minRunes {
		return "", ""
	}
	lang, ok := get().DetectLanguageOf(text)
	if !ok {
		return "", ""
	}
	return strings.ToLower(lang.IsoCode639_1().String()), lang.String()
}

// Locale returns a locale for text such as "en" or "ar", or "" if unknown.
// It is meant as the reading-mode locale hook of the session.
func Locale(text string) string {
	code, _ := Detect(text)
	return code
}
