package speech

import (
	"strings"

	"golang.org/x/text/language"
)

// SelectVoice returns the voice that best fits locale.
//
// An exact or substring match on the voice locale or name wins. Otherwise
// the language matcher picks the closest voice of the same base language,
// e.g. "ar-EG" for "ar-SA". It reports false when no voice fits, and the
// engine default should be used.
func SelectVoice(voices []Voice, locale string) (Voice, bool) {
	if len(voices) == 0 || locale == "" {
		return Voice{}, false
	}

	want := strings.ToLower(strings.ReplaceAll(locale, "_", "-"))
	for _, v := range voices {
		if strings.ToLower(strings.ReplaceAll(v.Locale, "_", "-")) == want {
			return v, true
		}
	}
	for _, v := range voices {
		vl := strings.ToLower(strings.ReplaceAll(v.Locale, "_", "-"))
		if vl != "" && strings.Contains(vl, want) {
			return v, true
		}
		// Bare language codes are too short to match names reliably.
		if len(want) > 3 && strings.Contains(strings.ToLower(v.Name), want) {
			return v, true
		}
	}

	tag, err := language.Parse(want)
	if err != nil {
		return Voice{}, false
	}
	wantBase, _ := tag.Base()

	tags := make([]language.Tag, 0, len(voices))
	index := make([]int, 0, len(voices))
	for i, v := range voices {
		t, err := language.Parse(v.Locale)
		if err != nil {
			continue
		}
		tags = append(tags, t)
		index = append(index, i)
	}
	if len(tags) == 0 {
		return Voice{}, false
	}

	_, i, conf := language.NewMatcher(tags).Match(tag)
	if conf == language.No {
		return Voice{}, false
	}
	// The matcher may offer a related language; only accept the same one.
	got, _ := tags[i].Base()
	if got != wantBase {
		return Voice{}, false
	}
	return voices[index[i]], true
}

// LanguageToLocale expands a bare language code to a common locale.
func LanguageToLocale(lang string) string {
	if lang == "" || lang == "auto" {
		return "ar-SA"
	}

	locales := map[string]string{
		"ar": "ar-SA",
		"en": "en-US",
		"fr": "fr-FR",
		"de": "de-DE",
		"es": "es-ES",
		"it": "it-IT",
		"pt": "pt-BR",
		"ru": "ru-RU",
		"tr": "tr-TR",
		"zh": "zh-CN",
		"ja": "ja-JP",
		"ko": "ko-KR",
	}
	if locale, ok := locales[strings.ToLower(lang)]; ok {
		return locale
	}
	if strings.Contains(lang, "-") || strings.Contains(lang, "_") {
		return lang
	}
	return lang + "-" + strings.ToUpper(lang)
}
