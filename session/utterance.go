package session

import (
	"sort"
	"strings"

	"go.aimuz.me/basar/internal/types"
)

// utterance is what a result would say, and the key it is deduplicated by.
// An empty key means the result carries nothing to narrate.
type utterance struct {
	text string
	key  string
}

// deriveUtterance turns a perception result into narration text.
// Detection keys ignore object order; text keys ignore whitespace layout.
func deriveUtterance(res types.Result, locale string) utterance {
	switch res.Kind {
	case types.ResultDetection:
		captions := make([]string, 0, len(res.Objects))
		for _, o := range res.Objects {
			if c := strings.TrimSpace(o.Caption()); c != "" {
				captions = append(captions, c)
			}
		}
		// An empty set is shown, never spoken, even with a summary.
		if len(captions) == 0 {
			return utterance{}
		}

		text := normalizeSpace(res.Summary)
		if text == "" {
			text = strings.Join(captions, listSeparator(locale))
		}
		sorted := append([]string(nil), captions...)
		sort.Strings(sorted)
		return utterance{text: text, key: "objects\x00" + strings.Join(sorted, "\x1f")}

	default:
		text := normalizeSpace(res.Text)
		if text == "" {
			return utterance{}
		}
		return utterance{text: text, key: text}
	}
}

// statusText is the line shown on the status display for a result.
func statusText(res types.Result, noObjects string) string {
	switch res.Kind {
	case types.ResultDetection:
		if len(res.Objects) == 0 {
			if m := strings.TrimSpace(res.Message); m != "" {
				return m
			}
			if s := strings.TrimSpace(res.Summary); s != "" {
				return s
			}
			return noObjects
		}
		captions := make([]string, len(res.Objects))
		for i, o := range res.Objects {
			captions[i] = o.Caption()
		}
		return strings.Join(captions, ", ")
	default:
		if t := strings.TrimSpace(res.Text); t != "" {
			return t
		}
		return strings.TrimSpace(res.Message)
	}
}

// listSeparator joins spoken object lists; Arabic uses its own comma.
func listSeparator(locale string) string {
	if isArabic(locale) {
		return " ، "
	}
	return ", "
}

func isArabic(locale string) bool {
	l := strings.ToLower(locale)
	return l == "ar" || strings.HasPrefix(l, "ar-") || strings.HasPrefix(l, "ar_")
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
