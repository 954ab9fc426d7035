package structuring

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// punctuationFolder maps typographic punctuation onto ASCII; NFKC leaves
// curly quotes and dashes alone, and the catalogs use ASCII spellings.
var punctuationFolder = strings.NewReplacer(
	"‘", "'",
	"’", "'",
	"“", `"`,
	"”", `"`,
	"–", "-",
	"—", "-",
)

// NormalizeText applies Unicode NFKC normalization, folds typographic
// punctuation, lowercases, and collapses runs of whitespace to single spaces.
func NormalizeText(text string) string {
	t := norm.NFKC.String(text)
	t = punctuationFolder.Replace(t)
	t = strings.ToLower(t)
	return strings.Join(strings.Fields(t), " ")
}

// extractTokens matches each catalog entry's keywords as substrings of the
// normalized text, suppressing matches negated within the preceding window.
// Output order is catalog declaration order.
func extractTokens(normalized string, catalog []CatalogEntry, window int) []string {
	var out []string
	for _, entry := range catalog {
		if matchesEntry(normalized, entry, window) {
			out = append(out, entry.Token)
		}
	}
	return out
}

func matchesEntry(text string, entry CatalogEntry, window int) bool {
	for _, kw := range entry.Keywords {
		if hasUnnegatedMatch(text, kw, window) {
			return true
		}
	}
	return false
}

// hasUnnegatedMatch reports whether kw occurs anywhere in text without a
// negation cue inside the preceding word window.
func hasUnnegatedMatch(text, kw string, window int) bool {
	from := 0
	for {
		idx := strings.Index(text[from:], kw)
		if idx < 0 {
			return false
		}
		idx += from
		if !negatedAt(text, idx, window) {
			return true
		}
		from = idx + len(kw)
		if from >= len(text) {
			return false
		}
	}
}

// negatedAt checks the window words immediately preceding position idx for a
// negation cue. The two-word cue "negative for" is checked as a phrase.
func negatedAt(text string, idx, window int) bool {
	preceding := strings.Fields(text[:idx])
	if len(preceding) > window {
		preceding = preceding[len(preceding)-window:]
	}
	tail := strings.Join(preceding, " ")
	for _, cue := range negationCues {
		if strings.Contains(cue, " ") {
			if strings.Contains(tail, cue) {
				return true
			}
			continue
		}
		for _, w := range preceding {
			if strings.Trim(w, ".,;:!?") == cue {
				return true
			}
		}
	}
	return false
}
