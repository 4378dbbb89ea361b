package discovery

import (
	"strings"
	"unicode"

	"github.com/gobuffalo/flect"
)

// maxAbbrLength caps the length of generated kind abbreviations.
const maxAbbrLength = 4

// AbbrFunc maps a resource kind to a short display abbreviation.
type AbbrFunc func(kind string) string

// KindToAbbr returns the upper-case letters of kind (e.g. "DeploymentConfig" -> "DC"),
// falling back to the upper-cased kind when it has none, truncated to four characters.
func KindToAbbr(kind string) string {
	var b strings.Builder
	for _, r := range kind {
		if unicode.IsUpper(r) {
			b.WriteRune(r)
		}
	}
	abbr := b.String()
	if abbr == "" {
		abbr = strings.ToUpper(kind)
	}
	if runes := []rune(abbr); len(runes) > maxAbbrLength {
		abbr = string(runes[:maxAbbrLength])
	}
	return abbr
}

// PluralizeKind returns the plural display label of a resource kind.
// The kind is split into words first so that only the last word of a compound kind
// is pluralized ("NetworkPolicy" -> "NetworkPolicies"); the words are joined again
// without separators. All-caps kinds get a lower-case suffix ("DB" -> "DBs", "DNS" -> "DNSes").
func PluralizeKind(kind string) string {
	words := startCaseWords(kind)
	if len(words) == 0 {
		return kind
	}
	last := len(words) - 1
	words[last] = pluralizeWord(words[last])
	pluralized := strings.Join(words, "")

	if pluralized == kind+"S" {
		return kind + "s"
	}
	return pluralized
}

// pluralizeWord pluralizes a single word. flect keeps the case pattern of the input,
// including all-caps acronyms ("DNS" -> "DNSes"), so the word is passed unchanged.
func pluralizeWord(word string) string {
	return flect.Pluralize(word)
}

// startCaseWords splits s into words on case changes, acronym boundaries, digit runs and
// non-alphanumeric separators. Every word starts with an upper-case letter.
func startCaseWords(s string) []string {
	runes := []rune(s)
	var words []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			words = append(words, upperFirst(string(current)))
			current = current[:0]
		}
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(current) > 0 && isWordBoundary(runes, i) {
			flush()
		}
		current = append(current, r)
	}
	flush()
	return words
}

// isWordBoundary reports whether a new word starts at runes[i].
func isWordBoundary(runes []rune, i int) bool {
	prev, cur := runes[i-1], runes[i]
	switch {
	case unicode.IsDigit(prev) != unicode.IsDigit(cur):
		return true
	case unicode.IsLower(prev) && unicode.IsUpper(cur):
		return true
	case unicode.IsUpper(prev) && unicode.IsUpper(cur):
		// "HTTPRoute": the R starts a new word because it is followed by a lower-case letter.
		return i+1 < len(runes) && unicode.IsLower(runes[i+1])
	default:
		return false
	}
}

func upperFirst(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
