package conversation

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Labels is the enumerated set of button labels a step expects.
//
// Matching is tolerant: an input matches a label when, after case and accent
// folding and collapsing whitespace, the input contains the label. Providers sometimes
// strip emoji or add text around the button title, so the emoji-free form of
// each label is accepted as well. When several labels match, the longest wins
// so that "No acepto" is not read as "Acepto".
type Labels []string

// Match returns the label the input selects.
func (l Labels) Match(input string) (string, bool) {
	in := normalize(input)
	if in == "" {
		return "", false
	}

	best, bestLen := "", 0
	for _, label := range l {
		for _, candidate := range []string{normalize(label), normalize(stripSymbols(label))} {
			if candidate == "" || !strings.Contains(in, candidate) {
				continue
			}
			if len(candidate) > bestLen {
				best, bestLen = label, len(candidate)
			}
		}
	}

	return best, best != ""
}

// Contains reports whether the input selects the given label.
func (l Labels) Contains(input, label string) bool {
	got, ok := l.Match(input)
	return ok && got == label
}

func normalize(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

func stripSymbols(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || unicode.IsPunct(r) {
			return r
		}
		return -1
	}, s)
}
