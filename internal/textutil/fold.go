package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// letterReplacer handles letters that carry no combining mark to strip.
var letterReplacer = strings.NewReplacer(
	"æ", "ae",
	"œ", "oe",
	"ø", "o",
	"ß", "ss",
	"ł", "l",
	"đ", "d",
)

// Fold lower-cases text, strips diacritics, drops apostrophes, and turns every
// other non-alphanumeric run into a single space. Fold is idempotent.
func Fold(text string) string {
	if text == "" {
		return ""
	}
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripper, text)
	if err != nil {
		folded = text
	}
	folded = letterReplacer.Replace(strings.ToLower(folded))

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		switch {
		case r == '\'' || r == '’' || r == '`':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		default:
			pendingSpace = true
		}
	}
	return b.String()
}

// Tokenize folds text and splits it into words.
func Tokenize(text string) []string {
	return strings.Fields(Fold(text))
}
