package textutil

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// PhoneticOverlap returns the fraction of query words whose Double Metaphone
// code (primary or alternate) matches a code of some candidate word. Words
// shorter than three letters or containing digits are ignored because their
// codes collide too often to mean anything.
func PhoneticOverlap(query, candidate string) float64 {
	queryWords := phoneticWords(query)
	if len(queryWords) == 0 {
		return 0
	}
	codes := make(map[string]struct{})
	for _, word := range phoneticWords(candidate) {
		for _, code := range metaphone(word) {
			codes[code] = struct{}{}
		}
	}
	if len(codes) == 0 {
		return 0
	}
	matched := 0
	for _, word := range queryWords {
		for _, code := range metaphone(word) {
			if _, ok := codes[code]; ok {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(queryWords))
}

func metaphone(word string) []string {
	primary, alternate := matchr.DoubleMetaphone(strings.ToUpper(word))
	codes := make([]string, 0, 2)
	if primary != "" {
		codes = append(codes, primary)
	}
	if alternate != "" && alternate != primary {
		codes = append(codes, alternate)
	}
	return codes
}

func phoneticWords(text string) []string {
	fields := strings.Fields(text)
	words := fields[:0]
	for _, field := range fields {
		if len([]rune(field)) < 3 {
			continue
		}
		if strings.IndexFunc(field, func(r rune) bool { return !unicode.IsLetter(r) }) >= 0 {
			continue
		}
		words = append(words, field)
	}
	return words
}
