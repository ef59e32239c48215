package textutil

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// All ratios are in [0,1]; empty input never matches.

// Ratio is the sequence-matcher similarity 2*M/T over the runes of a and b.
func Ratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	return sequenceRatio(runeElements(a), runeElements(b))
}

// PartialRatio scores the best alignment of the shorter string inside the
// longer one, so "caymus" against "caymus cabernet sauvignon" scores 1.
func PartialRatio(a, b string) float64 {
	short, long := runeElements(a), runeElements(b)
	if len(short) == 0 || len(long) == 0 {
		return 0
	}
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == len(long) {
		return sequenceRatio(short, long)
	}

	matcher := difflib.NewMatcherWithJunk(short, long, false, nil)
	best := 0.0
	for _, block := range matcher.GetMatchingBlocks() {
		start := block.B - block.A
		if start < 0 {
			start = 0
		}
		end := start + len(short)
		if end > len(long) {
			end = len(long)
			start = end - len(short)
		}
		if score := sequenceRatio(short, long[start:end]); score > best {
			best = score
		}
		if best > 0.995 {
			return 1
		}
	}
	return best
}

// TokenSortRatio compares the words of a and b after sorting them, so word
// order on the label does not matter.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortedTokens(a), sortedTokens(b))
}

func sortedTokens(text string) string {
	tokens := strings.Fields(text)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func sequenceRatio(a, b []string) float64 {
	return difflib.NewMatcherWithJunk(a, b, false, nil).Ratio()
}

func runeElements(text string) []string {
	out := make([]string, 0, len(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}
