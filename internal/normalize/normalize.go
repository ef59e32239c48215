package normalize

import (
	"regexp"
	"sort"
	"strings"

	"winescan/internal/textutil"
)

// Step names one stage of the normalization pipeline.
type Step string

const (
	StepVintage  Step = "vintage"
	StepVolume   Step = "volume"
	StepABV      Step = "abv"
	StepPrice    Step = "price"
	StepStopword Step = "stopword"
)

var (
	vintagePattern = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	volumePattern  = regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)?\s*(?:ml|cl|l|ltr|litres?|liters?|oz)\b`)
	abvPattern     = regexp.MustCompile(`(?i)\b\d{1,2}(?:[.,]\d+)?\s*%(?:\s*(?:abv|alc|vol)\b)?`)
	// Prices may group thousands with a comma, dot, or space: $1,299.99, € 1.299,00.
	pricePattern   = regexp.MustCompile(`[$€£]\s*` + priceAmount + `|\b` + priceAmount + `\s*[$€£]`)
)

const priceAmount = `(?:\d{1,3}(?:[,. ]\d{3})+|\d+)(?:[.,]\d{1,2})?`

// maxPasses bounds the fixed-point loop; real label text settles in two.
const maxPasses = 4

// Removal records one span a step stripped from the text.
type Removal struct {
	Step  Step   `json:"step"`
	Value string `json:"value"`
}

// Query is the cleaned search string for one bottle. It is never mutated after
// Normalize returns.
type Query struct {
	Raw     string
	Text    string
	Removed []Removal
}

// Empty reports whether nothing searchable survived normalization.
func (q Query) Empty() bool {
	return q.Text == ""
}

// Normalizer strips vintages, volumes, alcohol percentages, prices, and a
// configured stop list from raw label text.
type Normalizer struct {
	stopPattern *regexp.Regexp
}

// New builds a normalizer for the given stop words and phrases. Matching is
// case-insensitive and whole-word; longer phrases win over their prefixes.
func New(stopWords []string) *Normalizer {
	phrases := make([]string, 0, len(stopWords))
	for _, word := range stopWords {
		fields := strings.Fields(strings.ToLower(word))
		if len(fields) == 0 {
			continue
		}
		quoted := make([]string, len(fields))
		for i, field := range fields {
			quoted[i] = regexp.QuoteMeta(field)
		}
		phrases = append(phrases, strings.Join(quoted, `\s+`))
	}
	n := &Normalizer{}
	if len(phrases) == 0 {
		return n
	}
	sort.SliceStable(phrases, func(i, j int) bool { return len(phrases[i]) > len(phrases[j]) })
	n.stopPattern = regexp.MustCompile(`(?i)\b(?:` + strings.Join(phrases, "|") + `)\b`)
	return n
}

// Normalize runs the pipeline until its output stops changing, so feeding the
// result back in is a no-op. Empty output is valid and means "no query".
func (n *Normalizer) Normalize(raw string) Query {
	q := Query{Raw: raw}
	text := raw
	for pass := 0; pass < maxPasses; pass++ {
		next := n.pass(text, &q.Removed)
		if next == text {
			break
		}
		text = next
	}
	q.Text = text
	return q
}

// pass applies the ordered steps once. Volumes go before stop words so "750 ml"
// is removed as a unit before the filler around it is collapsed.
func (n *Normalizer) pass(text string, removed *[]Removal) string {
	text = strip(text, vintagePattern, StepVintage, removed)
	text = strip(text, volumePattern, StepVolume, removed)
	text = strip(text, abvPattern, StepABV, removed)
	text = strip(text, pricePattern, StepPrice, removed)
	if n != nil && n.stopPattern != nil {
		text = strip(text, n.stopPattern, StepStopword, removed)
	}
	return textutil.Fold(text)
}

func strip(text string, pattern *regexp.Regexp, step Step, removed *[]Removal) string {
	matches := pattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		value := strings.TrimSpace(text[m[0]:m[1]])
		if value == "" {
			continue
		}
		*removed = append(*removed, Removal{Step: step, Value: value})
		b.WriteString(text[last:m[0]])
		b.WriteByte(' ')
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String()
}
