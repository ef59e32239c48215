package recognition

import (
	"time"

	"winescan/internal/fallback"
	"winescan/internal/matcher"
	"winescan/internal/normalize"
	"winescan/internal/vision"
)

// Source records which tier produced a bottle's result.
type Source string

const (
	SourceCatalog Source = "catalog"
	SourceLLM     Source = "llm"
	SourceNone    Source = "none"
)

// State is one step of a bottle's lifecycle.
type State string

const (
	StateGrouped        State = "grouped"
	StateNormalized     State = "normalized"
	StateCatalogMatched State = "catalog-matched"
	StateAccepted       State = "accepted"
	StateEscalated      State = "escalate-to-llm"
	StateLLMMatched     State = "llm-matched"
	StateUnmatched      State = "unmatched"
	StateFinalized      State = "finalized"
)

// Placement is where a finalized bottle ended up in the response.
type Placement string

const (
	PlacementPositioned Placement = "positioned"
	PlacementFallback   Placement = "fallback"
	PlacementDropped    Placement = "dropped"
)

// UnmatchedPolicy decides what happens to a bottle with no catalog-derived name.
type UnmatchedPolicy string

const (
	// PolicyDrop omits the bottle from both lists.
	PolicyDrop UnmatchedPolicy = "drop"
	// PolicyPlaceholder lists the bottle by its LLM guess or label text,
	// without a rating.
	PolicyPlaceholder UnmatchedPolicy = "placeholder"
)

// Failure reasons recorded on steps.
const (
	ReasonNoText          = "no text"
	ReasonBudgetExhausted = "escalation budget exhausted"
	ReasonLLMDisabled     = "llm fallback disabled"
	ReasonNoRematch       = "llm guess did not match the catalog"
	ReasonDeadline        = "request deadline reached before the llm answered"
)

// Input is one recognition request.
type Input struct {
	ImageID   string
	Detection vision.Detection
}

// Result is one finalized, positioned bottle.
type Result struct {
	BottleIndex int
	EntryID     int64
	Name        string
	Rating      *float64
	Confidence  float64
	BBox        vision.BBox
	Source      Source
}

// FallbackEntry is a name-only listing.
type FallbackEntry struct {
	Name       string
	Rating     *float64
	Confidence float64
}

// Outcome is everything the pipeline produced for an image.
type Outcome struct {
	Positioned    []Result
	Fallback      []FallbackEntry
	Steps         []Step
	Degraded      bool
	DegradeReason string
}

// CandidateScore is a scored candidate as shown in the debug trace.
type CandidateScore struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Form      string         `json:"matched_form"`
	Rating    float64        `json:"rating"`
	Scores    matcher.Scores `json:"scores"`
	Composite float64        `json:"composite"`
}

// LLMRecord describes the escalation of one bottle.
type LLMRecord struct {
	Attempted  bool            `json:"attempted"`
	CacheHit   bool            `json:"cache_hit"`
	Guess      *fallback.Guess `json:"guess,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms"`
	Rematch    *CandidateScore `json:"rematch,omitempty"`
}

// Step is the per-bottle diagnostic trace.
type Step struct {
	BottleIndex    int                 `json:"bottle_index"`
	BBox           vision.BBox         `json:"bbox"`
	RawText        string              `json:"raw_text"`
	NormalizedText string              `json:"normalized_text"`
	Removals       []normalize.Removal `json:"removals"`
	Candidates     []CandidateScore    `json:"candidates"`
	Composite      float64             `json:"composite"`
	LLM            *LLMRecord          `json:"llm,omitempty"`
	States         []State             `json:"states"`
	Source         Source              `json:"source"`
	Name           string              `json:"wine_name,omitempty"`
	Confidence     float64             `json:"confidence"`
	Placement      Placement           `json:"placement"`
	FailureReason  string              `json:"failure_reason,omitempty"`
}

func (s *Step) enter(state State) {
	s.States = append(s.States, state)
}

func candidateScore(c matcher.Candidate) CandidateScore {
	return CandidateScore{
		ID:        c.Entry.ID,
		Name:      c.Entry.Name,
		Form:      c.Form,
		Rating:    c.Entry.Rating,
		Scores:    c.Scores,
		Composite: c.Composite,
	}
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
