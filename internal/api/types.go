package api

import "winescan/internal/recognition"

// BBox is a bottle box in coordinates normalized to [0,1].
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// WineResult is one recognized, positioned bottle.
type WineResult struct {
	WineName   string   `json:"wine_name"`
	Rating     *float64 `json:"rating"`
	Confidence float64  `json:"confidence"`
	BBox       BBox     `json:"bbox"`
}

// FallbackWine is a name-only listing below the visibility threshold.
type FallbackWine struct {
	WineName string   `json:"wine_name"`
	Rating   *float64 `json:"rating"`
}

// Debug carries the per-bottle trace.
type Debug struct {
	Degraded      bool               `json:"degraded"`
	DegradeReason string             `json:"degrade_reason,omitempty"`
	Steps         []recognition.Step `json:"steps"`
}

// ScanResponse is the body returned for one scanned image.
type ScanResponse struct {
	ImageID      string         `json:"image_id"`
	Results      []WineResult   `json:"results"`
	FallbackList []FallbackWine `json:"fallback_list"`
	Debug        *Debug         `json:"debug,omitempty"`
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse reports service readiness.
type HealthResponse struct {
	Status       string `json:"status"`
	CatalogWines int    `json:"catalog_wines"`
	LLMEnabled   bool   `json:"llm_enabled"`
	CacheBackend string `json:"cache_backend"`
}
