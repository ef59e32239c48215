package api

import (
	"winescan/internal/recognition"
	"winescan/internal/vision"
)

// Assemble converts an outcome into the wire response. Steps are attached
// only when debug is set.
func Assemble(imageID string, outcome recognition.Outcome, debug bool) ScanResponse {
	resp := ScanResponse{
		ImageID:      imageID,
		Results:      make([]WineResult, 0, len(outcome.Positioned)),
		FallbackList: make([]FallbackWine, 0, len(outcome.Fallback)),
	}
	for _, r := range outcome.Positioned {
		resp.Results = append(resp.Results, WineResult{
			WineName:   r.Name,
			Rating:     copyRating(r.Rating),
			Confidence: r.Confidence,
			BBox:       fromBBox(r.BBox),
		})
	}
	for _, f := range outcome.Fallback {
		resp.FallbackList = append(resp.FallbackList, FallbackWine{
			WineName: f.Name,
			Rating:   copyRating(f.Rating),
		})
	}
	if debug {
		steps := outcome.Steps
		if steps == nil {
			steps = []recognition.Step{}
		}
		resp.Debug = &Debug{
			Degraded:      outcome.Degraded,
			DegradeReason: outcome.DegradeReason,
			Steps:         steps,
		}
	}
	return resp
}

func fromBBox(b vision.BBox) BBox {
	return BBox{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}
}

func copyRating(r *float64) *float64 {
	if r == nil {
		return nil
	}
	v := *r
	return &v
}
