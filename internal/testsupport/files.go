package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"winescan/internal/vision"
)

// WriteJSON marshals v to path, creating parent directories.
func WriteJSON(t testing.TB, path string, v any) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// Shelf lays out one bottle per label, left to right, each with a single
// fragment inside it. An empty label gives a bottle without text.
// Coordinates are exact binary fractions so sanitizing leaves them unchanged.
func Shelf(labels ...string) vision.Detection {
	det := vision.Detection{Fragments: []vision.Fragment{}, Bottles: []vision.Bottle{}}
	for i, label := range labels {
		x := 0.0625 + 0.1875*float64(i)
		det.Bottles = append(det.Bottles, vision.Bottle{
			Index:      i,
			BBox:       vision.BBox{X: x, Y: 0.125, Width: 0.125, Height: 0.5},
			Confidence: 0.9,
		})
		if label == "" {
			continue
		}
		det.Fragments = append(det.Fragments, vision.Fragment{
			Text:       label,
			BBox:       vision.BBox{X: x + 0.015625, Y: 0.25, Width: 0.09375, Height: 0.0625},
			Confidence: 0.9,
		})
	}
	return det
}
