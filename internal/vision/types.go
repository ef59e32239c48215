package vision

import (
	"context"
	"math"
	"strings"
)

// BBox is an axis-aligned box in image coordinates normalized to [0,1].
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the box midpoint.
func (b BBox) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Area returns the normalized box area.
func (b BBox) Area() float64 {
	return b.Width * b.Height
}

// Clamp trims the box to the unit frame.
func (b BBox) Clamp() BBox {
	x0, y0 := clamp01(b.X), clamp01(b.Y)
	x1, y1 := clamp01(b.X+b.Width), clamp01(b.Y+b.Height)
	return BBox{X: x0, Y: y0, Width: math.Max(0, x1-x0), Height: math.Max(0, y1-y0)}
}

func (b BBox) finite() bool {
	for _, v := range []float64{b.X, b.Y, b.Width, b.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Fragment is one OCR text token or line.
type Fragment struct {
	Text       string  `json:"text"`
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

// Bottle is one detected bottle region. Index is its position in the
// detection and identifies the bottle for the rest of the pipeline.
type Bottle struct {
	Index      int     `json:"index"`
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

// Detection is everything the vision service reports for one image.
type Detection struct {
	ImageWidth  int        `json:"image_width"`
	ImageHeight int        `json:"image_height"`
	Fragments   []Fragment `json:"fragments"`
	Bottles     []Bottle   `json:"bottles"`
}

// Detector extracts OCR fragments and bottle boxes from image bytes.
type Detector interface {
	Detect(ctx context.Context, image []byte) (Detection, error)
}

// Sanitize clamps every box into the unit frame, drops blank fragments and
// degenerate bottles, and renumbers bottles in order.
func (d Detection) Sanitize() Detection {
	out := Detection{ImageWidth: d.ImageWidth, ImageHeight: d.ImageHeight}
	if out.ImageWidth < 0 {
		out.ImageWidth = 0
	}
	if out.ImageHeight < 0 {
		out.ImageHeight = 0
	}
	out.Fragments = make([]Fragment, 0, len(d.Fragments))
	for _, frag := range d.Fragments {
		text := strings.Join(strings.Fields(frag.Text), " ")
		if text == "" || !frag.BBox.finite() {
			continue
		}
		out.Fragments = append(out.Fragments, Fragment{
			Text:       text,
			BBox:       frag.BBox.Clamp(),
			Confidence: clamp01(frag.Confidence),
		})
	}
	out.Bottles = make([]Bottle, 0, len(d.Bottles))
	for _, bottle := range d.Bottles {
		if !bottle.BBox.finite() {
			continue
		}
		box := bottle.BBox.Clamp()
		if box.Area() <= 0 {
			continue
		}
		out.Bottles = append(out.Bottles, Bottle{
			Index:      len(out.Bottles),
			BBox:       box,
			Confidence: clamp01(bottle.Confidence),
		})
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
