package grouping

import (
	"math"
	"sort"
	"strings"

	"winescan/internal/vision"
)

// Options controls fragment assignment. Distances are fractions of the larger
// image dimension so a threshold means the same thing in portrait and
// landscape shots.
type Options struct {
	ProximityThreshold    float64
	LineTolerance         float64
	MinFragmentConfidence float64
	// ImageWidth and ImageHeight give the aspect ratio of the normalized frame.
	// Zero values treat the frame as square.
	ImageWidth  int
	ImageHeight int
}

// DefaultOptions returns the tolerances used when none are configured.
func DefaultOptions() Options {
	return Options{ProximityThreshold: 0.15, LineTolerance: 0.02}
}

// Blob is the text read from one bottle, in reading order.
type Blob struct {
	BottleIndex int
	Text        string
	Fragments   []vision.Fragment
}

// Result carries one blob per bottle (in bottle order) plus the fragments no
// bottle claimed.
type Result struct {
	Blobs   []Blob
	Dropped []vision.Fragment
}

// Group assigns each fragment to the nearest bottle when it lies within the
// proximity threshold of that bottle, and concatenates each bottle's fragments.
// A fragment out of range of every bottle is dropped instead of being forced
// onto the closest one.
func Group(fragments []vision.Fragment, bottles []vision.Bottle, opts Options) Result {
	if opts.ProximityThreshold <= 0 {
		opts.ProximityThreshold = DefaultOptions().ProximityThreshold
	}
	sx, sy := frameScale(opts.ImageWidth, opts.ImageHeight)

	assigned := make([][]placed, len(bottles))
	var dropped []vision.Fragment
	for order, frag := range fragments {
		if frag.Confidence < opts.MinFragmentConfidence {
			dropped = append(dropped, frag)
			continue
		}
		slot, ok := nearestBottle(frag.BBox, bottles, sx, sy, opts.ProximityThreshold)
		if !ok {
			dropped = append(dropped, frag)
			continue
		}
		assigned[slot] = append(assigned[slot], placed{fragment: frag, order: order})
	}

	result := Result{Blobs: make([]Blob, len(bottles)), Dropped: dropped}
	for slot, bottle := range bottles {
		ordered := readingOrder(assigned[slot], sy, opts.LineTolerance)
		texts := make([]string, 0, len(ordered))
		frags := make([]vision.Fragment, 0, len(ordered))
		for _, p := range ordered {
			texts = append(texts, p.fragment.Text)
			frags = append(frags, p.fragment)
		}
		result.Blobs[slot] = Blob{
			BottleIndex: bottle.Index,
			Text:        strings.Join(strings.Fields(strings.Join(texts, " ")), " "),
			Fragments:   frags,
		}
	}
	return result
}

type placed struct {
	fragment vision.Fragment
	order    int
}

func frameScale(width, height int) (float64, float64) {
	if width <= 0 || height <= 0 {
		return 1, 1
	}
	larger := math.Max(float64(width), float64(height))
	return float64(width) / larger, float64(height) / larger
}

// nearestBottle ranks bottles by the distance from the fragment centre to the
// bottle rectangle (zero when inside), then by centre-to-centre distance, then
// by position.
func nearestBottle(box vision.BBox, bottles []vision.Bottle, sx, sy, threshold float64) (int, bool) {
	cx, cy := box.Center()
	best := -1
	bestEdge, bestCenter := math.Inf(1), math.Inf(1)
	for i, bottle := range bottles {
		edge := edgeDistance(cx, cy, bottle.BBox, sx, sy)
		bx, by := bottle.BBox.Center()
		center := math.Hypot((cx-bx)*sx, (cy-by)*sy)
		if edge < bestEdge || (edge == bestEdge && center < bestCenter) {
			best, bestEdge, bestCenter = i, edge, center
		}
	}
	if best < 0 || bestEdge > threshold {
		return 0, false
	}
	return best, true
}

func edgeDistance(px, py float64, box vision.BBox, sx, sy float64) float64 {
	dx := math.Max(0, math.Max(box.X-px, px-(box.X+box.Width)))
	dy := math.Max(0, math.Max(box.Y-py, py-(box.Y+box.Height)))
	return math.Hypot(dx*sx, dy*sy)
}

// readingOrder sorts fragments into lines top to bottom, then left to right
// within each line.
func readingOrder(items []placed, sy, tolerance float64) []placed {
	if len(items) < 2 {
		return items
	}
	sorted := append([]placed(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		_, yi := sorted[i].fragment.BBox.Center()
		_, yj := sorted[j].fragment.BBox.Center()
		if yi != yj {
			return yi < yj
		}
		return sorted[i].order < sorted[j].order
	})

	var lines [][]placed
	var anchor placed
	for _, item := range sorted {
		if len(lines) > 0 && sameLine(anchor, item, sy, tolerance) {
			lines[len(lines)-1] = append(lines[len(lines)-1], item)
			continue
		}
		anchor = item
		lines = append(lines, []placed{item})
	}

	out := make([]placed, 0, len(items))
	for _, line := range lines {
		sort.SliceStable(line, func(i, j int) bool {
			xi, _ := line[i].fragment.BBox.Center()
			xj, _ := line[j].fragment.BBox.Center()
			if xi != xj {
				return xi < xj
			}
			return line[i].order < line[j].order
		})
		out = append(out, line...)
	}
	return out
}

// sameLine treats two fragments as one line when their vertical centres are
// within the configured tolerance or half the height of the shorter fragment.
func sameLine(anchor, item placed, sy, tolerance float64) bool {
	_, ay := anchor.fragment.BBox.Center()
	_, iy := item.fragment.BBox.Center()
	limit := math.Max(tolerance, 0.5*math.Min(anchor.fragment.BBox.Height, item.fragment.BBox.Height)*sy)
	return math.Abs(iy-ay)*sy <= limit
}
