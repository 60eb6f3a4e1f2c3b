package geometry

import (
	"math"

	"github.com/Veraticus/collectorstream/internal/model"
)

// ExpandToCardAspect grows r symmetrically about its center until its
// width/height equals aspect. A rect wider than the target grows in height,
// otherwise it grows in width. It never shrinks. A rect with no extent in
// either axis is returned unchanged.
func ExpandToCardAspect(r model.NormalizedRect, aspect float64) model.NormalizedRect {
	if aspect <= 0 || (r.Width <= 0 && r.Height <= 0) {
		return r
	}
	cx, cy := r.CenterX(), r.CenterY()

	if r.Height <= 0 || r.Width/r.Height > aspect {
		h := r.Width / aspect
		return model.NormalizedRect{X: r.X, Y: cy - h/2, Width: r.Width, Height: h}
	}

	w := r.Height * aspect
	return model.NormalizedRect{X: cx - w/2, Y: r.Y, Width: w, Height: r.Height}
}

// ClampToBounds clips r to the unit square.
func ClampToBounds(r model.NormalizedRect) model.NormalizedRect {
	x0 := clamp01(r.X)
	y0 := clamp01(r.Y)
	x1 := clamp01(r.X + math.Max(0, r.Width))
	y1 := clamp01(r.Y + math.Max(0, r.Height))
	return model.NormalizedRect{
		X:      x0,
		Y:      y0,
		Width:  math.Max(0, x1-x0),
		Height: math.Max(0, y1-y0),
	}
}

// Pad grows r by fraction of its own size on every side, keeping the center
// and aspect ratio.
func Pad(r model.NormalizedRect, fraction float64) model.NormalizedRect {
	dx := r.Width * fraction
	dy := r.Height * fraction
	return model.NormalizedRect{
		X:      r.X - dx,
		Y:      r.Y - dy,
		Width:  r.Width + 2*dx,
		Height: r.Height + 2*dy,
	}
}

// FitCardRect runs the guide-box fallback sequence: expand to the card
// aspect, clamp, pad for hand misalignment, clamp again.
func FitCardRect(r model.NormalizedRect, aspect, padding float64) model.NormalizedRect {
	fitted := ExpandToCardAspect(r, aspect)
	fitted = ClampToBounds(fitted)
	fitted = Pad(fitted, padding)
	return ClampToBounds(fitted)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
