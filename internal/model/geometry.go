package model

import (
	"fmt"
	"image"
)

// CardAspectRatio is width/height of a standard 2.5in x 3.5in trading card.
const CardAspectRatio = 2.5 / 3.5

// NormalizedRect is a rectangle in the unit square with a top-left origin.
type NormalizedRect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// MaxX returns the right edge.
func (r NormalizedRect) MaxX() float64 { return r.X + r.Width }

// MaxY returns the bottom edge.
func (r NormalizedRect) MaxY() float64 { return r.Y + r.Height }

// CenterX returns the horizontal center.
func (r NormalizedRect) CenterX() float64 { return r.X + r.Width/2 }

// CenterY returns the vertical center.
func (r NormalizedRect) CenterY() float64 { return r.Y + r.Height/2 }

// Aspect returns width/height, or 0 for a degenerate rect.
func (r NormalizedRect) Aspect() float64 {
	if r.Height <= 0 {
		return 0
	}
	return r.Width / r.Height
}

// Empty reports whether the rect has no area.
func (r NormalizedRect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Validate checks the post-clamp invariant.
func (r NormalizedRect) Validate() error {
	const eps = 1e-9
	if r.X < -eps || r.Y < -eps || r.MaxX() > 1+eps || r.MaxY() > 1+eps {
		return fmt.Errorf("normalized rect out of bounds: %+v", r)
	}
	if r.Empty() {
		return fmt.Errorf("normalized rect is empty: %+v", r)
	}
	return nil
}

// PixelRect is an integer rectangle in the still image buffer, whose origin
// is the bottom-left corner.
type PixelRect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Empty reports whether the rect has no area.
func (r PixelRect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// ImageRect converts the bottom-left-origin rect into a top-left-origin
// image.Rectangle for an image of the given height.
func (r PixelRect) ImageRect(imageHeight int) image.Rectangle {
	top := imageHeight - r.Y - r.Height
	return image.Rect(r.X, top, r.X+r.Width, top+r.Height)
}

// BoundarySource records where a boundary came from.
type BoundarySource string

// Boundary sources.
const (
	SourceDetected BoundarySource = "detected"
	SourceFallback BoundarySource = "fallback"
)

// BoundaryResult is the outcome of boundary detection for one frame.
type BoundaryResult struct {
	Source     BoundarySource
	Rect       NormalizedRect
	Confidence float64
	Landscape  bool
}

// Validate ensures the confidence is in range.
func (b BoundaryResult) Validate() error {
	if b.Confidence < 0 || b.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0, got %.2f", b.Confidence)
	}
	return nil
}
