// Package model defines the core domain models used throughout the application.
package model

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"time"
)

// ErrInvalidFrame is returned when a frame has no usable pixels.
var ErrInvalidFrame = errors.New("invalid frame")

// Orientation describes where the top of the card points in a frame's
// pixels. Detection and cropping expect OrientationUp.
type Orientation int

// Orientation constants.
const (
	OrientationUp Orientation = iota
	OrientationRight
	OrientationDown
	OrientationLeft
)

func (o Orientation) String() string {
	switch o {
	case OrientationUp:
		return "up"
	case OrientationRight:
		return "right"
	case OrientationDown:
		return "down"
	case OrientationLeft:
		return "left"
	default:
		return fmt.Sprintf("orientation(%d)", int(o))
	}
}

// ParseOrientation parses "up", "right", "down" or "left". Empty means up.
func ParseOrientation(raw string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "up":
		return OrientationUp, nil
	case "right":
		return OrientationRight, nil
	case "down":
		return OrientationDown, nil
	case "left":
		return OrientationLeft, nil
	}
	return OrientationUp, fmt.Errorf("unknown orientation %q", raw)
}

// Frame is one raw photograph delivered by the capture device.
type Frame struct {
	CapturedAt  time.Time
	Image       image.Image
	Width       int
	Height      int
	Orientation Orientation
}

// NewFrame wraps a decoded image, rejecting empty buffers.
func NewFrame(img image.Image, orientation Orientation) (Frame, error) {
	if img == nil {
		return Frame{}, fmt.Errorf("%w: nil image", ErrInvalidFrame)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return Frame{}, fmt.Errorf("%w: %dx%d", ErrInvalidFrame, b.Dx(), b.Dy())
	}
	return Frame{
		Image:       img,
		Width:       b.Dx(),
		Height:      b.Dy(),
		Orientation: orientation,
		CapturedAt:  time.Now(),
	}, nil
}

// Valid reports whether the frame carries pixels.
func (f Frame) Valid() bool {
	return f.Image != nil && f.Width > 0 && f.Height > 0
}

// QualityRating buckets a sharpness variance for user-facing messaging.
type QualityRating int

// Quality ratings from worst to best.
const (
	RatingVeryBlurry QualityRating = iota
	RatingPoor
	RatingAcceptable
	RatingGood
	RatingExcellent
)

func (r QualityRating) String() string {
	switch r {
	case RatingVeryBlurry:
		return "Very Blurry"
	case RatingPoor:
		return "Poor"
	case RatingAcceptable:
		return "Acceptable"
	case RatingGood:
		return "Good"
	case RatingExcellent:
		return "Excellent"
	default:
		return "Unknown"
	}
}

// QualityScore is the sharpness measurement of one frame.
type QualityScore struct {
	Variance float64
	Rating   QualityRating
	Accepted bool
}

// CapturedSide is one finished, cropped face of a card.
type CapturedSide struct {
	Image    image.Image
	Boundary *BoundaryResult
	Side     Side
	Quality  QualityScore
	Cropped  bool
}
