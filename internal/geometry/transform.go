// Package geometry converts rectangles between the three coordinate spaces of
// the capture pipeline.
//
// Screen space is the on-screen guide box, in device points with a top-left
// origin. Sensor space is the unit square of the camera frame as the preview
// shows it, also top-left origin. Pixel space is the still image buffer, whose
// origin is bottom-left. Moving from sensor to pixel space inverts Y; that
// inversion lives only in InvertY.
package geometry

import (
	"math"

	"github.com/Veraticus/collectorstream/internal/model"
)

// VideoGravity describes how the live preview maps the sensor onto the screen.
type VideoGravity int

const (
	// GravityResizeAspectFill scales the sensor to cover the viewport,
	// cropping whichever axis overflows.
	GravityResizeAspectFill VideoGravity = iota
	// GravityResizeAspect scales the sensor to fit inside the viewport,
	// letterboxing the remainder.
	GravityResizeAspect
	// GravityResize stretches the sensor to the viewport.
	GravityResize
)

// ScreenRect is a rectangle in device points, top-left origin.
type ScreenRect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Viewport describes the preview surface the guide box is drawn on.
type Viewport struct {
	Width  float64
	Height float64
	// SensorAspect is sensor width/height in display orientation. Zero means
	// the sensor matches the viewport.
	SensorAspect float64
	Gravity      VideoGravity
}

// content returns the on-screen rectangle occupied by the full sensor image.
func (v Viewport) content() (ox, oy, cw, ch float64) {
	if v.Width <= 0 || v.Height <= 0 {
		return 0, 0, 0, 0
	}
	aspect := v.SensorAspect
	if aspect <= 0 || v.Gravity == GravityResize {
		return 0, 0, v.Width, v.Height
	}

	viewAspect := v.Width / v.Height
	widthBound := viewAspect < aspect // sensor is wider than the view
	if v.Gravity == GravityResizeAspectFill {
		widthBound = !widthBound
	}

	if widthBound {
		cw = v.Width
		ch = v.Width / aspect
	} else {
		ch = v.Height
		cw = v.Height * aspect
	}
	return (v.Width - cw) / 2, (v.Height - ch) / 2, cw, ch
}

// Transformer converts between coordinate spaces. It is stateless.
type Transformer struct{}

// NewTransformer returns a Transformer.
func NewTransformer() Transformer {
	return Transformer{}
}

// ToNormalizedSensorRect maps an on-screen rect into normalized sensor space,
// accounting for the preview's fill or letterbox. The result is not clamped.
func (Transformer) ToNormalizedSensorRect(screen ScreenRect, vp Viewport) model.NormalizedRect {
	ox, oy, cw, ch := vp.content()
	if cw <= 0 || ch <= 0 {
		return model.NormalizedRect{}
	}
	return model.NormalizedRect{
		X:      (screen.X - ox) / cw,
		Y:      (screen.Y - oy) / ch,
		Width:  screen.Width / cw,
		Height: screen.Height / ch,
	}
}

// ToScreenRect is the inverse of ToNormalizedSensorRect.
func (Transformer) ToScreenRect(n model.NormalizedRect, vp Viewport) ScreenRect {
	ox, oy, cw, ch := vp.content()
	return ScreenRect{
		X:      ox + n.X*cw,
		Y:      oy + n.Y*ch,
		Width:  n.Width * cw,
		Height: n.Height * ch,
	}
}

// InvertY converts a top-left-origin normalized Y into the bottom-left-origin
// Y of the same rect.
func InvertY(normY, normHeight float64) float64 {
	return 1 - normY - normHeight
}

// ToPixelRect converts a normalized sensor rect into the bottom-left-origin
// pixel rect of an image, clipped to the image. A rect entirely outside the
// image comes back empty.
func (Transformer) ToPixelRect(n model.NormalizedRect, imageWidth, imageHeight int) model.PixelRect {
	if imageWidth <= 0 || imageHeight <= 0 {
		return model.PixelRect{}
	}
	w, h := float64(imageWidth), float64(imageHeight)

	x0 := math.Round(n.X * w)
	y0 := math.Round(InvertY(n.Y, n.Height) * h)
	x1 := math.Round((n.X + n.Width) * w)
	y1 := math.Round((InvertY(n.Y, n.Height) + n.Height) * h)

	x0 = math.Max(0, math.Min(w, x0))
	x1 = math.Max(0, math.Min(w, x1))
	y0 = math.Max(0, math.Min(h, y0))
	y1 = math.Max(0, math.Min(h, y1))

	if x1 <= x0 || y1 <= y0 {
		return model.PixelRect{}
	}
	return model.PixelRect{
		X:      int(x0),
		Y:      int(y0),
		Width:  int(x1 - x0),
		Height: int(y1 - y0),
	}
}

// FromPixelRect is the inverse of ToPixelRect for rects inside the image.
func (Transformer) FromPixelRect(p model.PixelRect, imageWidth, imageHeight int) model.NormalizedRect {
	if imageWidth <= 0 || imageHeight <= 0 {
		return model.NormalizedRect{}
	}
	w, h := float64(imageWidth), float64(imageHeight)
	nh := float64(p.Height) / h
	return model.NormalizedRect{
		X:      float64(p.X) / w,
		Y:      InvertY(float64(p.Y)/h, nh),
		Width:  float64(p.Width) / w,
		Height: nh,
	}
}
