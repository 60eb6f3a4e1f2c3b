// Package crop cuts the card out of a captured frame, using the boundary
// detector when it finds something and the on-screen guide box otherwise.
package crop

import (
	"context"
	"errors"
	"image"
	"log/slog"

	"github.com/Veraticus/collectorstream/internal/boundary"
	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/geometry"
	"github.com/Veraticus/collectorstream/internal/imaging"
	"github.com/Veraticus/collectorstream/internal/model"
)

// DefaultPadding absorbs minor hand misalignment around the guide box.
const DefaultPadding = 0.02

// ScreenGuide is the guide box the user lined the card up with.
type ScreenGuide struct {
	Rect     geometry.ScreenRect
	Viewport geometry.Viewport
}

// Size is a pixel size.
type Size struct {
	Width  int
	Height int
}

// Config tunes crop output.
type Config struct {
	Output      Size
	Thumbnail   Size
	Padding     float64
	JPEGQuality int
}

// DefaultConfig returns the canonical 500x700 output with 200x280 thumbnails.
func DefaultConfig() Config {
	return Config{
		Output:      Size{Width: 500, Height: 700},
		Thumbnail:   Size{Width: 200, Height: 280},
		Padding:     DefaultPadding,
		JPEGQuality: imaging.DefaultJPEGQuality,
	}
}

// Extractor produces a CapturedSide from a frame.
type Extractor struct {
	detector    boundary.Detector
	logger      *slog.Logger
	transformer geometry.Transformer
	cfg         Config
}

// NewExtractor creates an Extractor. A nil detector always uses the guide.
func NewExtractor(detector boundary.Detector, cfg Config, logger *slog.Logger) *Extractor {
	if cfg.Output.Width <= 0 || cfg.Output.Height <= 0 {
		cfg.Output = DefaultConfig().Output
	}
	if cfg.Thumbnail.Width <= 0 || cfg.Thumbnail.Height <= 0 {
		cfg.Thumbnail = DefaultConfig().Thumbnail
	}
	if cfg.Padding < 0 {
		cfg.Padding = 0
	}
	return &Extractor{
		detector:    detector,
		transformer: geometry.NewTransformer(),
		cfg:         cfg,
		logger:      common.ComponentLogger(logger, "crop"),
	}
}

// Config returns the effective configuration.
func (e *Extractor) Config() Config {
	return e.cfg
}

// Extract crops the card out of frame. It never fails: when no usable rect
// can be found the original frame comes back with Cropped false.
func (e *Extractor) Extract(ctx context.Context, frame model.Frame, guide *ScreenGuide) model.CapturedSide {
	if !frame.Valid() {
		return model.CapturedSide{Image: frame.Image}
	}

	if detected := e.detect(ctx, frame); detected != nil {
		if img, ok := e.cropTo(frame, detected.Rect); ok {
			if detected.Landscape {
				img = imaging.Rotate90(img)
			}
			return model.CapturedSide{Image: img, Boundary: detected, Cropped: true}
		}
		e.logger.Debug("detected rect degenerated, using guide", "rect", detected.Rect)
	}

	if guide == nil {
		return model.CapturedSide{Image: frame.Image}
	}

	// Normalized units stretch with the frame, so the card aspect is
	// expressed relative to the frame's own aspect.
	aspect := model.CardAspectRatio * float64(frame.Height) / float64(frame.Width)
	sensor := e.transformer.ToNormalizedSensorRect(guide.Rect, guide.Viewport)
	fitted := geometry.FitCardRect(sensor, aspect, e.cfg.Padding)
	fallback := &model.BoundaryResult{Source: model.SourceFallback, Rect: fitted}

	img, ok := e.cropTo(frame, fitted)
	if !ok {
		e.logger.Debug("guide rect degenerated, keeping full frame", "rect", fitted)
		return model.CapturedSide{Image: frame.Image, Boundary: fallback}
	}
	return model.CapturedSide{Image: img, Boundary: fallback, Cropped: true}
}

// detect runs the detector, treating every failure as a miss.
func (e *Extractor) detect(ctx context.Context, frame model.Frame) *model.BoundaryResult {
	if e.detector == nil {
		return nil
	}
	result, err := e.detector.Detect(ctx, frame)
	switch {
	case err != nil && errors.Is(err, common.ErrImageProcessing):
		e.logger.Warn("boundary detection could not read frame", "error", err)
		return nil
	case err != nil:
		e.logger.Debug("boundary detection failed", "error", err)
		return nil
	case result == nil:
		e.logger.Debug("boundary detection missed", "error", common.ErrDetectionMiss)
		return nil
	}
	return result
}

// cropTo converts a normalized rect through the bottom-left pixel space and
// back to image coordinates before cutting.
func (e *Extractor) cropTo(frame model.Frame, rect model.NormalizedRect) (image.Image, bool) {
	px := e.transformer.ToPixelRect(rect, frame.Width, frame.Height)
	if px.Empty() {
		return nil, false
	}
	r := px.ImageRect(frame.Height).Add(frame.Image.Bounds().Min)
	img, err := imaging.Crop(frame.Image, r)
	if err != nil {
		return nil, false
	}
	return img, true
}

// Payload renders a captured side as the normalized JPEG sent for
// identification.
func (e *Extractor) Payload(side model.CapturedSide) ([]byte, error) {
	if side.Image == nil {
		return nil, model.ErrInvalidFrame
	}
	return EncodeJPEG(Normalize(side.Image, e.cfg.Output), e.cfg.JPEGQuality)
}

// ThumbnailOf renders the thumbnail JPEG of a captured side.
func (e *Extractor) ThumbnailOf(side model.CapturedSide) ([]byte, error) {
	if side.Image == nil {
		return nil, model.ErrInvalidFrame
	}
	return Thumbnail(side.Image, e.cfg.Thumbnail, e.cfg.JPEGQuality)
}
