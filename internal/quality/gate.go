// Package quality scores captured frames for sharpness before they are used.
package quality

import (
	"fmt"
	"image"
	"log/slog"

	"gonum.org/v1/gonum/stat"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/imaging"
	"github.com/Veraticus/collectorstream/internal/model"
)

// Calibrated sharpness thresholds for full-resolution stills.
const (
	DefaultSharpThreshold = 100.0
	DefaultIdealThreshold = 200.0
)

// Config tunes the gate.
type Config struct {
	SharpThreshold float64
	IdealThreshold float64
	// MaxAnalysisEdge downscales frames whose longest edge exceeds it before
	// scoring. Downscaling raises the variance of a given scene, so the
	// thresholds above only hold when this is 0.
	MaxAnalysisEdge int
}

// DefaultConfig returns the calibrated thresholds with downscaling off.
func DefaultConfig() Config {
	return Config{
		SharpThreshold: DefaultSharpThreshold,
		IdealThreshold: DefaultIdealThreshold,
	}
}

// Gate decides whether a frame is sharp enough to keep.
type Gate struct {
	logger *slog.Logger
	cfg    Config
}

// NewGate creates a gate. Zero thresholds fall back to the defaults.
func NewGate(cfg Config, logger *slog.Logger) *Gate {
	if cfg.SharpThreshold <= 0 {
		cfg.SharpThreshold = DefaultSharpThreshold
	}
	if cfg.IdealThreshold <= cfg.SharpThreshold {
		cfg.IdealThreshold = 2 * cfg.SharpThreshold
	}
	return &Gate{
		cfg:    cfg,
		logger: common.ComponentLogger(logger, "quality"),
	}
}

// Config returns the effective configuration.
func (g *Gate) Config() Config {
	return g.cfg
}

// Score measures the sharpness of a frame. It never fails: a frame that
// cannot be converted scores zero and is rejected.
func (g *Gate) Score(frame model.Frame) model.QualityScore {
	if !frame.Valid() {
		return g.scoreOf(0)
	}

	img := imaging.Fit(frame.Image, g.cfg.MaxAnalysisEdge)
	gray, err := imaging.Luma(img)
	if err != nil {
		g.logger.Debug("luma conversion failed", "error", err)
		return g.scoreOf(0)
	}

	return g.scoreOf(LaplacianVariance(gray))
}

// Check is Score plus an ErrQualityRejected error carrying the user message
// when the frame is rejected.
func (g *Gate) Check(frame model.Frame) (model.QualityScore, error) {
	score := g.Score(frame)
	if !score.Accepted {
		return score, fmt.Errorf("%w: %s", common.ErrQualityRejected, Message(score.Rating))
	}
	return score, nil
}

// Rate buckets a variance against the gate's thresholds.
func (g *Gate) Rate(variance float64) model.QualityRating {
	sharp := g.cfg.SharpThreshold
	switch {
	case variance < 0.5*sharp:
		return model.RatingVeryBlurry
	case variance < sharp:
		return model.RatingPoor
	case variance < 1.5*sharp:
		return model.RatingAcceptable
	case variance < g.cfg.IdealThreshold:
		return model.RatingGood
	default:
		return model.RatingExcellent
	}
}

func (g *Gate) scoreOf(variance float64) model.QualityScore {
	return model.QualityScore{
		Variance: variance,
		Rating:   g.Rate(variance),
		Accepted: variance >= g.cfg.SharpThreshold,
	}
}

// Message is the user-facing hint for a rating.
func Message(r model.QualityRating) string {
	switch r {
	case model.RatingVeryBlurry:
		return "Image is very blurry. Hold the camera steady and tap to focus."
	case model.RatingPoor:
		return "Image is a little blurry. Try again with more light."
	case model.RatingAcceptable:
		return "Image quality is acceptable."
	case model.RatingGood:
		return "Image quality is good."
	case model.RatingExcellent:
		return "Image quality is excellent."
	default:
		return "Unable to assess image quality."
	}
}

// LaplacianVariance convolves the interior of gray with the 4-neighbour
// Laplacian and returns the variance of the absolute responses. Images
// without interior pixels score 0.
func LaplacianVariance(gray *image.Gray) float64 {
	b := gray.Rect
	if b.Dx() < 3 || b.Dy() < 3 {
		return 0
	}

	responses := make([]float64, 0, (b.Dx()-2)*(b.Dy()-2))
	pix, stride := gray.Pix, gray.Stride
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		row := gray.PixOffset(b.Min.X, y)
		for x := 1; x < b.Dx()-1; x++ {
			i := row + x
			v := int(pix[i-stride]) + int(pix[i+stride]) + int(pix[i-1]) + int(pix[i+1]) - 4*int(pix[i])
			if v < 0 {
				v = -v
			}
			responses = append(responses, float64(v))
		}
	}

	if len(responses) < 2 {
		return 0
	}
	return stat.Variance(responses, nil)
}
