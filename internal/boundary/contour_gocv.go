//go:build gocv

package boundary

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"

	"gocv.io/x/gocv"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/imaging"
	"github.com/Veraticus/collectorstream/internal/model"
)

// ContourName is the registry name of the OpenCV detector.
const ContourName = "contour"

func init() {
	Register(ContourName, func(opts Options, logger *slog.Logger) (Detector, error) {
		return NewContourDetector(opts, logger), nil
	})
}

// ContourDetector finds card outlines with OpenCV: Canny edges, external
// contours, polygon approximation and a minimum-area rotated rectangle.
type ContourDetector struct {
	logger *slog.Logger
	opts   Options
}

// NewContourDetector creates a ContourDetector.
func NewContourDetector(opts Options, logger *slog.Logger) *ContourDetector {
	return &ContourDetector{
		opts:   opts,
		logger: common.ComponentLogger(logger, "boundary.contour"),
	}
}

// Detect returns the strongest quadrilateral, or nil when nothing qualifies.
func (d *ContourDetector) Detect(ctx context.Context, frame model.Frame) (*model.BoundaryResult, error) {
	if !frame.Valid() {
		return nil, fmt.Errorf("%w: %w", common.ErrImageProcessing, model.ErrInvalidFrame)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := imaging.Fit(frame.Image, d.opts.AnalysisEdge)
	mat, err := imageToMat(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrImageProcessing, err)
	}
	defer func() { _ = mat.Close() }()

	gray := gocv.NewMat()
	defer func() { _ = gray.Close() }()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	blurred := gocv.NewMat()
	defer func() { _ = blurred.Close() }()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: 5, Y: 5}, 0, 0, gocv.BorderDefault)

	edges := gocv.NewMat()
	defer func() { _ = edges.Close() }()
	gocv.Canny(blurred, &edges, 50, 150)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 3, Y: 3})
	defer func() { _ = kernel.Close() }()
	gocv.Dilate(edges, &edges, kernel)

	contours := gocv.FindContours(edges, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	frameArea := float64(w * h)
	candidates := make([]model.BoundaryResult, 0, contours.Size())

	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area < d.opts.MinAreaFraction*frameArea || area > 0.98*frameArea {
			continue
		}

		perimeter := gocv.ArcLength(contour, true)
		approx := gocv.ApproxPolyDP(contour, 0.02*perimeter, true)
		corners := approx.Size()
		approx.Close()
		if corners != 4 {
			continue
		}

		if result, ok := d.evaluate(contour, area, w, h); ok {
			candidates = append(candidates, result)
		}
	}

	results := d.opts.accept(candidates)
	d.logger.Debug("contour detection finished",
		"contours", contours.Size(),
		"candidates", len(candidates),
		"accepted", len(results))
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

func (d *ContourDetector) evaluate(contour gocv.PointVector, area float64, w, h int) (model.BoundaryResult, bool) {
	rot := gocv.MinAreaRect(contour)
	rw, rh := float64(rot.Width), float64(rot.Height)
	if rw <= 0 || rh <= 0 {
		return model.BoundaryResult{}, false
	}

	// OpenCV reports angles in [-90, 0) or [0, 90) depending on version;
	// fold to the deviation from the nearest axis.
	skew := math.Mod(math.Abs(rot.Angle), 90)
	if skew > 45 {
		skew = 90 - skew
		rw, rh = rh, rw
	}
	if skew > d.opts.QuadratureTolerance {
		return model.BoundaryResult{}, false
	}

	aspect := rw / rh
	landscape := aspect > 1
	if landscape {
		aspect = 1 / aspect
	}
	aspectScore := d.opts.aspectScore(aspect)
	if aspectScore <= 0 {
		return model.BoundaryResult{}, false
	}

	fill := math.Min(1, area/(rw*rh))
	skewScore := 1.0
	if d.opts.QuadratureTolerance > 0 {
		skewScore = 1 - skew/d.opts.QuadratureTolerance
	}

	box := rot.BoundingRect.Intersect(image.Rect(0, 0, w, h))
	if box.Empty() {
		return model.BoundaryResult{}, false
	}

	return model.BoundaryResult{
		Source: model.SourceDetected,
		Rect: model.NormalizedRect{
			X:      float64(box.Min.X) / float64(w),
			Y:      float64(box.Min.Y) / float64(h),
			Width:  float64(box.Dx()) / float64(w),
			Height: float64(box.Dy()) / float64(h),
		},
		Confidence: 0.5*fill + 0.3*aspectScore + 0.2*skewScore,
		Landscape:  landscape,
	}, true
}

// imageToMat converts an image into a BGR Mat.
func imageToMat(img image.Image) (gocv.Mat, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return gocv.Mat{}, fmt.Errorf("empty image")
	}

	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			mat.SetUCharAt(y, x*3+0, uint8(bl>>8))
			mat.SetUCharAt(y, x*3+1, uint8(g>>8))
			mat.SetUCharAt(y, x*3+2, uint8(r>>8))
		}
	}
	return mat, nil
}
