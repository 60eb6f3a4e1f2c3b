package boundary

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/imaging"
	"github.com/Veraticus/collectorstream/internal/model"
)

// EdgeName is the registry name of the pure-Go detector.
const EdgeName = "edge"

func init() {
	Register(EdgeName, func(opts Options, logger *slog.Logger) (Detector, error) {
		return NewEdgeDetector(opts, logger), nil
	})
}

// EdgeDetector finds the card outline with a Sobel gradient, an Otsu
// threshold and connected-component analysis. It needs no native libraries.
type EdgeDetector struct {
	logger *slog.Logger
	opts   Options
}

// NewEdgeDetector creates an EdgeDetector.
func NewEdgeDetector(opts Options, logger *slog.Logger) *EdgeDetector {
	return &EdgeDetector{
		opts:   opts,
		logger: common.ComponentLogger(logger, "boundary"),
	}
}

// Detect returns the strongest candidate, or nil when nothing qualifies.
func (d *EdgeDetector) Detect(ctx context.Context, frame model.Frame) (*model.BoundaryResult, error) {
	results, err := d.DetectAll(ctx, frame)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return &results[0], nil
}

// DetectAll returns up to MaxObservations candidates, strongest first.
func (d *EdgeDetector) DetectAll(ctx context.Context, frame model.Frame) ([]model.BoundaryResult, error) {
	if !frame.Valid() {
		return nil, fmt.Errorf("%w: %w", common.ErrImageProcessing, model.ErrInvalidFrame)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gray, err := imaging.Luma(imaging.Fit(frame.Image, d.opts.AnalysisEdge))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrImageProcessing, err)
	}
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	if w < 8 || h < 8 {
		return nil, nil
	}

	mag := sobel(gray)
	threshold, ok := otsu(mag)
	if !ok {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	comps := components(mag, w, h, threshold)
	candidates := make([]model.BoundaryResult, 0, len(comps))
	for _, c := range comps {
		if result, ok := d.evaluate(c, w, h); ok {
			candidates = append(candidates, result)
		}
	}

	results := d.opts.accept(candidates)
	d.logger.Debug("edge detection finished",
		"components", len(comps),
		"candidates", len(candidates),
		"accepted", len(results),
		"threshold", threshold)
	return results, nil
}

// evaluate turns a component into a boundary candidate.
func (d *EdgeDetector) evaluate(c component, w, h int) (model.BoundaryResult, bool) {
	bw, bh := c.maxX-c.minX+1, c.maxY-c.minY+1
	frameArea := float64(w * h)
	area := float64(bw * bh)
	if area < d.opts.MinAreaFraction*frameArea || area > 0.98*frameArea {
		return model.BoundaryResult{}, false
	}

	width, height, skew := c.shape()
	if skew > d.opts.QuadratureTolerance {
		return model.BoundaryResult{}, false
	}

	aspect := width / height
	landscape := aspect > 1
	if landscape {
		aspect = 1 / aspect
	}
	aspectScore := d.opts.aspectScore(aspect)
	if aspectScore <= 0 {
		return model.BoundaryResult{}, false
	}

	perimeter := 2 * (width + height)
	outline := math.Min(1, float64(c.count)/perimeter)
	skewScore := 1.0
	if d.opts.QuadratureTolerance > 0 {
		skewScore = 1 - skew/d.opts.QuadratureTolerance
	}

	return model.BoundaryResult{
		Source: model.SourceDetected,
		Rect: model.NormalizedRect{
			X:      float64(c.minX) / float64(w),
			Y:      float64(c.minY) / float64(h),
			Width:  float64(bw) / float64(w),
			Height: float64(bh) / float64(h),
		},
		Confidence: 0.5*outline + 0.3*aspectScore + 0.2*skewScore,
		Landscape:  landscape,
	}, true
}

// sobel returns (|gx| + |gy|) / 8 per pixel, zero on the border.
func sobel(gray *image.Gray) []uint8 {
	b := gray.Rect
	w, h := b.Dx(), b.Dy()
	out := make([]uint8, w*h)
	at := func(x, y int) int {
		return int(gray.Pix[gray.PixOffset(b.Min.X+x, b.Min.Y+y)])
	}

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1) +
				at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			if gx < 0 {
				gx = -gx
			}
			if gy < 0 {
				gy = -gy
			}
			out[y*w+x] = uint8(min(255, (gx+gy)/8))
		}
	}
	return out
}

// otsu picks the threshold that maximizes between-class variance. Values
// strictly above it are foreground. It reports false for a uniform input.
func otsu(values []uint8) (uint8, bool) {
	var hist [256]int
	for _, v := range values {
		hist[v]++
	}

	total := len(values)
	sum := 0.0
	for i, n := range hist {
		sum += float64(i * n)
	}

	var sumB, best float64
	var weightB int
	var threshold uint8
	for t := 0; t < 256; t++ {
		weightB += hist[t]
		if weightB == 0 {
			continue
		}
		weightF := total - weightB
		if weightF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		meanB := sumB / float64(weightB)
		meanF := (sum - sumB) / float64(weightF)
		between := float64(weightB) * float64(weightF) * (meanB - meanF) * (meanB - meanF)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold, best > 0
}

type point struct{ x, y int }

// component is a 4-connected run of edge pixels with its extreme points.
type component struct {
	top, bottom, left point
	count               int
	minX, minY          int
	maxX, maxY          int
}

// shape estimates the outline's side lengths and skew in degrees from the
// left vertex and its two neighbours. An axis-aligned outline has its left
// and top vertices on the same corner.
func (c component) shape() (width, height, skew float64) {
	bw := float64(c.maxX - c.minX + 1)
	bh := float64(c.maxY - c.minY + 1)

	up := math.Hypot(float64(c.top.x-c.left.x), float64(c.top.y-c.left.y))
	down := math.Hypot(float64(c.bottom.x-c.left.x), float64(c.bottom.y-c.left.y))
	if up < 3 || down < 3 {
		return bw, bh, 0
	}

	angle := math.Atan2(float64(c.left.y-c.top.y), float64(c.top.x-c.left.x)) * 180 / math.Pi
	if angle < 45 {
		// The upper-left side is the near-horizontal one.
		return up, down, angle
	}
	return down, up, 90 - angle
}

// components labels 4-connected pixels above threshold and keeps the ones
// large enough to be a card outline.
func components(mag []uint8, w, h int, threshold uint8) []component {
	labels := make([]bool, len(mag))
	minCount := 2 * (w + h) / 10
	var out []component
	queue := make([]int, 0, 1024)

	for start, v := range mag {
		if v <= threshold || labels[start] {
			continue
		}

		sx, sy := start%w, start/w
		c := component{
			minX: sx, maxX: sx, minY: sy, maxY: sy,
			top: point{sx, sy}, bottom: point{sx, sy}, left: point{sx, sy},
		}
		labels[start] = true
		queue = append(queue[:0], start)

		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := i%w, i/w
			c.add(x, y)

			for _, n := range [4]int{i - 1, i + 1, i - w, i + w} {
				if n < 0 || n >= len(mag) || labels[n] || mag[n] <= threshold {
					continue
				}
				// Left/right neighbours must stay on the same row.
				if (n == i-1 || n == i+1) && n/w != y {
					continue
				}
				labels[n] = true
				queue = append(queue, n)
			}
		}

		if c.count >= minCount {
			out = append(out, c)
		}
	}
	return out
}

func (c *component) add(x, y int) {
	c.count++
	c.minX = min(c.minX, x)
	c.maxX = max(c.maxX, x)
	c.minY = min(c.minY, y)
	c.maxY = max(c.maxY, y)
	if y < c.top.y || (y == c.top.y && x < c.top.x) {
		c.top = point{x, y}
	}
	if y > c.bottom.y || (y == c.bottom.y && x < c.bottom.x) {
		c.bottom = point{x, y}
	}
	if x < c.left.x || (x == c.left.x && y < c.left.y) {
		c.left = point{x, y}
	}
}
