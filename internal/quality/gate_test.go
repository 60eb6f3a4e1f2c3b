package quality

import (
	"errors"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/model"
)

func noiseImage(t *testing.T, w, h int, seed int64) *image.Gray {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(r.Intn(256))
	}
	return img
}

// gaussianBlur applies a 3x3 binomial kernel, clamping at the borders.
func gaussianBlur(src *image.Gray) *image.Gray {
	kernel := [3][3]int{{1, 2, 1}, {2, 4, 2}, {1, 2, 1}}
	b := src.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum := 0
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					sx := min(max(x+kx, b.Min.X), b.Max.X-1)
					sy := min(max(y+ky, b.Min.Y), b.Max.Y-1)
					sum += kernel[ky+1][kx+1] * int(src.GrayAt(sx, sy).Y)
				}
			}
			dst.SetGray(x, y, color.Gray{Y: uint8((sum + 8) / 16)})
		}
	}
	return dst
}

func frameOf(t *testing.T, img image.Image) model.Frame {
	t.Helper()
	f, err := model.NewFrame(img, model.OrientationUp)
	require.NoError(t, err)
	return f
}

func TestGateScore(t *testing.T) {
	gate := NewGate(DefaultConfig(), common.DiscardLogger())

	t.Run("noise is sharp", func(t *testing.T) {
		score := gate.Score(frameOf(t, noiseImage(t, 64, 64, 1)))
		assert.True(t, score.Accepted)
		assert.Equal(t, model.RatingExcellent, score.Rating)
	})

	t.Run("flat image is rejected", func(t *testing.T) {
		flat := image.NewGray(image.Rect(0, 0, 32, 32))
		score := gate.Score(frameOf(t, flat))
		assert.Zero(t, score.Variance)
		assert.False(t, score.Accepted)
		assert.Equal(t, model.RatingVeryBlurry, score.Rating)
	})

	t.Run("invalid frame scores zero", func(t *testing.T) {
		score := gate.Score(model.Frame{})
		assert.Zero(t, score.Variance)
		assert.False(t, score.Accepted)
	})

	t.Run("tiny frame scores zero", func(t *testing.T) {
		score := gate.Score(frameOf(t, noiseImage(t, 2, 2, 3)))
		assert.Zero(t, score.Variance)
	})

	t.Run("color and gray agree", func(t *testing.T) {
		gray := noiseImage(t, 48, 48, 9)
		rgba := image.NewRGBA(gray.Bounds())
		for y := 0; y < 48; y++ {
			for x := 0; x < 48; x++ {
				v := gray.GrayAt(x, y).Y
				rgba.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
			}
		}
		assert.InDelta(t, gate.Score(frameOf(t, gray)).Variance, gate.Score(frameOf(t, rgba)).Variance, 1e-9)
	})

	t.Run("sub image is scored in place", func(t *testing.T) {
		full := noiseImage(t, 40, 40, 5)
		sub := full.SubImage(image.Rect(10, 10, 30, 30)).(*image.Gray)
		copied := image.NewGray(image.Rect(0, 0, 20, 20))
		for y := 0; y < 20; y++ {
			for x := 0; x < 20; x++ {
				copied.SetGray(x, y, full.GrayAt(x+10, y+10))
			}
		}
		assert.InDelta(t, LaplacianVariance(copied), LaplacianVariance(sub), 1e-9)
	})
}

func TestSharpnessMonotonicity(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		img := noiseImage(t, 64, 64, seed)
		prev := LaplacianVariance(img)
		for pass := 0; pass < 3; pass++ {
			img = gaussianBlur(img)
			cur := LaplacianVariance(img)
			require.Less(t, cur, prev, "seed %d pass %d", seed, pass)
			prev = cur
		}
	}
}

func TestRate(t *testing.T) {
	gate := NewGate(DefaultConfig(), nil)

	tests := []struct {
		variance float64
		want     model.QualityRating
		accepted bool
	}{
		{0, model.RatingVeryBlurry, false},
		{49.9, model.RatingVeryBlurry, false},
		{50, model.RatingPoor, false},
		{90, model.RatingPoor, false},
		{100, model.RatingAcceptable, true},
		{149.9, model.RatingAcceptable, true},
		{150, model.RatingGood, true},
		{199.9, model.RatingGood, true},
		{200, model.RatingExcellent, true},
		{250, model.RatingExcellent, true},
	}

	for _, tt := range tests {
		score := gate.scoreOf(tt.variance)
		assert.Equal(t, tt.want, score.Rating, "variance %.1f", tt.variance)
		assert.Equal(t, tt.accepted, score.Accepted, "variance %.1f", tt.variance)
	}
}

func TestCheck(t *testing.T) {
	gate := NewGate(DefaultConfig(), nil)

	_, err := gate.Check(frameOf(t, image.NewGray(image.Rect(0, 0, 16, 16))))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrQualityRejected))
	assert.Contains(t, err.Error(), "very blurry")

	_, err = gate.Check(frameOf(t, noiseImage(t, 32, 32, 2)))
	assert.NoError(t, err)
}

func TestNewGateDefaults(t *testing.T) {
	gate := NewGate(Config{}, nil)
	assert.Equal(t, DefaultSharpThreshold, gate.Config().SharpThreshold)
	assert.Equal(t, DefaultIdealThreshold, gate.Config().IdealThreshold)
}

func TestMaxAnalysisEdge(t *testing.T) {
	gate := NewGate(Config{MaxAnalysisEdge: 32}, nil)
	score := gate.Score(frameOf(t, noiseImage(t, 128, 96, 4)))
	assert.Greater(t, score.Variance, 0.0)
}
