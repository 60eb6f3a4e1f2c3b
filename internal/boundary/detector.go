// Package boundary finds the rectangular outline of a trading card in a frame.
package boundary

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/model"
)

// Detector locates a card in a frame. A nil result with a nil error means
// nothing card-shaped was found and the caller should use its fallback crop.
type Detector interface {
	Detect(ctx context.Context, frame model.Frame) (*model.BoundaryResult, error)
}

// Options tunes rectangle detection for the card aspect ratio.
type Options struct {
	// MaxObservations caps how many candidates a detector reports.
	MaxObservations int
	// MinConfidence drops weaker candidates.
	MinConfidence float64
	// MinAspect and MaxAspect bound short side / long side.
	MinAspect float64
	MaxAspect float64
	// QuadratureTolerance is the largest skew, in degrees, still accepted.
	QuadratureTolerance float64
	// TargetAspect is the ideal short side / long side.
	TargetAspect float64
	// MinAreaFraction ignores candidates smaller than this share of the frame.
	MinAreaFraction float64
	// AnalysisEdge downscales frames before detection. Results are
	// normalized, so this only trades precision for speed.
	AnalysisEdge int
}

// DefaultOptions returns the settings tuned for 2.5in x 3.5in cards.
func DefaultOptions() Options {
	return Options{
		MaxObservations:     1,
		MinConfidence:       0.6,
		MinAspect:           0.65,
		MaxAspect:           0.80,
		QuadratureTolerance: 20,
		TargetAspect:        model.CardAspectRatio,
		MinAreaFraction:     0.05,
		AnalysisEdge:        512,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.MaxObservations < 1 {
		return fmt.Errorf("%w: max observations must be at least 1", common.ErrInvalidConfig)
	}
	if o.MinConfidence < 0 || o.MinConfidence > 1 {
		return fmt.Errorf("%w: min confidence must be between 0 and 1", common.ErrInvalidConfig)
	}
	if o.MinAspect <= 0 || o.MaxAspect > 1 || o.MinAspect >= o.MaxAspect {
		return fmt.Errorf("%w: aspect band [%.2f, %.2f] is invalid", common.ErrInvalidConfig, o.MinAspect, o.MaxAspect)
	}
	if o.TargetAspect < o.MinAspect || o.TargetAspect > o.MaxAspect {
		return fmt.Errorf("%w: target aspect %.3f outside band", common.ErrInvalidConfig, o.TargetAspect)
	}
	if o.QuadratureTolerance < 0 || o.QuadratureTolerance >= 45 {
		return fmt.Errorf("%w: quadrature tolerance must be in [0, 45)", common.ErrInvalidConfig)
	}
	return nil
}

// aspectScore is 1 at the target aspect and falls to 0 at the band edges.
func (o Options) aspectScore(aspect float64) float64 {
	if aspect < o.MinAspect || aspect > o.MaxAspect {
		return 0
	}
	span := max(o.TargetAspect-o.MinAspect, o.MaxAspect-o.TargetAspect)
	if span <= 0 {
		return 1
	}
	d := aspect - o.TargetAspect
	if d < 0 {
		d = -d
	}
	return 1 - d/span
}

// accept filters and orders candidates per the options.
func (o Options) accept(candidates []model.BoundaryResult) []model.BoundaryResult {
	kept := candidates[:0]
	for _, c := range candidates {
		if c.Confidence >= o.MinConfidence {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Confidence > kept[j].Confidence
	})
	if len(kept) > o.MaxObservations {
		kept = kept[:o.MaxObservations]
	}
	return kept
}

// Factory builds a named detector.
type Factory func(opts Options, logger *slog.Logger) (Detector, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a detector available by name. Detectors backed by native
// libraries register themselves from build-tagged files.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New builds the named detector.
func New(name string, opts Options, logger *slog.Logger) (Detector, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown boundary detector %q (available: %v)", common.ErrInvalidConfig, name, Names())
	}
	return factory(opts, logger)
}

// Names lists registered detectors.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
