// Package identify runs captured cards through an ordered, confidence-gated
// chain of identification providers.
package identify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/model"
)

// Defaults for chain behavior.
const (
	DefaultThreshold   = 0.70
	DefaultCallTimeout = 60 * time.Second
	// DefaultFieldConfidence is assumed for a field a provider returned
	// without scoring it.
	DefaultFieldConfidence = 0.5
)

// Provider is one identification service in the chain.
type Provider interface {
	Name() string
	Attempt(ctx context.Context, req model.IdentificationRequest) (model.ProviderAttempt, error)
}

// SportDetector guesses a card's sport from its front image. A None result
// means the detector could not tell.
type SportDetector interface {
	DetectSport(ctx context.Context, front []byte) (model.Optional[model.Sport], error)
}

// Config tunes the chain.
type Config struct {
	Threshold   float64
	CallTimeout time.Duration
}

// DefaultConfig returns the standard threshold and timeout.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, CallTimeout: DefaultCallTimeout}
}

// Option customizes a Chain.
type Option func(*Chain)

// WithCache reuses results for identical requests.
func WithCache(cache *Cache) Option {
	return func(c *Chain) { c.cache = cache }
}

// WithMetrics records attempt and run metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(c *Chain) { c.metrics = metrics }
}

// WithSportDetector detects the sport of requests that arrive without a
// hint before any provider runs.
func WithSportDetector(detector SportDetector) Option {
	return func(c *Chain) { c.detector = detector }
}

// Chain tries providers in order until one is confident enough.
type Chain struct {
	logger    *slog.Logger
	cache     *Cache
	metrics   *Metrics
	detector  SportDetector
	providers []Provider
	cfg       Config
}

// NewChain creates a chain over providers in priority order.
func NewChain(providers []Provider, cfg Config, logger *slog.Logger, opts ...Option) (*Chain, error) {
	if len(providers) == 0 {
		return nil, common.ErrNoProviders
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	c := &Chain{
		providers: providers,
		cfg:       cfg,
		logger:    common.ComponentLogger(logger, "identify"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Providers returns the provider names in order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Close releases providers that hold local resources.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		if closer, ok := p.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}

// Identify runs the chain. It always returns a result: provider failures are
// recorded on their attempts and never stop the chain. A canceled context
// stops the chain early with whatever attempts were made.
func (c *Chain) Identify(ctx context.Context, req model.IdentificationRequest) model.IdentificationResult {
	if cached, ok := c.cache.Get(req); ok {
		c.metrics.observeRun(runCached)
		c.logger.Debug("identification cache hit", "provider", cached.Chosen.Provider)
		return cached
	}
	// Results are cached under the request as submitted.
	key := req
	req.SportHint = c.detectSport(ctx, req)

	result := model.IdentificationResult{
		Threshold: c.cfg.Threshold,
		Attempts:  make([]model.ProviderAttempt, 0, len(c.providers)),
	}

	for _, provider := range c.providers {
		if ctx.Err() != nil {
			c.metrics.observeRun(runCanceled)
			c.logger.Info("identification canceled", "attempts", len(result.Attempts))
			return result
		}

		attempt := c.attempt(ctx, provider, req)
		result.Attempts = append(result.Attempts, attempt)

		if attempt.Succeeded() && attempt.Confidence >= c.cfg.Threshold {
			result.Chosen = &result.Attempts[len(result.Attempts)-1]
			result.LowConfidenceFields = lowConfidenceFields(result.Chosen, c.cfg.Threshold)
			c.metrics.observeRun(runAccepted)
			c.logger.Info("card identified",
				"provider", attempt.Provider,
				"confidence", attempt.Confidence,
				"attempts", len(result.Attempts))
			c.cache.Set(key, result)
			return result
		}
	}

	result.Exhausted = true
	result.NeedsVerification = true
	if best := model.Attempts(result.Attempts).Best(); best >= 0 && result.Attempts[best].Succeeded() {
		result.Chosen = &result.Attempts[best]
		result.LowConfidenceFields = lowConfidenceFields(result.Chosen, c.cfg.Threshold)
	}
	c.metrics.observeRun(runExhausted)

	chosen := "none"
	if result.Chosen != nil {
		chosen = result.Chosen.Provider
	}
	c.logger.Warn("no provider reached confidence threshold",
		"error", common.ErrChainExhausted,
		"threshold", c.cfg.Threshold,
		"chosen", chosen,
		"confidence", result.Confidence(),
		"attempts", len(result.Attempts))
	return result
}

// detectSport returns the request's hint, or the detector's answer when the
// request has none. Detection failures leave the hint unset.
func (c *Chain) detectSport(ctx context.Context, req model.IdentificationRequest) model.Optional[model.Sport] {
	if req.SportHint.IsSome() || c.detector == nil || ctx.Err() != nil {
		return req.SportHint
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	sport, err := c.detector.DetectSport(callCtx, req.Front)
	if err != nil {
		c.logger.Warn("sport detection failed", "error", err)
		return req.SportHint
	}
	if detected, ok := sport.Get(); ok {
		c.logger.Debug("sport detected", "sport", detected)
	}
	return sport
}

// attempt invokes one provider under the per-call timeout and normalizes
// what comes back.
func (c *Chain) attempt(ctx context.Context, provider Provider, req model.IdentificationRequest) model.ProviderAttempt {
	name := provider.Name()
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	attempt, err := c.invoke(callCtx, provider, req)
	attempt.Duration = time.Since(start)
	attempt.Provider = name

	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err != nil {
		attempt.Err = common.ClassifyTransportError(name, err)
		attempt.Fields = nil
		attempt.Confidence = 0
		attempt.FieldConfidence = nil
		c.metrics.observeAttempt(name, outcomeOf(attempt.Err), attempt.Duration)
		c.logger.Warn("provider attempt failed",
			"provider", name,
			"duration", attempt.Duration,
			"error", attempt.Err)
		return attempt
	}

	normalizeAttempt(&attempt, req)
	outcome := outcomeSuccess
	if attempt.Err != nil {
		outcome = outcomeOf(attempt.Err)
	}
	c.metrics.observeAttempt(name, outcome, attempt.Duration)
	c.logger.Debug("provider attempt finished",
		"provider", name,
		"confidence", attempt.Confidence,
		"duration", attempt.Duration)
	return attempt
}

// invoke calls the provider, converting a panic into a failed attempt so one
// misbehaving provider cannot take the chain down.
func (c *Chain) invoke(ctx context.Context, provider Provider, req model.IdentificationRequest) (attempt model.ProviderAttempt, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = common.NewProviderError(provider.Name(), common.KindBadResponse, fmt.Errorf("provider panicked: %v", r))
		}
	}()
	return provider.Attempt(ctx, req)
}

// normalizeAttempt clamps confidences, fills sport from the hint and scores
// every field.
func normalizeAttempt(attempt *model.ProviderAttempt, req model.IdentificationRequest) {
	attempt.Confidence = clamp01(attempt.Confidence)
	if attempt.Fields == nil {
		attempt.Confidence = 0
		attempt.Err = common.NewProviderError(attempt.Provider, common.KindBadResponse, errors.New("no fields returned"))
		return
	}

	fields := attempt.Fields
	if !fields.Sport.IsSome() {
		if hint, ok := req.SportHint.Get(); ok {
			fields.Sport = model.Some(hint)
		}
	}

	scored := make(map[model.Field]float64, len(model.AllFields))
	for _, f := range model.AllFields {
		if !fields.Has(f) {
			scored[f] = 0
			continue
		}
		if v, ok := attempt.FieldConfidence[f]; ok {
			scored[f] = clamp01(v)
			continue
		}
		scored[f] = DefaultFieldConfidence
	}
	attempt.FieldConfidence = scored
}

// lowConfidenceFields lists fields of the chosen attempt below threshold, in
// display order.
func lowConfidenceFields(chosen *model.ProviderAttempt, threshold float64) []model.Field {
	var low []model.Field
	for _, f := range model.AllFields {
		if chosen.FieldConfidence[f] < threshold {
			low = append(low, f)
		}
	}
	return low
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
