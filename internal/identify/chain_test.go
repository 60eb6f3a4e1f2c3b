package identify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/model"
)

// fakeProvider returns a canned attempt and counts calls.
type fakeProvider struct {
	err        error
	fields     *model.CardFields
	fieldConf  map[model.Field]float64
	name       string
	confidence float64
	calls      atomic.Int32
	block      bool
	panics     bool
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Attempt(ctx context.Context, _ model.IdentificationRequest) (model.ProviderAttempt, error) {
	f.calls.Add(1)
	if f.panics {
		panic("boom")
	}
	if f.block {
		<-ctx.Done()
		return model.ProviderAttempt{}, ctx.Err()
	}
	if f.err != nil {
		return model.ProviderAttempt{}, f.err
	}
	fields := f.fields
	if fields == nil {
		fields = &model.CardFields{PlayerName: model.Some(f.name + " player")}
	}
	return model.ProviderAttempt{
		Confidence:      f.confidence,
		Fields:          fields,
		FieldConfidence: f.fieldConf,
	}, nil
}

func providersWith(confidences ...float64) ([]Provider, []*fakeProvider) {
	names := []string{"a", "b", "c", "d", "e"}
	providers := make([]Provider, len(confidences))
	fakes := make([]*fakeProvider, len(confidences))
	for i, c := range confidences {
		fakes[i] = &fakeProvider{name: names[i], confidence: c}
		providers[i] = fakes[i]
	}
	return providers, fakes
}

func newTestChain(t *testing.T, providers []Provider, opts ...Option) *Chain {
	t.Helper()
	chain, err := NewChain(providers, DefaultConfig(), common.DiscardLogger(), opts...)
	require.NoError(t, err)
	return chain
}

var testRequest = model.IdentificationRequest{Front: []byte("front"), Back: []byte("back")}

func TestChainShortCircuit(t *testing.T) {
	providers, fakes := providersWith(0.4, 0.85, 0.99)
	chain := newTestChain(t, providers)

	result := chain.Identify(context.Background(), testRequest)

	require.NotNil(t, result.Chosen)
	assert.Equal(t, "b", result.Chosen.Provider)
	assert.InDelta(t, 0.85, result.Confidence(), 1e-9)
	assert.Len(t, result.Attempts, 2)
	assert.False(t, result.Exhausted)
	assert.False(t, result.NeedsVerification)
	assert.Equal(t, int32(1), fakes[0].calls.Load())
	assert.Equal(t, int32(1), fakes[1].calls.Load())
	assert.Equal(t, int32(0), fakes[2].calls.Load())
}

func TestChainExhaustion(t *testing.T) {
	providers, fakes := providersWith(0.3, 0.5, 0.6)
	chain := newTestChain(t, providers)

	result := chain.Identify(context.Background(), testRequest)

	require.NotNil(t, result.Chosen)
	assert.Equal(t, "c", result.Chosen.Provider)
	assert.InDelta(t, 0.6, result.Chosen.Confidence, 1e-9)
	require.Len(t, result.Attempts, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{
		result.Attempts[0].Provider, result.Attempts[1].Provider, result.Attempts[2].Provider,
	})
	assert.True(t, result.Exhausted)
	assert.True(t, result.NeedsVerification)
	for _, f := range fakes {
		assert.Equal(t, int32(1), f.calls.Load())
	}
}

func TestChainExhaustionTiesPickEarliest(t *testing.T) {
	providers, _ := providersWith(0.5, 0.5, 0.2)
	result := newTestChain(t, providers).Identify(context.Background(), testRequest)
	require.NotNil(t, result.Chosen)
	assert.Equal(t, "a", result.Chosen.Provider)
}

func TestChainProviderFailuresAreNotFatal(t *testing.T) {
	failing := &fakeProvider{name: "down", err: common.ProviderErrorFromStatus("down", 503, "unavailable")}
	network := &fakeProvider{name: "net", err: errors.New("connection refused")}
	panicky := &fakeProvider{name: "panicky", panics: true}
	good := &fakeProvider{name: "good", confidence: 0.8}
	chain := newTestChain(t, []Provider{failing, network, panicky, good})

	result := chain.Identify(context.Background(), testRequest)

	require.NotNil(t, result.Chosen)
	assert.Equal(t, "good", result.Chosen.Provider)
	require.Len(t, result.Attempts, 4)

	for i, want := range []common.ProviderErrorKind{common.KindServer, common.KindNetwork, common.KindBadResponse} {
		attempt := result.Attempts[i]
		require.Error(t, attempt.Err)
		assert.True(t, errors.Is(attempt.Err, common.ErrProvider))
		var pe *common.ProviderError
		require.True(t, errors.As(attempt.Err, &pe))
		assert.Equal(t, want, pe.Kind)
		assert.Nil(t, attempt.Fields)
		assert.Zero(t, attempt.Confidence)
	}
}

func TestChainPerCallTimeout(t *testing.T) {
	slow := &fakeProvider{name: "slow", block: true}
	fast := &fakeProvider{name: "fast", confidence: 0.9}
	chain, err := NewChain([]Provider{slow, fast}, Config{CallTimeout: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	result := chain.Identify(context.Background(), testRequest)

	require.NotNil(t, result.Chosen)
	assert.Equal(t, "fast", result.Chosen.Provider)
	var pe *common.ProviderError
	require.True(t, errors.As(result.Attempts[0].Err, &pe))
	assert.Equal(t, common.KindTimeout, pe.Kind)
}

func TestChainAllFailed(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("nope")}
	b := &fakeProvider{name: "b", err: errors.New("nope")}
	result := newTestChain(t, []Provider{a, b}).Identify(context.Background(), testRequest)

	assert.Nil(t, result.Chosen)
	assert.Nil(t, result.Fields())
	assert.True(t, result.Exhausted)
	assert.Len(t, result.Attempts, 2)
}

func TestChainCanceledContext(t *testing.T) {
	providers, fakes := providersWith(0.9)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := newTestChain(t, providers).Identify(ctx, testRequest)

	assert.Empty(t, result.Attempts)
	assert.Nil(t, result.Chosen)
	assert.False(t, result.Exhausted)
	assert.Equal(t, int32(0), fakes[0].calls.Load())
}

func TestChainFieldConfidence(t *testing.T) {
	p := &fakeProvider{
		name:       "vlm",
		confidence: 0.75,
		fields: &model.CardFields{
			PlayerName: model.Some("Caitlin Clark"),
			Year:       model.Some("2024"),
			Team:       model.Some("Indiana Fever"),
		},
		fieldConf: map[model.Field]float64{
			model.FieldPlayerName: 0.95,
			model.FieldTeam:       1.7,
			model.FieldSet:        0.9,
		},
	}
	req := testRequest
	req.SportHint = model.Some(model.SportBasketball)

	result := newTestChain(t, []Provider{p}).Identify(context.Background(), req)
	require.NotNil(t, result.Chosen)

	conf := result.Chosen.FieldConfidence
	assert.InDelta(t, 0.95, conf[model.FieldPlayerName], 1e-9)
	assert.InDelta(t, 1.0, conf[model.FieldTeam], 1e-9)
	assert.InDelta(t, DefaultFieldConfidence, conf[model.FieldYear], 1e-9)
	assert.Zero(t, conf[model.FieldSet], "unknown fields score zero even when the provider scored them")
	assert.Zero(t, conf[model.FieldEstimatedValue])
	assert.Len(t, conf, len(model.AllFields))

	sport, ok := result.Fields().Sport.Get()
	require.True(t, ok)
	assert.Equal(t, model.SportBasketball, sport)

	assert.Contains(t, result.LowConfidenceFields, model.FieldYear)
	assert.Contains(t, result.LowConfidenceFields, model.FieldSet)
	assert.NotContains(t, result.LowConfidenceFields, model.FieldPlayerName)
	assert.NotContains(t, result.LowConfidenceFields, model.FieldTeam)
}

func TestChainCacheAndMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(registry)
	require.NoError(t, err)
	cache := NewCache(time.Minute)

	providers, fakes := providersWith(0.2, 0.9)
	chain := newTestChain(t, providers, WithCache(cache), WithMetrics(metrics))

	first := chain.Identify(context.Background(), testRequest)
	second := chain.Identify(context.Background(), testRequest)

	require.NotNil(t, second.Chosen)
	assert.Equal(t, first.Chosen.Provider, second.Chosen.Provider)
	assert.Same(t, &second.Attempts[1], second.Chosen)
	assert.Equal(t, int32(1), fakes[1].calls.Load())
	assert.Equal(t, 1, cache.Len())

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.runsTotal.WithLabelValues(runAccepted)), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.runsTotal.WithLabelValues(runCached)), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.attemptsTotal.WithLabelValues("a", outcomeSuccess)), 1e-9)

	other := model.IdentificationRequest{Front: []byte("other")}
	chain.Identify(context.Background(), other)
	assert.Equal(t, int32(2), fakes[1].calls.Load())
}

func TestCacheSkipsUnchosen(t *testing.T) {
	cache := NewCache(0)
	cache.Set(testRequest, model.IdentificationResult{Exhausted: true})
	_, ok := cache.Get(testRequest)
	assert.False(t, ok)

	var nilCache *Cache
	nilCache.Set(testRequest, model.IdentificationResult{})
	_, ok = nilCache.Get(testRequest)
	assert.False(t, ok)
	assert.Zero(t, nilCache.Len())
}

func TestCacheKey(t *testing.T) {
	base := CacheKey(testRequest)
	assert.Equal(t, base, CacheKey(model.IdentificationRequest{Front: []byte("front"), Back: []byte("back")}))

	hinted := testRequest
	hinted.SportHint = model.Some(model.SportHockey)
	assert.NotEqual(t, base, CacheKey(hinted))

	// Moving bytes between front and back must change the key.
	assert.NotEqual(t,
		CacheKey(model.IdentificationRequest{Front: []byte("ab"), Back: []byte("c")}),
		CacheKey(model.IdentificationRequest{Front: []byte("a"), Back: []byte("bc")}))
}

func TestNewChainRequiresProviders(t *testing.T) {
	_, err := NewChain(nil, DefaultConfig(), nil)
	assert.ErrorIs(t, err, common.ErrNoProviders)

	providers, _ := providersWith(0.1)
	chain, err := NewChain(providers, Config{Threshold: 5}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, chain.cfg.Threshold)
	assert.Equal(t, []string{"a"}, chain.Providers())
}

// fakeDetector answers with a fixed sport and counts calls.
type fakeDetector struct {
	err   error
	sport model.Optional[model.Sport]
	calls atomic.Int32
}

func (d *fakeDetector) DetectSport(context.Context, []byte) (model.Optional[model.Sport], error) {
	d.calls.Add(1)
	return d.sport, d.err
}

// hintRecorder reports the sport hint each provider call received.
type hintRecorder struct {
	hints []model.Optional[model.Sport]
}

func (h *hintRecorder) Name() string { return "recorder" }

func (h *hintRecorder) Attempt(_ context.Context, req model.IdentificationRequest) (model.ProviderAttempt, error) {
	h.hints = append(h.hints, req.SportHint)
	return model.ProviderAttempt{
		Confidence: 0.9,
		Fields:     &model.CardFields{PlayerName: model.Some("Sue Bird")},
	}, nil
}

func TestChainSportDetection(t *testing.T) {
	tests := []struct {
		name       string
		hint       model.Optional[model.Sport]
		detector   *fakeDetector
		wantHint   model.Optional[model.Sport]
		wantDetect int32
	}{
		{
			name:       "detected sport becomes the hint",
			detector:   &fakeDetector{sport: model.Some(model.SportBasketball)},
			wantHint:   model.Some(model.SportBasketball),
			wantDetect: 1,
		},
		{
			name:       "caller hint wins",
			hint:       model.Some(model.SportHockey),
			detector:   &fakeDetector{sport: model.Some(model.SportBasketball)},
			wantHint:   model.Some(model.SportHockey),
			wantDetect: 0,
		},
		{
			name:       "undetermined sport leaves no hint",
			detector:   &fakeDetector{sport: model.None[model.Sport]()},
			wantDetect: 1,
		},
		{
			name:       "detector failure is ignored",
			detector:   &fakeDetector{err: errors.New("quota exceeded")},
			wantDetect: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &hintRecorder{}
			chain := newTestChain(t, []Provider{recorder}, WithSportDetector(tt.detector))

			req := model.IdentificationRequest{Front: []byte("front"), SportHint: tt.hint}
			result := chain.Identify(context.Background(), req)

			require.NotNil(t, result.Chosen)
			require.Len(t, recorder.hints, 1)
			assert.Equal(t, tt.wantHint, recorder.hints[0])
			assert.Equal(t, tt.wantHint, result.Fields().Sport)
			assert.Equal(t, tt.wantDetect, tt.detector.calls.Load())
		})
	}
}

func TestChainSportDetectionCachedUnderSubmittedRequest(t *testing.T) {
	detector := &fakeDetector{sport: model.Some(model.SportFootball)}
	recorder := &hintRecorder{}
	chain := newTestChain(t, []Provider{recorder}, WithSportDetector(detector), WithCache(NewCache(time.Minute)))

	req := model.IdentificationRequest{Front: []byte("front")}
	chain.Identify(context.Background(), req)
	cached := chain.Identify(context.Background(), req)

	require.NotNil(t, cached.Chosen)
	assert.Equal(t, int32(1), detector.calls.Load())
	assert.Len(t, recorder.hints, 1)
	assert.Equal(t, model.Some(model.SportFootball), cached.Fields().Sport)
}
