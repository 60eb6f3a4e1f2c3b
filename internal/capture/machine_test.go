package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/crop"
	"github.com/Veraticus/collectorstream/internal/model"
	"github.com/Veraticus/collectorstream/internal/quality"
	"github.com/Veraticus/collectorstream/internal/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func noiseImage(seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, 70, 100))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

func sharpFrame(t *testing.T) model.Frame {
	t.Helper()
	f, err := model.NewFrame(noiseImage(1), model.OrientationUp)
	require.NoError(t, err)
	return f
}

func blurryFrame(t *testing.T) model.Frame {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 70, 100))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	f, err := model.NewFrame(img, model.OrientationUp)
	require.NoError(t, err)
	return f
}

// fakeCamera hands out a fixed frame, or an error, for every still.
type fakeCamera struct {
	err     error
	frame   model.Frame
	stills  int
	preview time.Duration
	mu      sync.Mutex
}

func (c *fakeCamera) Still(ctx context.Context) <-chan StillResult {
	c.mu.Lock()
	c.stills++
	c.mu.Unlock()
	out := make(chan StillResult, 1)
	out <- StillResult{Frame: c.frame, Err: c.err}
	close(out)
	return out
}

func (c *fakeCamera) Preview(ctx context.Context) (<-chan model.Frame, error) {
	out := make(chan model.Frame)
	go func() {
		defer close(out)
		ticker := time.NewTicker(c.preview)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			select {
			case out <- c.frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// fakeIdentifier returns a canned result, optionally blocking until its
// context ends.
type fakeIdentifier struct {
	started chan struct{}
	ctxErr  error
	result  model.IdentificationResult
	reqs    []model.IdentificationRequest
	mu      sync.Mutex
	block   bool
}

func (f *fakeIdentifier) Identify(ctx context.Context, req model.IdentificationRequest) model.IdentificationResult {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.block {
		f.started <- struct{}{}
		<-ctx.Done()
		f.mu.Lock()
		f.ctxErr = ctx.Err()
		f.mu.Unlock()
	}
	return f.result
}

func (f *fakeIdentifier) requests() []model.IdentificationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.IdentificationRequest(nil), f.reqs...)
}

type memCards struct {
	err     error
	uploads []model.CardUpload
}

func (s *memCards) SaveCard(_ context.Context, card model.CardUpload) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.uploads = append(s.uploads, card)
	return int64(len(s.uploads)), nil
}

func (s *memCards) GetCard(context.Context, int64) (*model.Card, error) { return nil, common.ErrNotFound }

func (s *memCards) ListCards(context.Context, service.CardFilter) ([]model.Card, error) {
	return nil, nil
}

func (s *memCards) UpdateMarketValue(context.Context, int64, model.Valuation) error { return nil }

type memImages struct {
	saved map[model.Side]int
}

func (s *memImages) SaveImage(_ context.Context, side model.Side, jpeg []byte) (string, error) {
	if len(jpeg) == 0 {
		return "", errors.New("empty image")
	}
	if s.saved == nil {
		s.saved = map[model.Side]int{}
	}
	s.saved[side]++
	return "cards/" + string(side) + ".jpg", nil
}

var identified = func() model.IdentificationResult {
	attempts := []model.ProviderAttempt{{
		Provider:   "vlm",
		Confidence: 0.9,
		Fields: &model.CardFields{
			PlayerName:      model.Some("Caitlin Clark"),
			Sport:           model.Some(model.SportBasketball),
			SportProvenance: model.Some("wnba"),
			Year:            model.Some("2024"),
		},
	}}
	return model.IdentificationResult{Attempts: attempts, Chosen: &attempts[0], Threshold: 0.7}
}()

func newTestMachine(t *testing.T, deps Deps, cfg Config) *Machine {
	t.Helper()
	if deps.Gate == nil {
		deps.Gate = quality.NewGate(quality.DefaultConfig(), common.DiscardLogger())
	}
	if deps.Extractor == nil {
		deps.Extractor = crop.NewExtractor(nil, crop.DefaultConfig(), common.DiscardLogger())
	}
	if deps.Identifier == nil {
		deps.Identifier = &fakeIdentifier{result: identified}
	}
	m, err := NewMachine(deps, cfg, common.DiscardLogger())
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func fastConfig() Config {
	return Config{StabilizationDelay: time.Millisecond, MessageTTL: time.Hour}
}

// toReviewBack drives a machine to ReviewBack with sharp frames.
func toReviewBack(t *testing.T, m *Machine) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.StartScan())
	require.NoError(t, m.Submit(ctx, sharpFrame(t)))
	m.Wait()
	require.Equal(t, StateReviewFront, m.State())
	require.NoError(t, m.ConfirmFront())
	require.NoError(t, m.Submit(ctx, sharpFrame(t)))
	m.Wait()
	require.Equal(t, StateReviewBack, m.State())
}

func waitForEvent(t *testing.T, m *Machine, kind EventKind) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-m.Events():
			require.True(t, ok, "event channel closed")
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestMachineHappyPath(t *testing.T) {
	ctx := context.Background()
	camera := &fakeCamera{frame: sharpFrame(t)}
	identifier := &fakeIdentifier{result: identified}
	cards := &memCards{}
	images := &memImages{}
	cfg := fastConfig()
	cfg.SportHint = model.Some(model.SportBasketball)
	m := newTestMachine(t, Deps{Camera: camera, Identifier: identifier, Cards: cards, Images: images}, cfg)

	require.NoError(t, m.StartScan())
	assert.Equal(t, StateScanningFront, m.State())
	assert.NotEmpty(t, m.Snapshot().ID)

	require.NoError(t, m.Capture(ctx))
	m.Wait()
	snap := m.Snapshot()
	require.Equal(t, StateReviewFront, snap.State)
	require.NotNil(t, snap.Front)
	assert.Equal(t, model.SideFront, snap.Front.Side)
	assert.True(t, snap.Front.Quality.Accepted)

	require.NoError(t, m.ConfirmFront())
	require.NoError(t, m.Capture(ctx))
	m.Wait()
	require.Equal(t, StateReviewBack, m.State())
	assert.Equal(t, model.SideBack, m.Snapshot().Back.Side)

	require.NoError(t, m.ConfirmBack())
	m.Wait()
	snap = m.Snapshot()
	require.Equal(t, StateIdentified, snap.State)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "vlm", snap.Result.Chosen.Provider)
	assert.Equal(t, 2, camera.stills)

	reqs := identifier.requests()
	require.Len(t, reqs, 1)
	assert.NotEmpty(t, reqs[0].Front)
	assert.NotEmpty(t, reqs[0].Back)
	assert.Equal(t, model.SportBasketball, reqs[0].SportHint.OrElse(""))

	id, err := m.Save(ctx, Edits{Notes: model.Some("binder 3")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, StateReady, m.State())
	assert.Empty(t, m.Snapshot().ID)

	require.Len(t, cards.uploads, 1)
	upload := cards.uploads[0]
	assert.Equal(t, "cards/front.jpg", upload.FrontImageRef)
	assert.Equal(t, "cards/back.jpg", upload.BackImageRef.OrElse(""))
	assert.Equal(t, "Caitlin Clark", upload.PlayerName.OrElse(""))
	assert.Equal(t, "wnba", upload.SportProvenance.OrElse(""))
	assert.Equal(t, "binder 3", upload.Notes.OrElse(""))
	assert.Equal(t, "vlm", upload.Provider.OrElse(""))
	assert.Equal(t, map[model.Side]int{model.SideFront: 1, model.SideBack: 1}, images.saved)
}

func TestMachineReviewFrontLegality(t *testing.T) {
	assert.Equal(t, []Action{ActionConfirmFront, ActionRetakeFront, ActionCancel}, Legal(StateReviewFront))

	ctx := context.Background()
	m := newTestMachine(t, Deps{Cards: &memCards{}, Images: &memImages{}}, fastConfig())
	require.NoError(t, m.StartScan())
	require.NoError(t, m.Submit(ctx, sharpFrame(t)))
	m.Wait()
	require.Equal(t, StateReviewFront, m.State())
	front := m.Snapshot().Front

	illegal := map[string]func() error{
		"start scan":   m.StartScan,
		"confirm back": m.ConfirmBack,
		"retake back":  m.RetakeBack,
		"capture":      func() error { return m.Capture(ctx) },
		"submit":       func() error { return m.Submit(ctx, sharpFrame(t)) },
		"save":         func() error { _, err := m.Save(ctx, Edits{}); return err },
	}
	for name, action := range illegal {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, action(), common.ErrIllegalTransition)
			assert.Equal(t, StateReviewFront, m.State())
			assert.Same(t, front, m.Snapshot().Front)
		})
	}

	require.NoError(t, m.RetakeFront())
	assert.Equal(t, StateScanningFront, m.State())
	assert.Nil(t, m.Snapshot().Front)
}

func TestMachineTransitionTable(t *testing.T) {
	tests := []struct {
		from   State
		action Action
		to     State
		legal  bool
	}{
		{StateReady, ActionStartScan, StateScanningFront, true},
		{StateReady, ActionCancel, StateReady, false},
		{StateScanningFront, ActionFrameRejected, StateScanningFront, true},
		{StateScanningFront, ActionConfirmFront, StateReady, false},
		{StateReviewBack, ActionConfirmBack, StateProcessing, true},
		{StateReviewBack, ActionRetakeBack, StateScanningBack, true},
		{StateProcessing, ActionCompleted, StateIdentified, true},
		{StateProcessing, ActionConfirmBack, StateReady, false},
		{StateIdentified, ActionSave, StateReady, true},
		{StateError, ActionCancel, StateReady, true},
		{StateError, ActionStartScan, StateReady, false},
	}
	for _, tt := range tests {
		to, ok := Next(tt.from, tt.action)
		assert.Equal(t, tt.legal, ok, "%s in %s", tt.action, tt.from)
		if ok {
			assert.Equal(t, tt.to, to, "%s in %s", tt.action, tt.from)
		}
	}

	for _, s := range []State{StateScanningFront, StateReviewFront, StateScanningBack, StateReviewBack, StateProcessing, StateIdentified, StateError} {
		to, ok := Next(s, ActionCancel)
		assert.True(t, ok, s.String())
		assert.Equal(t, StateReady, to)
	}
}

func TestMachineFrameRejected(t *testing.T) {
	cfg := fastConfig()
	cfg.MessageTTL = 30 * time.Millisecond
	m := newTestMachine(t, Deps{}, cfg)

	require.NoError(t, m.StartScan())
	require.NoError(t, m.Submit(context.Background(), blurryFrame(t)))
	m.Wait()

	ev := waitForEvent(t, m, EventMessage)
	assert.Equal(t, quality.Message(model.RatingVeryBlurry), ev.Snapshot.Message)
	assert.Equal(t, StateScanningFront, ev.Snapshot.State)
	assert.Nil(t, ev.Snapshot.Front)
	require.NotNil(t, ev.Snapshot.Quality)
	assert.False(t, ev.Snapshot.Quality.Accepted)

	cleared := waitForEvent(t, m, EventMessageCleared)
	assert.Empty(t, cleared.Snapshot.Message)
	assert.Equal(t, StateScanningFront, m.State())
}

func TestMachineAcceptedFrameClearsMessage(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine(t, Deps{}, fastConfig())

	require.NoError(t, m.StartScan())
	require.NoError(t, m.Submit(ctx, blurryFrame(t)))
	m.Wait()
	require.NotEmpty(t, m.Snapshot().Message)

	require.NoError(t, m.Submit(ctx, sharpFrame(t)))
	m.Wait()
	assert.Empty(t, m.Snapshot().Message)
	assert.Equal(t, StateReviewFront, m.State())
}

func TestMachineCameraFailure(t *testing.T) {
	camera := &fakeCamera{err: errors.New("shutter jammed")}
	m := newTestMachine(t, Deps{Camera: camera}, fastConfig())

	require.NoError(t, m.StartScan())
	require.NoError(t, m.Capture(context.Background()))
	m.Wait()

	snap := m.Snapshot()
	assert.Equal(t, StateScanningFront, snap.State)
	assert.Equal(t, captureFailedMessage, snap.Message)
}

func TestMachineStabilizationDelay(t *testing.T) {
	cfg := fastConfig()
	cfg.StabilizationDelay = 50 * time.Millisecond
	m := newTestMachine(t, Deps{Camera: &fakeCamera{frame: sharpFrame(t)}}, cfg)

	require.NoError(t, m.StartScan())
	start := time.Now()
	require.NoError(t, m.Capture(context.Background()))
	assert.Equal(t, StateScanningFront, m.State(), "capture must not block the caller")
	m.Wait()
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, StateReviewFront, m.State())
}

func TestMachineCaptureBusyAndCancel(t *testing.T) {
	cfg := fastConfig()
	cfg.StabilizationDelay = time.Hour
	camera := &fakeCamera{frame: sharpFrame(t)}
	m := newTestMachine(t, Deps{Camera: camera}, cfg)

	require.NoError(t, m.StartScan())
	require.NoError(t, m.Capture(context.Background()))
	assert.ErrorIs(t, m.Capture(context.Background()), ErrBusy)

	require.NoError(t, m.Cancel())
	m.Wait()
	assert.Equal(t, StateReady, m.State())
	assert.Zero(t, camera.stills)

	// A fresh session is not blocked by the abandoned capture.
	require.NoError(t, m.StartScan())
	require.NoError(t, m.Submit(context.Background(), sharpFrame(t)))
	m.Wait()
	assert.Equal(t, StateReviewFront, m.State())
}

func TestMachineCallerContextStopsCapture(t *testing.T) {
	cfg := fastConfig()
	cfg.StabilizationDelay = time.Hour
	m := newTestMachine(t, Deps{Camera: &fakeCamera{frame: sharpFrame(t)}}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.StartScan())
	require.NoError(t, m.Capture(ctx))
	cancel()
	m.Wait()

	assert.Equal(t, StateScanningFront, m.State())
	assert.Equal(t, captureFailedMessage, m.Snapshot().Message)
}

func TestMachineCancelIgnoresInFlightIdentification(t *testing.T) {
	identifier := &fakeIdentifier{result: identified, block: true, started: make(chan struct{}, 1)}
	m := newTestMachine(t, Deps{Identifier: identifier}, fastConfig())
	toReviewBack(t, m)

	require.NoError(t, m.ConfirmBack())
	assert.Equal(t, StateProcessing, m.State())
	<-identifier.started

	require.NoError(t, m.Cancel())
	m.Wait()

	snap := m.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Nil(t, snap.Result)
	assert.Nil(t, snap.Front)
	identifier.mu.Lock()
	assert.ErrorIs(t, identifier.ctxErr, context.Canceled)
	identifier.mu.Unlock()
}

func TestMachineStaleResultDoesNotLeakIntoNewSession(t *testing.T) {
	identifier := &fakeIdentifier{result: identified, block: true, started: make(chan struct{}, 1)}
	m := newTestMachine(t, Deps{Identifier: identifier}, fastConfig())
	toReviewBack(t, m)
	require.NoError(t, m.ConfirmBack())
	<-identifier.started

	require.NoError(t, m.Cancel())
	require.NoError(t, m.StartScan())
	m.Wait()

	assert.Equal(t, StateScanningFront, m.State())
	assert.Nil(t, m.Snapshot().Result)
}

func TestMachineConfirmBackWithoutFront(t *testing.T) {
	identifier := &fakeIdentifier{result: identified}
	m := newTestMachine(t, Deps{Identifier: identifier}, fastConfig())
	toReviewBack(t, m)

	m.mu.Lock()
	m.session.front = nil
	m.mu.Unlock()

	err := m.ConfirmBack()
	require.ErrorIs(t, err, common.ErrSessionInvalid)
	m.Wait()

	snap := m.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.ErrorIs(t, snap.Err, common.ErrSessionInvalid)
	assert.Empty(t, identifier.requests())

	assert.Equal(t, []Action{ActionCancel}, Legal(StateError))
	assert.ErrorIs(t, m.StartScan(), common.ErrIllegalTransition)
	require.NoError(t, m.Cancel())
	assert.Equal(t, StateReady, m.State())
}

func TestMachineLowConfidenceStillIdentified(t *testing.T) {
	attempts := []model.ProviderAttempt{{Provider: "weak", Confidence: 0.3, Fields: &model.CardFields{}}}
	weak := model.IdentificationResult{
		Attempts: attempts, Chosen: &attempts[0], Exhausted: true, NeedsVerification: true,
	}
	m := newTestMachine(t, Deps{Identifier: &fakeIdentifier{result: weak}}, fastConfig())
	toReviewBack(t, m)

	require.NoError(t, m.ConfirmBack())
	m.Wait()
	snap := m.Snapshot()
	assert.Equal(t, StateIdentified, snap.State)
	assert.True(t, snap.Result.NeedsVerification)
}

func TestMachineSave(t *testing.T) {
	ctx := context.Background()

	t.Run("requires stores", func(t *testing.T) {
		m := newTestMachine(t, Deps{}, fastConfig())
		toReviewBack(t, m)
		require.NoError(t, m.ConfirmBack())
		m.Wait()
		_, err := m.Save(ctx, Edits{})
		assert.ErrorIs(t, err, ErrNoStore)
		assert.Equal(t, StateIdentified, m.State())
	})

	t.Run("store failure keeps the session", func(t *testing.T) {
		cards := &memCards{err: errors.New("disk full")}
		m := newTestMachine(t, Deps{Cards: cards, Images: &memImages{}}, fastConfig())
		toReviewBack(t, m)
		require.NoError(t, m.ConfirmBack())
		m.Wait()

		_, err := m.Save(ctx, Edits{})
		require.Error(t, err)
		assert.Equal(t, StateIdentified, m.State())

		cards.err = nil
		id, err := m.Save(ctx, Edits{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), id)
		ev := waitForEvent(t, m, EventSaved)
		assert.Equal(t, int64(1), ev.CardID)
		assert.Equal(t, StateReady, ev.Snapshot.State)
	})
}

func TestMachineWatch(t *testing.T) {
	camera := &fakeCamera{frame: sharpFrame(t), preview: 5 * time.Millisecond}
	m := newTestMachine(t, Deps{Camera: camera}, fastConfig())
	require.NoError(t, m.StartScan())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Watch(ctx))

	ev := waitForEvent(t, m, EventPreview)
	require.NotNil(t, ev.Quality)
	assert.True(t, ev.Quality.Accepted)
}

func TestMachineClose(t *testing.T) {
	m := newTestMachine(t, Deps{}, fastConfig())
	require.NoError(t, m.StartScan())
	m.Close()
	m.Close()

	assert.ErrorIs(t, m.Cancel(), ErrClosed)
	assert.ErrorIs(t, m.Submit(context.Background(), sharpFrame(t)), ErrClosed)
	for range m.Events() {
	}
}

func TestNewMachineRequiresDeps(t *testing.T) {
	_, err := NewMachine(Deps{}, DefaultConfig(), nil)
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestBuildUpload(t *testing.T) {
	result := identified
	upload := BuildUpload(&result, Edits{
		Sport:         model.Some(model.SportFootball),
		Team:          model.Some("Chiefs"),
		PurchasePrice: model.Some(12.5),
		Grading:       &model.Grading{Company: model.Some("PSA"), Grade: model.Some("10")},
	})
	assert.Equal(t, "Caitlin Clark", upload.PlayerName.OrElse(""))
	assert.Equal(t, "Chiefs", upload.Team.OrElse(""))
	assert.Equal(t, model.SportFootball, upload.Sport.OrElse(""))
	assert.False(t, upload.SportProvenance.IsSome())
	assert.InDelta(t, 12.5, upload.PurchasePrice.OrElse(0), 1e-9)
	assert.Equal(t, "PSA", upload.Grading.Company.OrElse(""))
	assert.InDelta(t, 0.9, upload.Confidence, 1e-9)

	manual := BuildUpload(nil, Edits{PlayerName: model.Some("Unknown Rookie")})
	assert.False(t, manual.Provider.IsSome())
	assert.Equal(t, "Unknown Rookie", manual.PlayerName.OrElse(""))
}

func TestFileCamera(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"b.png", "a.png"} {
		img := image.NewGray(image.Rect(0, 0, 10+i, 10))
		img.Set(0, 0, color.Gray{Y: 255})
		f, err := os.Create(filepath.Join(dir, name))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	camera, err := NewDirCamera(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, camera.Remaining())

	ctx := context.Background()
	first := <-camera.Still(ctx)
	require.NoError(t, first.Err)
	assert.Equal(t, 11, first.Frame.Width, "a.png sorts first")

	second := <-camera.Still(ctx)
	require.NoError(t, second.Err)
	assert.Equal(t, 10, second.Frame.Width)

	third := <-camera.Still(ctx)
	assert.ErrorIs(t, third.Err, ErrNoMoreFrames)

	_, err = NewDirCamera(t.TempDir())
	assert.Error(t, err)
}

func TestFileCameraRotatesUpright(t *testing.T) {
	dir := t.TempDir()
	img := image.NewGray(image.Rect(0, 0, 30, 20))
	f, err := os.Create(filepath.Join(dir, "sideways.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	tests := []struct {
		orientation model.Orientation
		wantWidth   int
		wantHeight  int
	}{
		{orientation: model.OrientationUp, wantWidth: 30, wantHeight: 20},
		{orientation: model.OrientationRight, wantWidth: 20, wantHeight: 30},
		{orientation: model.OrientationDown, wantWidth: 30, wantHeight: 20},
		{orientation: model.OrientationLeft, wantWidth: 20, wantHeight: 30},
	}

	for _, tt := range tests {
		t.Run(tt.orientation.String(), func(t *testing.T) {
			camera, err := NewDirCamera(dir)
			require.NoError(t, err)
			camera.Orientation = tt.orientation

			res := <-camera.Still(context.Background())
			require.NoError(t, res.Err)
			assert.Equal(t, model.OrientationUp, res.Frame.Orientation)
			assert.Equal(t, tt.wantWidth, res.Frame.Width)
			assert.Equal(t, tt.wantHeight, res.Frame.Height)
			assert.Equal(t, tt.wantWidth, res.Frame.Image.Bounds().Dx())
		})
	}
}
