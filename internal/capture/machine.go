package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/crop"
	"github.com/Veraticus/collectorstream/internal/model"
	"github.com/Veraticus/collectorstream/internal/quality"
	"github.com/Veraticus/collectorstream/internal/service"
)

// Machine errors.
var (
	ErrBusy    = errors.New("capture machine busy")
	ErrClosed  = errors.New("capture machine closed")
	ErrNoStore = errors.New("no card store configured")
)

// Defaults for capture timing.
const (
	DefaultStabilizationDelay = 300 * time.Millisecond
	DefaultMessageTTL         = 2500 * time.Millisecond
	defaultEventBuffer        = 64
)

// captureFailedMessage is shown when the camera returns no usable still.
const captureFailedMessage = "Could not capture the photo. Tap to try again."

// Config tunes the machine.
type Config struct {
	// Guide is the on-screen framing box used when no boundary is detected.
	Guide     *crop.ScreenGuide
	SportHint model.Optional[model.Sport]
	// StabilizationDelay lets the device settle between tap and shutter.
	StabilizationDelay time.Duration
	// MessageTTL is how long a rejection message stays visible.
	MessageTTL  time.Duration
	EventBuffer int
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		StabilizationDelay: DefaultStabilizationDelay,
		MessageTTL:         DefaultMessageTTL,
		EventBuffer:        defaultEventBuffer,
	}
}

// Deps are the machine's collaborators. Cards and Images are only needed to
// Save.
type Deps struct {
	Camera     Camera
	Gate       *quality.Gate
	Extractor  *crop.Extractor
	Identifier service.Identifier
	Cards      service.CardStore
	Images     service.ImageStore
}

// session is the state of one scan attempt.
type session struct {
	err     error
	front   *model.CapturedSide
	back    *model.CapturedSide
	result  *model.IdentificationResult
	quality *model.QualityScore
	cancel  context.CancelFunc
	ctx     context.Context
	id      string
	message string
	state   State
}

// Machine runs one capture session at a time. All methods are safe for
// concurrent use; image work and identification run on background
// goroutines and report through Events.
type Machine struct {
	baseCtx  context.Context
	stop     context.CancelFunc
	logger   *slog.Logger
	events   chan Event
	msgTimer *time.Timer
	deps     Deps
	session  session
	cfg      Config
	work     sync.WaitGroup
	watchers sync.WaitGroup
	// generation changes whenever a session ends, so late results from a
	// canceled session are recognized and dropped.
	generation uint64
	msgSeq     uint64
	mu         sync.Mutex
	capturing  bool
	saving     bool
	closed     bool
}

// NewMachine creates a machine in the ready state.
func NewMachine(deps Deps, cfg Config, logger *slog.Logger) (*Machine, error) {
	if deps.Gate == nil || deps.Extractor == nil || deps.Identifier == nil {
		return nil, fmt.Errorf("%w: capture needs a quality gate, extractor and identifier", common.ErrMissingConfig)
	}
	if cfg.StabilizationDelay < 0 {
		cfg.StabilizationDelay = 0
	}
	if cfg.MessageTTL <= 0 {
		cfg.MessageTTL = DefaultMessageTTL
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Machine{
		deps:    deps,
		cfg:     cfg,
		logger:  common.ComponentLogger(logger, "capture"),
		events:  make(chan Event, cfg.EventBuffer),
		baseCtx: ctx,
		stop:    stop,
		session: session{state: StateReady},
	}, nil
}

// Events delivers state changes and messages. It is closed by Close.
func (m *Machine) Events() <-chan Event {
	return m.events
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.state
}

// Snapshot returns a copy of the current session.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Wait blocks until in-flight capture and identification work finishes.
func (m *Machine) Wait() {
	m.work.Wait()
}

// Close cancels all work, waits for it and closes the event channel.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.stopMessageLocked()
	if m.session.cancel != nil {
		m.session.cancel()
	}
	m.stop()
	m.mu.Unlock()

	m.work.Wait()
	m.watchers.Wait()
	close(m.events)
}

// StartScan begins a new session.
func (m *Machine) StartScan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(ActionStartScan); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	m.session = session{
		id:     uuid.NewString(),
		state:  m.session.state,
		ctx:    ctx,
		cancel: cancel,
	}
	m.logger.Info("scan started", "session", m.session.id)
	m.moveLocked(ActionStartScan)
	return nil
}

// Capture takes a still after the stabilization delay and processes it in
// the background. The outcome arrives as an accepted side or a transient
// rejection message.
func (m *Machine) Capture(ctx context.Context) error {
	return m.begin(ctx, func(ctx context.Context) (model.Frame, error) {
		if m.deps.Camera == nil {
			return model.Frame{}, fmt.Errorf("%w: no camera", common.ErrMissingConfig)
		}
		if err := sleep(ctx, m.cfg.StabilizationDelay); err != nil {
			return model.Frame{}, err
		}
		select {
		case res, ok := <-m.deps.Camera.Still(ctx):
			if !ok {
				return model.Frame{}, fmt.Errorf("%w: camera returned no still", common.ErrImageProcessing)
			}
			return res.Frame, res.Err
		case <-ctx.Done():
			return model.Frame{}, ctx.Err()
		}
	})
}

// Submit processes a frame obtained elsewhere, skipping the camera.
func (m *Machine) Submit(ctx context.Context, frame model.Frame) error {
	return m.begin(ctx, func(context.Context) (model.Frame, error) {
		return frame, nil
	})
}

// ConfirmFront accepts the captured front and moves on to the back.
func (m *Machine) ConfirmFront() error {
	return m.simple(ActionConfirmFront, nil)
}

// RetakeFront discards the captured front.
func (m *Machine) RetakeFront() error {
	return m.simple(ActionRetakeFront, func(s *session) { s.front = nil })
}

// RetakeBack discards the captured back.
func (m *Machine) RetakeBack() error {
	return m.simple(ActionRetakeBack, func(s *session) { s.back = nil })
}

// Cancel abandons the session from any state but ready. In-flight provider
// calls are canceled and their results ignored.
func (m *Machine) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(ActionCancel); err != nil {
		return err
	}
	id := m.session.id
	m.endSessionLocked()
	m.moveLocked(ActionCancel)
	m.logger.Info("scan canceled", "session", id)
	return nil
}

// ConfirmBack submits both sides for identification. A session without a
// front side is invalid and moves to the error state.
func (m *Machine) ConfirmBack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(ActionConfirmBack); err != nil {
		return err
	}

	if m.session.front == nil || m.session.front.Image == nil {
		return m.failLocked(fmt.Errorf("%w: no front side captured", common.ErrSessionInvalid))
	}

	front, back := *m.session.front, m.session.back
	gen, ctx := m.generation, m.session.ctx
	m.moveLocked(ActionConfirmBack)

	m.work.Add(1)
	go m.identify(ctx, gen, front, back)
	return nil
}

// Save stores the identified card with the user's edits and resets to ready.
func (m *Machine) Save(ctx context.Context, edits Edits) (int64, error) {
	m.mu.Lock()
	if err := m.checkLocked(ActionSave); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	if m.deps.Cards == nil || m.deps.Images == nil {
		m.mu.Unlock()
		return 0, ErrNoStore
	}
	if m.saving {
		m.mu.Unlock()
		return 0, ErrBusy
	}
	m.saving = true
	gen := m.generation
	front, back, result := m.session.front, m.session.back, m.session.result
	m.mu.Unlock()

	id, err := m.store(ctx, front, back, result, edits)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.saving = false
	if err != nil {
		return 0, err
	}
	if gen == m.generation && m.session.state == StateIdentified {
		m.endSessionLocked()
		m.moveLocked(ActionSave)
		m.emitLocked(Event{Kind: EventSaved, CardID: id})
	}
	return id, nil
}

func (m *Machine) store(ctx context.Context, front, back *model.CapturedSide, result *model.IdentificationResult, edits Edits) (int64, error) {
	upload := BuildUpload(result, edits)

	frontJPEG, err := m.deps.Extractor.Payload(*front)
	if err != nil {
		return 0, fmt.Errorf("failed to encode front image: %w", err)
	}
	ref, err := m.deps.Images.SaveImage(ctx, model.SideFront, frontJPEG)
	if err != nil {
		return 0, fmt.Errorf("failed to save front image: %w", err)
	}
	upload.FrontImageRef = ref

	if back != nil {
		backJPEG, err := m.deps.Extractor.Payload(*back)
		if err != nil {
			return 0, fmt.Errorf("failed to encode back image: %w", err)
		}
		ref, err := m.deps.Images.SaveImage(ctx, model.SideBack, backJPEG)
		if err != nil {
			return 0, fmt.Errorf("failed to save back image: %w", err)
		}
		upload.BackImageRef = model.Some(ref)
	}

	id, err := m.deps.Cards.SaveCard(ctx, upload)
	if err != nil {
		return 0, fmt.Errorf("failed to save card: %w", err)
	}
	m.logger.Info("card saved", "id", id, "provider", upload.Provider.OrElse("manual"))
	return id, nil
}

// Watch scores live preview frames while scanning and reports them as
// preview events. It returns once the preview has started.
func (m *Machine) Watch(ctx context.Context) error {
	if m.deps.Camera == nil {
		return fmt.Errorf("%w: no camera", common.ErrMissingConfig)
	}
	wctx, cancel := context.WithCancel(m.baseCtx)
	stop := context.AfterFunc(ctx, cancel)

	frames, err := m.deps.Camera.Preview(wctx)
	if err != nil {
		stop()
		cancel()
		return fmt.Errorf("failed to start preview: %w", err)
	}

	m.watchers.Add(1)
	go func() {
		defer m.watchers.Done()
		defer cancel()
		defer stop()
		for frame := range frames {
			if !m.State().Scanning() {
				continue
			}
			score := m.deps.Gate.Score(frame)
			m.mu.Lock()
			m.emitLocked(Event{Kind: EventPreview, Quality: &score})
			m.mu.Unlock()
		}
	}()
	return nil
}

// begin starts background processing of one frame for the side being
// scanned.
func (m *Machine) begin(ctx context.Context, source func(context.Context) (model.Frame, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	state := m.session.state
	if !state.Scanning() {
		return fmt.Errorf("%w: cannot capture in %s", common.ErrIllegalTransition, state)
	}
	if m.capturing {
		return ErrBusy
	}
	m.capturing = true

	gen := m.generation
	workCtx, cancel := context.WithCancel(m.session.ctx)
	stop := context.AfterFunc(ctx, cancel)

	m.work.Add(1)
	go func() {
		defer m.work.Done()
		defer cancel()
		defer stop()
		m.process(workCtx, gen, state, source)
	}()
	return nil
}

func (m *Machine) process(ctx context.Context, gen uint64, scanning State, source func(context.Context) (model.Frame, error)) {
	side := model.SideFront
	if scanning == StateScanningBack {
		side = model.SideBack
	}

	frame, err := source(ctx)
	var score model.QualityScore
	var captured model.CapturedSide
	if err == nil {
		score = m.deps.Gate.Score(frame)
		if score.Accepted {
			captured = m.deps.Extractor.Extract(ctx, frame, m.cfg.Guide)
			captured.Side = side
			captured.Quality = score
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation || m.session.state != scanning || m.closed {
		m.logger.Debug("discarding frame from stale session", "side", side)
		return
	}
	m.capturing = false

	switch {
	case err != nil:
		m.logger.Warn("still capture failed", "side", side, "error", err)
		m.moveLocked(ActionFrameRejected)
		m.setMessageLocked(captureFailedMessage)
	case !score.Accepted:
		m.logger.Info("frame rejected",
			"side", side,
			"variance", score.Variance,
			"rating", score.Rating,
			"error", common.ErrQualityRejected)
		m.session.quality = &score
		m.moveLocked(ActionFrameRejected)
		m.setMessageLocked(quality.Message(score.Rating))
	default:
		m.logger.Info("frame accepted",
			"side", side,
			"variance", score.Variance,
			"cropped", captured.Cropped)
		m.session.quality = &score
		if side == model.SideFront {
			m.session.front = &captured
		} else {
			m.session.back = &captured
		}
		m.clearMessageLocked()
		m.moveLocked(ActionFrameAccepted)
	}
}

func (m *Machine) identify(ctx context.Context, gen uint64, front model.CapturedSide, back *model.CapturedSide) {
	defer m.work.Done()

	req := model.IdentificationRequest{SportHint: m.cfg.SportHint}
	var err error
	req.Front, err = m.deps.Extractor.Payload(front)
	if err != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		if gen == m.generation && m.session.state == StateProcessing {
			_ = m.failLocked(fmt.Errorf("%w: front image unusable: %w", common.ErrSessionInvalid, err))
		}
		return
	}
	if back != nil {
		if req.Back, err = m.deps.Extractor.Payload(*back); err != nil {
			m.logger.Warn("back image unusable, identifying front only", "error", err)
			req.Back = nil
		}
	}

	result := m.deps.Identifier.Identify(ctx, req)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation || m.session.state != StateProcessing {
		m.logger.Debug("ignoring identification for ended session", "attempts", len(result.Attempts))
		return
	}
	m.session.result = &result
	m.logger.Info("identification finished",
		"session", m.session.id,
		"confidence", result.Confidence(),
		"needs_verification", result.NeedsVerification)
	m.moveLocked(ActionCompleted)
}

// simple applies a user action with an optional session mutation.
func (m *Machine) simple(action Action, mutate func(*session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(action); err != nil {
		return err
	}
	if mutate != nil {
		mutate(&m.session)
	}
	m.moveLocked(action)
	return nil
}

func (m *Machine) checkLocked(action Action) error {
	if m.closed {
		return ErrClosed
	}
	if _, ok := Next(m.session.state, action); !ok {
		return fmt.Errorf("%w: %s in %s", common.ErrIllegalTransition, action, m.session.state)
	}
	return nil
}

// moveLocked applies an already checked action and announces the result.
func (m *Machine) moveLocked(action Action) {
	to, ok := Next(m.session.state, action)
	if !ok {
		return
	}
	from := m.session.state
	m.session.state = to
	if from != to {
		m.logger.Debug("state changed", "from", from, "to", to, "action", action)
	}
	m.emitLocked(Event{Kind: EventState, Action: action})
}

func (m *Machine) failLocked(err error) error {
	m.session.err = err
	m.logger.Error("capture session invalid", "session", m.session.id, "error", err)
	m.moveLocked(ActionFailed)
	return err
}

// endSessionLocked drops all session data and invalidates in-flight work.
func (m *Machine) endSessionLocked() {
	if m.session.cancel != nil {
		m.session.cancel()
	}
	m.generation++
	m.capturing = false
	m.stopMessageLocked()
	m.session = session{state: m.session.state}
}

func (m *Machine) setMessageLocked(msg string) {
	m.stopMessageLocked()
	m.session.message = msg
	m.msgSeq++
	seq := m.msgSeq
	m.msgTimer = time.AfterFunc(m.cfg.MessageTTL, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if seq == m.msgSeq && !m.closed {
			m.clearMessageLocked()
		}
	})
	m.emitLocked(Event{Kind: EventMessage})
}

func (m *Machine) clearMessageLocked() {
	m.stopMessageLocked()
	if m.session.message == "" {
		return
	}
	m.session.message = ""
	m.emitLocked(Event{Kind: EventMessageCleared})
}

func (m *Machine) stopMessageLocked() {
	if m.msgTimer != nil {
		m.msgTimer.Stop()
		m.msgTimer = nil
	}
}

// emitLocked stamps the event with the session and sends it without
// blocking; a slow reader loses events rather than stalling capture.
func (m *Machine) emitLocked(ev Event) {
	if m.closed {
		return
	}
	ev.Snapshot = m.snapshotLocked()
	select {
	case m.events <- ev:
	default:
		m.logger.Debug("event dropped", "kind", ev.Kind)
	}
}

func (m *Machine) snapshotLocked() Snapshot {
	s := m.session
	snap := Snapshot{
		ID:      s.id,
		State:   s.state,
		Message: s.message,
		Err:     s.err,
		Front:   s.front,
		Back:    s.back,
		Result:  s.result,
	}
	if s.quality != nil {
		q := *s.quality
		snap.Quality = &q
	}
	return snap
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
