package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/collectorstream/internal/model"
)

// MaxRetakes bounds how many stills an unattended scan tries per side.
const MaxRetakes = 3

// ErrTooManyRetakes is returned when no acceptable still arrives for a side.
var ErrTooManyRetakes = errors.New("too many rejected stills")

// BatchResult is the outcome of one unattended card scan.
type BatchResult struct {
	Err    error
	Result *model.IdentificationResult
	CardID int64
}

// remainder is implemented by cameras that know how many stills are left.
type remainder interface {
	Remaining() int
}

// RunBatch scans cards from the camera without user input. Each card is a
// front still followed by a back still; rejected stills are retaken with the
// next one. It stops when the camera runs dry, returning how many cards were
// saved. A front left without a back is reported as ErrNoMoreFrames.
func (m *Machine) RunBatch(ctx context.Context, onCard func(BatchResult)) (int, error) {
	if onCard == nil {
		onCard = func(BatchResult) {}
	}
	if m.deps.Camera == nil {
		return 0, fmt.Errorf("no camera for batch scan")
	}

	saved := 0
	for {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		if m.exhausted() {
			return saved, nil
		}

		if err := m.StartScan(); err != nil {
			return saved, err
		}
		if err := m.shoot(ctx, StateReviewFront); err != nil {
			_ = m.Cancel()
			if errors.Is(err, ErrNoMoreFrames) {
				return saved, nil
			}
			return saved, err
		}
		if err := m.ConfirmFront(); err != nil {
			return saved, err
		}
		if err := m.shoot(ctx, StateReviewBack); err != nil {
			_ = m.Cancel()
			if errors.Is(err, ErrNoMoreFrames) {
				return saved, fmt.Errorf("%w: last card has no back", ErrNoMoreFrames)
			}
			return saved, err
		}
		if err := m.ConfirmBack(); err != nil {
			_ = m.Cancel()
			onCard(BatchResult{Err: err})
			continue
		}
		m.Wait()

		snap := m.Snapshot()
		if snap.State != StateIdentified {
			_ = m.Cancel()
			if err := ctx.Err(); err != nil {
				return saved, err
			}
			onCard(BatchResult{Err: snap.Err})
			continue
		}

		id, err := m.Save(ctx, Edits{})
		if err != nil {
			_ = m.Cancel()
			onCard(BatchResult{Err: err, Result: snap.Result})
			continue
		}
		saved++
		onCard(BatchResult{CardID: id, Result: snap.Result})
	}
}

// shoot captures stills until one is accepted and the machine reaches want.
func (m *Machine) shoot(ctx context.Context, want State) error {
	for i := 0; i < MaxRetakes; i++ {
		if m.exhausted() {
			return ErrNoMoreFrames
		}
		if err := m.Capture(ctx); err != nil {
			return err
		}
		m.Wait()
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.State() == want {
			return nil
		}
		m.logger.Info("still rejected, retaking", "want", want, "message", m.Snapshot().Message)
	}
	return ErrTooManyRetakes
}

func (m *Machine) exhausted() bool {
	r, ok := m.deps.Camera.(remainder)
	return ok && r.Remaining() == 0
}
