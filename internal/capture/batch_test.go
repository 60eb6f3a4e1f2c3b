package capture

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/collectorstream/internal/model"
)

// sequenceCamera hands out its frames once each, in order.
type sequenceCamera struct {
	frames []model.Frame
	next   int
	mu     sync.Mutex
}

func (c *sequenceCamera) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames) - c.next
}

func (c *sequenceCamera) Still(context.Context) <-chan StillResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(chan StillResult, 1)
	if c.next >= len(c.frames) {
		out <- StillResult{Err: ErrNoMoreFrames}
	} else {
		out <- StillResult{Frame: c.frames[c.next]}
		c.next++
	}
	close(out)
	return out
}

func (c *sequenceCamera) Preview(context.Context) (<-chan model.Frame, error) {
	out := make(chan model.Frame)
	close(out)
	return out, nil
}

func TestRunBatch(t *testing.T) {
	sharp, blurry := sharpFrame(t), blurryFrame(t)

	tests := []struct {
		wantErr   error
		name      string
		frames    []model.Frame
		wantSaved int
	}{
		{
			name:      "two cards",
			frames:    []model.Frame{sharp, sharp, sharp, sharp},
			wantSaved: 2,
		},
		{
			name:      "blurry front is retaken",
			frames:    []model.Frame{blurry, sharp, sharp},
			wantSaved: 1,
		},
		{
			name:      "front without back",
			frames:    []model.Frame{sharp, sharp, sharp},
			wantSaved: 1,
			wantErr:   ErrNoMoreFrames,
		},
		{
			name:    "every still rejected",
			frames:  []model.Frame{blurry, blurry, blurry, blurry},
			wantErr: ErrTooManyRetakes,
		},
		{
			name:   "no frames",
			frames: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cards := &memCards{}
			camera := &sequenceCamera{frames: tt.frames}
			m := newTestMachine(t, Deps{Camera: camera, Cards: cards, Images: &memImages{}}, fastConfig())

			var results []BatchResult
			saved, err := m.RunBatch(context.Background(), func(r BatchResult) {
				results = append(results, r)
			})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantSaved, saved)
			assert.Len(t, cards.uploads, tt.wantSaved)
			assert.Len(t, results, tt.wantSaved)
			assert.Equal(t, StateReady, m.State())
			for i, r := range results {
				assert.NoError(t, r.Err)
				assert.Equal(t, int64(i+1), r.CardID)
				require.NotNil(t, r.Result)
			}
		})
	}
}

func TestRunBatchCanceled(t *testing.T) {
	camera := &sequenceCamera{frames: []model.Frame{sharpFrame(t), sharpFrame(t)}}
	m := newTestMachine(t, Deps{Camera: camera, Cards: &memCards{}, Images: &memImages{}}, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	saved, err := m.RunBatch(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, saved)
}

func TestRunBatchRequiresCamera(t *testing.T) {
	m := newTestMachine(t, Deps{}, fastConfig())
	_, err := m.RunBatch(context.Background(), nil)
	assert.Error(t, err)
}
