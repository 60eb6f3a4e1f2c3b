package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/collectorstream/internal/imaging"
	"github.com/Veraticus/collectorstream/internal/model"
)

// ErrNoMoreFrames is returned by a file camera that has run out of images.
var ErrNoMoreFrames = errors.New("no more frames")

// StillResult is delivered once per still capture.
type StillResult struct {
	Err   error
	Frame model.Frame
}

// Camera supplies frames. Both calls deliver on channels instead of
// callbacks; channels are closed when ctx ends.
type Camera interface {
	// Preview streams live frames until ctx is done.
	Preview(ctx context.Context) (<-chan model.Frame, error)
	// Still captures one full-resolution frame. The channel receives exactly
	// one result and is then closed.
	Still(ctx context.Context) <-chan StillResult
}

// imageExtensions are the still formats a FileCamera will read.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// FileCamera replays image files as stills, one per capture, in order.
// Frames are rotated upright from Orientation before delivery.
type FileCamera struct {
	paths         []string
	next          int
	mu            sync.Mutex
	PreviewPeriod time.Duration
	Orientation   model.Orientation
}

// NewFileCamera creates a camera over explicit image paths.
func NewFileCamera(paths ...string) *FileCamera {
	return &FileCamera{paths: paths, PreviewPeriod: 200 * time.Millisecond}
}

// NewDirCamera creates a camera over the images in dir, sorted by name.
func NewDirCamera(dir string) (*FileCamera, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read camera directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	sort.Strings(paths)
	return NewFileCamera(paths...), nil
}

// Remaining returns how many stills are left.
func (c *FileCamera) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.paths) - c.next
}

// Still decodes the next file.
func (c *FileCamera) Still(ctx context.Context) <-chan StillResult {
	out := make(chan StillResult, 1)
	defer close(out)

	if err := ctx.Err(); err != nil {
		out <- StillResult{Err: err}
		return out
	}

	c.mu.Lock()
	if c.next >= len(c.paths) {
		c.mu.Unlock()
		out <- StillResult{Err: ErrNoMoreFrames}
		return out
	}
	path := c.paths[c.next]
	c.next++
	c.mu.Unlock()

	out <- loadFrame(path, c.Orientation)
	return out
}

// Preview repeats the upcoming still at PreviewPeriod.
func (c *FileCamera) Preview(ctx context.Context) (<-chan model.Frame, error) {
	period := c.PreviewPeriod
	if period <= 0 {
		period = 200 * time.Millisecond
	}
	out := make(chan model.Frame)

	go func() {
		defer close(out)
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			c.mu.Lock()
			if c.next >= len(c.paths) {
				c.mu.Unlock()
				return
			}
			path := c.paths[c.next]
			c.mu.Unlock()

			res := loadFrame(path, c.Orientation)
			if res.Err != nil {
				continue
			}
			select {
			case out <- res.Frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func loadFrame(path string, orientation model.Orientation) StillResult {
	img, err := imaging.DecodeFile(path)
	if err != nil {
		return StillResult{Err: err}
	}
	frame, err := model.NewFrame(img, orientation)
	if err != nil {
		return StillResult{Err: fmt.Errorf("%s: %w", path, err)}
	}
	return StillResult{Frame: imaging.Upright(frame)}
}
