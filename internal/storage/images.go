package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/collectorstream/internal/imaging"
	"github.com/Veraticus/collectorstream/internal/model"
	"github.com/Veraticus/collectorstream/internal/service"
)

// ThumbnailEdge is the longest edge of a stored thumbnail.
const ThumbnailEdge = 280

const imageDir = "cards"

// Compile-time interface check.
var _ service.ImageStore = (*ImageStore)(nil)

// ImageStore writes card images under a root directory. References are
// slash-separated paths relative to the root, e.g.
// "cards/20240501_101500_1a2b3c4d_front.jpg".
type ImageStore struct {
	now   func() time.Time
	newID func() string
	root  string
}

// NewImageStore creates the image directory under root.
func NewImageStore(root string) (*ImageStore, error) {
	if err := validateString(root, "root"); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(root, imageDir), 0750); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &ImageStore{
		root:  root,
		now:   time.Now,
		newID: uuid.NewString,
	}, nil
}

// SaveImage stores a JPEG and its thumbnail, returning the image reference.
func (s *ImageStore) SaveImage(ctx context.Context, side model.Side, jpeg []byte) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if len(jpeg) == 0 {
		return "", fmt.Errorf("%w: image data", ErrNilParameter)
	}
	if side != model.SideFront && side != model.SideBack {
		return "", fmt.Errorf("unknown card side %q", side)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, _, err := imaging.Decode(bytes.NewReader(jpeg))
	if err != nil {
		return "", err
	}
	thumb, err := imaging.EncodeJPEG(imaging.Fit(img, ThumbnailEdge), 0)
	if err != nil {
		return "", err
	}

	id := strings.ReplaceAll(s.newID(), "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	name := fmt.Sprintf("%s_%s_%s.jpg", s.now().Format("20060102_150405"), id, side)
	ref := imageDir + "/" + name

	if err := writeFile(s.Path(ref), jpeg); err != nil {
		return "", err
	}
	if err := writeFile(s.Path(ThumbnailRef(ref)), thumb); err != nil {
		_ = os.Remove(s.Path(ref))
		return "", err
	}
	return ref, nil
}

// Path resolves a reference to a file path inside the root.
func (s *ImageStore) Path(ref string) string {
	clean := filepath.Clean("/" + filepath.FromSlash(ref))
	return filepath.Join(s.root, clean)
}

// ThumbnailRef returns the thumbnail reference for an image reference.
func ThumbnailRef(ref string) string {
	return strings.TrimSuffix(ref, ".jpg") + "_thumb.jpg"
}

// writeFile writes atomically through a temporary file.
func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to store image: %w", err)
	}
	return nil
}
