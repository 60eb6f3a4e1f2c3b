package crop

import (
	"image"
	"math"

	"github.com/Veraticus/collectorstream/internal/imaging"
)

// aspectSlack is how far a crop may stray from the output aspect before
// Normalize stops stretching it.
const aspectSlack = 0.10

// Normalize resizes a card crop to size. Crops close to the output aspect
// are scaled to exactly size; anything else, such as an uncropped frame,
// is scaled to fit inside it so the card is not distorted.
func Normalize(img image.Image, size Size) image.Image {
	b := img.Bounds()
	if b.Empty() || size.Width <= 0 || size.Height <= 0 {
		return img
	}

	target := float64(size.Width) / float64(size.Height)
	actual := float64(b.Dx()) / float64(b.Dy())
	if math.Abs(actual-target)/target <= aspectSlack {
		return imaging.Resize(img, size.Width, size.Height)
	}

	scale := math.Min(float64(size.Width)/float64(b.Dx()), float64(size.Height)/float64(b.Dy()))
	w := max(1, int(math.Round(float64(b.Dx())*scale)))
	h := max(1, int(math.Round(float64(b.Dy())*scale)))
	return imaging.Resize(img, w, h)
}

// EncodeJPEG encodes img for upload.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	return imaging.EncodeJPEG(img, quality)
}

// Thumbnail renders a small JPEG preview.
func Thumbnail(img image.Image, size Size, quality int) ([]byte, error) {
	return imaging.EncodeJPEG(Normalize(img, size), quality)
}
