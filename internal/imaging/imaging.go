// Package imaging holds the pixel-level helpers shared by the quality gate,
// boundary detector and crop extractor.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"

	// Decoders for frames loaded from disk.
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/Veraticus/collectorstream/internal/model"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultJPEGQuality matches what the identification services are tuned for.
const DefaultJPEGQuality = 85

// Luma converts img to a single-channel 8-bit image using Rec.601 weights.
// YCbCr and Gray images reuse their luma plane directly.
func Luma(img image.Image) (*image.Gray, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty image bounds %v", b)
	}

	switch src := img.(type) {
	case *image.Gray:
		return src, nil
	case *image.YCbCr:
		gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := 0; y < b.Dy(); y++ {
			row := src.YOffset(b.Min.X, b.Min.Y+y)
			copy(gray.Pix[y*gray.Stride:y*gray.Stride+b.Dx()], src.Y[row:row+b.Dx()])
		}
		return gray, nil
	case *image.RGBA:
		gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := 0; y < b.Dy(); y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			for x := 0; x < b.Dx(); x++ {
				p := src.Pix[off+x*4 : off+x*4+3 : off+x*4+3]
				gray.Pix[y*gray.Stride+x] = lumaOf(uint32(p[0]), uint32(p[1]), uint32(p[2]))
			}
		}
		return gray, nil
	}

	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			gray.Pix[y*gray.Stride+x] = c.Y
		}
	}
	return gray, nil
}

// lumaOf applies the same integer weights as color.GrayModel.
func lumaOf(r, g, b uint32) uint8 {
	return uint8((19595*r*257 + 38470*g*257 + 7471*b*257 + 1<<15) >> 24)
}

// Crop copies rect out of img into a fresh RGBA image with a zero origin.
func Crop(img image.Image, rect image.Rectangle) (*image.RGBA, error) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("crop rect %v does not intersect image %v", rect, img.Bounds())
	}
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out, nil
}

// Rotate90 rotates img a quarter turn clockwise.
func Rotate90(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(b.Dy()-1-y, x, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// Upright rotates a frame's pixels so the card top points up and updates
// its size and orientation to match.
func Upright(frame model.Frame) model.Frame {
	var turns int
	switch frame.Orientation {
	case model.OrientationLeft:
		turns = 1
	case model.OrientationDown:
		turns = 2
	case model.OrientationRight:
		turns = 3
	default:
		return frame
	}
	img := frame.Image
	for i := 0; i < turns; i++ {
		img = Rotate90(img)
	}
	b := img.Bounds()
	frame.Image = img
	frame.Width = b.Dx()
	frame.Height = b.Dy()
	frame.Orientation = model.OrientationUp
	return frame
}

// Resize scales img to exactly width x height with Catmull-Rom resampling.
func Resize(img image.Image, width, height int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(out, out.Bounds(), img, img.Bounds(), draw.Src, nil)
	return out
}

// Fit scales img down so its longest edge is at most maxEdge, keeping the
// aspect ratio. Images already small enough are returned unchanged.
func Fit(img image.Image, maxEdge int) image.Image {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	if maxEdge <= 0 || longest <= maxEdge {
		return img
	}
	scale := float64(maxEdge) / float64(longest)
	w := max(1, int(float64(b.Dx())*scale+0.5))
	h := max(1, int(float64(b.Dy())*scale+0.5))
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), img, b, draw.Src, nil)
	return out
}

// EncodeJPEG encodes img at the given quality (DefaultJPEGQuality when <= 0).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads any registered image format.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// DecodeFile opens and decodes an image file.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := Decode(f)
	return img, err
}
