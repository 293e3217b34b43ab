package media

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

const (
	DefaultStartQuality   = 95
	DefaultQualityStep    = 5
	DefaultMinQuality     = 30
	DefaultRescaleQuality = 75

	ThumbnailJpegQuality = 85
)

// Compressor re-encodes images as JPEG under a byte budget.
type Compressor struct {
	StartQuality   int
	QualityStep    int
	MinQuality     int
	RescaleQuality int
}

func NewCompressor() *Compressor {
	return &Compressor{
		StartQuality:   DefaultStartQuality,
		QualityStep:    DefaultQualityStep,
		MinQuality:     DefaultMinQuality,
		RescaleQuality: DefaultRescaleQuality,
	}
}

func decodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnparsableImage, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, "", fmt.Errorf("%w: invalid dimensions %dx%d", ErrUnparsableImage, b.Dx(), b.Dy())
	}
	return img, format, nil
}

// flatten drops alpha onto white so every source ends up as plain RGB.
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("jpeg encoding at quality %d failed: %w", quality, err)
	}
	return buf.Bytes(), nil
}

// Compress reduces data to at most maxBytes: quality is stepped down from
// StartQuality to MinQuality, then linear dimensions are scaled by
// sqrt(maxBytes/size) and the image re-encoded once at RescaleQuality. The
// single rescale pass may still land slightly over budget on tiny budgets.
// A JPEG already within budget is returned unchanged.
func (c *Compressor) Compress(data []byte, maxBytes int) ([]byte, int, error) {
	if maxBytes <= 0 {
		return nil, 0, fmt.Errorf("compress: invalid byte budget %d", maxBytes)
	}
	img, format, err := decodeImage(data)
	if err != nil {
		return nil, 0, err
	}
	if format == "jpeg" && len(data) <= maxBytes {
		return data, len(data), nil
	}

	rgb := flatten(img)

	var out []byte
	for q := c.StartQuality; q >= c.MinQuality; q -= c.QualityStep {
		out, err = encodeJPEG(rgb, q)
		if err != nil {
			return nil, 0, err
		}
		if len(out) <= maxBytes {
			return out, len(out), nil
		}
		if c.QualityStep <= 0 {
			break
		}
	}
	if out == nil {
		if out, err = encodeJPEG(rgb, c.MinQuality); err != nil {
			return nil, 0, err
		}
		if len(out) <= maxBytes {
			return out, len(out), nil
		}
	}

	scale := math.Sqrt(float64(maxBytes) / float64(len(out)))
	b := rgb.Bounds()
	newWidth := maxInt(1, int(float64(b.Dx())*scale))
	newHeight := maxInt(1, int(float64(b.Dy())*scale))
	resized := imaging.Resize(rgb, newWidth, newHeight, imaging.Lanczos)

	out, err = encodeJPEG(resized, c.RescaleQuality)
	if err != nil {
		return nil, 0, err
	}
	return out, len(out), nil
}

// thumbnailSize scales so the longest side matches maxSize, never upscaling.
func thumbnailSize(origWidth, origHeight, maxSize int) (int, int) {
	var newWidth, newHeight int
	if origWidth > origHeight {
		if origWidth <= maxSize {
			newWidth, newHeight = origWidth, origHeight
		} else {
			newWidth = maxSize
			newHeight = int(math.Round(float64(origHeight) * (float64(maxSize) / float64(origWidth))))
		}
	} else {
		if origHeight <= maxSize {
			newWidth, newHeight = origWidth, origHeight
		} else {
			newHeight = maxSize
			newWidth = int(math.Round(float64(origWidth) * (float64(maxSize) / float64(origHeight))))
		}
	}
	return maxInt(1, newWidth), maxInt(1, newHeight)
}

// CreateThumbnail returns a JPEG whose longest side is at most size pixels.
func (c *Compressor) CreateThumbnail(data []byte, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("thumbnail: invalid size %d", size)
	}
	img, _, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	newWidth, newHeight := thumbnailSize(b.Dx(), b.Dy(), size)

	rgb := flatten(img)
	var thumb image.Image = rgb
	if newWidth != b.Dx() || newHeight != b.Dy() {
		thumb = imaging.Resize(rgb, newWidth, newHeight, imaging.Lanczos)
	}
	return encodeJPEG(thumb, ThumbnailJpegQuality)
}
