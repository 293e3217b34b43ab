package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// ErrUnparsableImage means width, height or format could not be determined.
var ErrUnparsableImage = errors.New("media: unparsable image")

// nowFunc is the capture-time fallback clock.
var nowFunc = time.Now

// helper to safely get and convert a rational tag (like GPSAltitude)
func getRational(exifData *exif.Exif, tagName exif.FieldName) *float64 {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		// sometimes stored as Int instead
		valInt, errInt := tag.Int(0)
		if errInt == nil {
			fVal := float64(valInt)
			return &fVal
		}
		return nil
	}
	val := float64(num) / float64(den)
	return &val
}

// helper to safely get a string tag, trimming null terminators
func getString(exifData *exif.Exif, tagName exif.FieldName) *string {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val, err := tag.StringVal()
	if err != nil {
		val = tag.String()
	}
	val = strings.TrimSpace(strings.Trim(val, "\x00\""))
	if val == "" {
		return nil
	}
	return &val
}

// decodeExif never panics; goexif can on truncated IFDs.
func decodeExif(data []byte) (x *exif.Exif, err error) {
	defer func() {
		if r := recover(); r != nil {
			x, err = nil, fmt.Errorf("exif decoder panic: %v", r)
		}
	}()
	x, err = exif.Decode(bytes.NewReader(data))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return nil, err
	}
	return x, nil
}

// ImageDimensions reads width, height and format from the image header
// without decoding the raster.
func ImageDimensions(data []byte) (width, height int, format string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("%w: %v", ErrUnparsableImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, "", fmt.Errorf("%w: invalid dimensions %dx%d", ErrUnparsableImage, cfg.Width, cfg.Height)
	}
	return cfg.Width, cfg.Height, format, nil
}

// ExtractMetadata decodes raster properties and EXIF enrichment from raw bytes.
// Only an image whose dimensions or format cannot be read is an error; every
// optional field that fails to decode is left empty and noted in Warnings.
func ExtractMetadata(data []byte) (*Metadata, error) {
	width, height, format, err := ImageDimensions(data)
	if err != nil {
		return nil, err
	}

	meta := &Metadata{
		Width:      width,
		Height:     height,
		Format:     format,
		CapturedAt: nowFunc(),
	}

	exifData, err := decodeExif(data)
	if err != nil {
		// not necessarily a problem, file might just lack EXIF data
		meta.Warnings = append(meta.Warnings, "exif: "+err.Error())
		return meta, nil
	}

	if dt, err := exifData.DateTime(); err == nil && !dt.IsZero() {
		meta.CapturedAt = dt
		meta.CapturedExif = true
	} else if err != nil {
		meta.Warnings = append(meta.Warnings, "capture time: "+err.Error())
	}

	meta.GPS, err = readGPS(exifData)
	if err != nil {
		meta.Warnings = append(meta.Warnings, "gps: "+err.Error())
	}

	if heading := getRational(exifData, exif.GPSImgDirection); heading != nil {
		if *heading >= 0 && *heading <= 360 && !math.IsNaN(*heading) {
			meta.Heading = heading
		} else {
			meta.Warnings = append(meta.Warnings, fmt.Sprintf("heading: out of range %.2f", *heading))
		}
	}

	device := map[string]string{}
	for key, field := range map[string]exif.FieldName{
		"make":       exif.Make,
		"model":      exif.Model,
		"software":   exif.Software,
		"lens_model": exif.LensModel,
	} {
		if v := getString(exifData, field); v != nil {
			device[key] = *v
		}
	}
	if len(device) > 0 {
		meta.DeviceInfo = device
	}

	return meta, nil
}

// readGPS returns nil without error when the image carries no GPS block.
func readGPS(exifData *exif.Exif) (*GPSPoint, error) {
	if _, err := exifData.Get(exif.GPSLatitude); err != nil {
		return nil, nil
	}
	lat, lon, err := exifData.LatLong()
	if err != nil {
		return nil, err
	}
	if math.IsNaN(lat) || math.IsNaN(lon) || math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return nil, fmt.Errorf("coordinates out of range (%f, %f)", lat, lon)
	}
	point := &GPSPoint{Latitude: lat, Longitude: lon}
	if alt := getRational(exifData, exif.GPSAltitude); alt != nil {
		v := *alt
		if ref, err := exifData.Get(exif.GPSAltitudeRef); err == nil {
			if r, err := ref.Int(0); err == nil && r == 1 {
				v = -v // below sea level
			}
		}
		point.Altitude = &v
	}
	return point, nil
}
