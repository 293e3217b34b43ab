package media

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tiffEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func asciiEntry(tag uint16, s string) tiffEntry {
	b := append([]byte(s), 0)
	return tiffEntry{tag: tag, typ: 2, count: uint32(len(b)), data: b}
}

func byteEntry(tag uint16, v byte) tiffEntry {
	return tiffEntry{tag: tag, typ: 1, count: 1, data: []byte{v}}
}

func longEntry(tag uint16, v uint32) tiffEntry {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return tiffEntry{tag: tag, typ: 4, count: 1, data: b}
}

func rationalEntry(tag uint16, vals ...[2]uint32) tiffEntry {
	b := make([]byte, 0, 8*len(vals))
	for _, v := range vals {
		b = binary.LittleEndian.AppendUint32(b, v[0])
		b = binary.LittleEndian.AppendUint32(b, v[1])
	}
	return tiffEntry{tag: tag, typ: 5, count: uint32(len(vals)), data: b}
}

func ifdLen(entries []tiffEntry) int {
	n := 2 + 12*len(entries) + 4
	for _, e := range entries {
		if len(e.data) > 4 {
			n += len(e.data) + len(e.data)%2
		}
	}
	return n
}

func appendIFD(out []byte, entries []tiffEntry) []byte {
	start := len(out)
	dataOff := start + 2 + 12*len(entries) + 4
	var data []byte
	out = binary.LittleEndian.AppendUint16(out, uint16(len(entries)))
	for _, e := range entries {
		out = binary.LittleEndian.AppendUint16(out, e.tag)
		out = binary.LittleEndian.AppendUint16(out, e.typ)
		out = binary.LittleEndian.AppendUint32(out, e.count)
		if len(e.data) <= 4 {
			v := make([]byte, 4)
			copy(v, e.data)
			out = append(out, v...)
			continue
		}
		out = binary.LittleEndian.AppendUint32(out, uint32(dataOff+len(data)))
		data = append(data, e.data...)
		if len(e.data)%2 == 1 {
			data = append(data, 0)
		}
	}
	out = binary.LittleEndian.AppendUint32(out, 0)
	return append(out, data...)
}

// buildExif returns a little-endian TIFF block with camera, capture-time and GPS tags.
func buildExif() []byte {
	exifIFD := []tiffEntry{asciiEntry(0x9003, "2024:03:15 10:30:00")}
	gpsIFD := []tiffEntry{
		asciiEntry(0x0001, "N"),
		rationalEntry(0x0002, [2]uint32{40, 1}, [2]uint32{26, 1}, [2]uint32{46, 1}),
		asciiEntry(0x0003, "W"),
		rationalEntry(0x0004, [2]uint32{79, 1}, [2]uint32{58, 1}, [2]uint32{56, 1}),
		byteEntry(0x0005, 0),
		rationalEntry(0x0006, [2]uint32{2505, 10}),
		rationalEntry(0x0011, [2]uint32{1805, 10}),
	}
	ifd0 := []tiffEntry{
		asciiEntry(0x010F, "Fleetcam"),
		asciiEntry(0x0110, "FC-200 Pro"),
		asciiEntry(0x0131, "fw 1.4.2"),
		longEntry(0x8769, 0),
		longEntry(0x8825, 0),
	}
	exifStart := 8 + ifdLen(ifd0)
	gpsStart := exifStart + ifdLen(exifIFD)
	ifd0[3] = longEntry(0x8769, uint32(exifStart))
	ifd0[4] = longEntry(0x8825, uint32(gpsStart))

	out := []byte{'I', 'I', 0x2A, 0x00, 8, 0, 0, 0}
	out = appendIFD(out, ifd0)
	out = appendIFD(out, exifIFD)
	out = appendIFD(out, gpsIFD)
	return out
}

func solidJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// withExif splices an APP1 segment right after the SOI marker.
func withExif(jpg, tiff []byte) []byte {
	payload := append([]byte("Exif\x00\x00"), tiff...)
	seg := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	out := append([]byte{}, jpg[:2]...)
	out = append(out, seg...)
	out = append(out, payload...)
	return append(out, jpg[2:]...)
}

func TestExtractMetadataWithoutExifFallsBackToNow(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	nowFunc = func() time.Time { return fixed }
	defer func() { nowFunc = time.Now }()

	meta, err := ExtractMetadata(solidJPEG(t, 64, 48))
	require.NoError(t, err)
	assert.Equal(t, 64, meta.Width)
	assert.Equal(t, 48, meta.Height)
	assert.Equal(t, "jpeg", meta.Format)
	assert.Equal(t, fixed, meta.CapturedAt)
	assert.False(t, meta.CapturedExif)
	assert.Nil(t, meta.GPS)
	assert.Nil(t, meta.Heading)
	assert.Empty(t, meta.DeviceInfo)
	assert.NotEmpty(t, meta.Warnings)
}

func TestExtractMetadataReadsExif(t *testing.T) {
	data := withExif(solidJPEG(t, 32, 16), buildExif())

	meta, err := ExtractMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, 32, meta.Width)
	assert.Equal(t, 16, meta.Height)

	assert.True(t, meta.CapturedExif)
	assert.Equal(t, 2024, meta.CapturedAt.Year())
	assert.Equal(t, time.March, meta.CapturedAt.Month())
	assert.Equal(t, 15, meta.CapturedAt.Day())
	assert.Equal(t, 10, meta.CapturedAt.Hour())

	require.NotNil(t, meta.GPS)
	assert.InDelta(t, 40.446111, meta.GPS.Latitude, 1e-4)
	assert.InDelta(t, -79.982222, meta.GPS.Longitude, 1e-4)
	require.NotNil(t, meta.GPS.Altitude)
	assert.InDelta(t, 250.5, *meta.GPS.Altitude, 1e-9)

	require.NotNil(t, meta.Heading)
	assert.InDelta(t, 180.5, *meta.Heading, 1e-9)

	assert.Equal(t, "Fleetcam", meta.DeviceInfo["make"])
	assert.Equal(t, "FC-200 Pro", meta.DeviceInfo["model"])
	assert.Equal(t, "fw 1.4.2", meta.DeviceInfo["software"])
}

func TestExtractMetadataCorruptExifIsNotFatal(t *testing.T) {
	tiff := buildExif()
	data := withExif(solidJPEG(t, 20, 10), tiff[:14]) // truncated IFD

	meta, err := ExtractMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, 20, meta.Width)
	assert.Nil(t, meta.GPS)
	assert.False(t, meta.CapturedExif)
}

func TestExtractMetadataRejectsGarbage(t *testing.T) {
	_, err := ExtractMetadata([]byte("definitely not an image"))
	require.ErrorIs(t, err, ErrUnparsableImage)
}
