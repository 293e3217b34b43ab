package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/fleetinspectbackend/logger"
	"github.com/camden-git/fleetinspectbackend/media"
	"github.com/camden-git/fleetinspectbackend/models"
)

func newIngest(photos *fakePhotoRepo, store *fakeStore) *IngestService {
	s := NewIngestService(logger.NewNop(), photos, store, media.NewCompressor(), IngestLimits{
		MaxUploadBytes:      1 << 20,
		CompressTargetBytes: 200 << 10,
		ThumbnailSize:       64,
		UploadTimeout:       time.Second,
	})
	s.now = func() time.Time { return time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC) }
	return s
}

func TestIngestStoresArtifactsAndPendingPhoto(t *testing.T) {
	photos := newFakePhotoRepo()
	store := newFakeStore()
	s := newIngest(photos, store)
	data := testPNG(t, 320, 240)

	photo, err := s.Ingest(context.Background(), UploadRequest{
		AssetID:     "truck-7",
		UploadedBy:  "user-3",
		ContentType: "image/png",
		Data:        data,
	})
	require.NoError(t, err)

	assert.Equal(t, models.PhotoStatusPending, photo.Status)
	key := "inspections/truck-7/20240315_103000-" + photo.ID.String() + "_user-3.jpg"
	assert.Equal(t, key, photo.StorageKey)
	assert.Equal(t, "mem://"+key, photo.OriginalURI)
	assert.Equal(t, "mem://"+media.ThumbnailKey(key), photo.ThumbnailURI)
	assert.Equal(t, 320, photo.Width)
	assert.Equal(t, 240, photo.Height)
	assert.Equal(t, "png", photo.Format)
	assert.Equal(t, media.ContentHash(data), photo.ContentHash)
	assert.False(t, photo.HasGPS())
	assert.Len(t, store.objects, 2)
	assert.Equal(t, int64(len(store.objects[photo.StorageKey])), photo.FileSize)

	stored, err := photos.GetByID(photo.ID)
	require.NoError(t, err)
	assert.Equal(t, photo.StorageKey, stored.StorageKey)
}

func TestIngestRejectsInvalidInputWithoutState(t *testing.T) {
	png := testPNG(t, 16, 16)
	tests := []struct {
		name string
		req  UploadRequest
		want error
	}{
		{"missing asset", UploadRequest{UploadedBy: "u", Data: png}, ErrValidation},
		{"missing uploader", UploadRequest{AssetID: "a", Data: png}, ErrValidation},
		{"empty body", UploadRequest{AssetID: "a", UploadedBy: "u"}, ErrValidation},
		{"too large", UploadRequest{AssetID: "a", UploadedBy: "u", Data: make([]byte, 2<<20)}, ErrTooLarge},
		{"not an image type", UploadRequest{AssetID: "a", UploadedBy: "u", ContentType: "application/pdf", Data: png}, ErrUnsupportedFormat},
		{"generic type with non-image name", UploadRequest{AssetID: "a", UploadedBy: "u", ContentType: "application/octet-stream", Filename: "report.pdf", Data: png}, ErrUnsupportedFormat},
		{"corrupt", UploadRequest{AssetID: "a", UploadedBy: "u", ContentType: "image/jpeg", Data: []byte(strings.Repeat("x", 512))}, ErrCorruptImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			photos := newFakePhotoRepo()
			store := newFakeStore()
			_, err := newIngest(photos, store).Ingest(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Empty(t, photos.photos)
			assert.Empty(t, store.objects)
		})
	}
}

func TestIngestRollsBackOnThumbnailUploadFailure(t *testing.T) {
	photos := newFakePhotoRepo()
	store := newFakeStore()
	store.failSuffix = "_thumb.jpg"

	_, err := newIngest(photos, store).Ingest(context.Background(), UploadRequest{
		AssetID: "a", UploadedBy: "u", Data: testPNG(t, 32, 32),
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Empty(t, store.objects)
	assert.Len(t, store.deleted, 1)
	assert.Empty(t, photos.photos)
}

func TestIngestRollsBackWhenRecordCannotBeCreated(t *testing.T) {
	photos := newFakePhotoRepo()
	photos.createErr = errors.New("disk full")
	store := newFakeStore()

	_, err := newIngest(photos, store).Ingest(context.Background(), UploadRequest{
		AssetID: "a", UploadedBy: "u", Data: testPNG(t, 32, 32),
	})
	require.Error(t, err)
	assert.Empty(t, store.objects)
	assert.Len(t, store.deleted, 2)
}

func TestIngestSameSecondUploadsKeepSeparateArtifacts(t *testing.T) {
	f := newOrchestratorFixture(t, time.Second)
	store := newFakeStore()
	s := newIngest(f.photos, store)

	first, err := s.Ingest(context.Background(), UploadRequest{AssetID: "truck-7", UploadedBy: "user-3", Data: testPNG(t, 64, 48)})
	require.NoError(t, err)
	second, err := s.Ingest(context.Background(), UploadRequest{AssetID: "truck-7", UploadedBy: "user-3", Data: testPNG(t, 48, 64)})
	require.NoError(t, err)

	assert.NotEqual(t, first.StorageKey, second.StorageKey)
	assert.NotEqual(t, first.OriginalURI, second.OriginalURI)
	assert.NotEqual(t, first.ThumbnailURI, second.ThumbnailURI)
	assert.Len(t, store.objects, 4)

	// each photo gets its own analysis instead of the other's cache entry
	outA, err := f.orch.ProcessPhoto(context.Background(), first.ID)
	require.NoError(t, err)
	outB, err := f.orch.ProcessPhoto(context.Background(), second.ID)
	require.NoError(t, err)
	assert.False(t, outA.Cached)
	assert.False(t, outB.Cached)
	assert.Equal(t, 2, f.vision.callCount())
}

// pngHeader returns a PNG signature and IHDR chunk declaring w x h truecolor
// pixels with no image data behind it.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 2 // truecolor

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestIngestRejectsOversizedDimensionsBeforeDecoding(t *testing.T) {
	photos := newFakePhotoRepo()
	store := newFakeStore()

	data := pngHeader(20000, 20000)
	require.Less(t, len(data), 100)

	_, err := newIngest(photos, store).Ingest(context.Background(), UploadRequest{
		AssetID: "truck-7", UploadedBy: "user-3", ContentType: "image/png", Data: data,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "20000x20000")
	assert.Empty(t, photos.photos)
	assert.Empty(t, store.objects)
}

func TestIngestPixelLimitIsConfigurable(t *testing.T) {
	photos := newFakePhotoRepo()
	store := newFakeStore()
	s := NewIngestService(logger.NewNop(), photos, store, media.NewCompressor(), IngestLimits{MaxImagePixels: 100 * 100})

	_, err := s.Ingest(context.Background(), UploadRequest{AssetID: "a", UploadedBy: "u", Data: testPNG(t, 320, 240)})
	assert.ErrorIs(t, err, ErrTooLarge)

	photo, err := s.Ingest(context.Background(), UploadRequest{AssetID: "a", UploadedBy: "u", Data: testPNG(t, 100, 100)})
	require.NoError(t, err)
	assert.Equal(t, 100, photo.Width)
}
