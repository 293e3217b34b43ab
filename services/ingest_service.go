package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/camden-git/fleetinspectbackend/logger"
	"github.com/camden-git/fleetinspectbackend/media"
	"github.com/camden-git/fleetinspectbackend/models"
	"github.com/camden-git/fleetinspectbackend/repository"
)

const (
	DefaultMaxUploadBytes      = 20 << 20
	DefaultMaxImagePixels      = 50_000_000
	DefaultCompressTargetBytes = 2 << 20
	DefaultThumbnailSize       = 300
	DefaultUploadTimeout       = 60 * time.Second
)

// UploadRequest is one photo submitted for inspection.
type UploadRequest struct {
	AssetID             string
	UploadedBy          string
	ChecklistResponseID *string
	WorkOrderID         *string
	Filename            string // client file name, may be empty
	ContentType         string // as declared by the client, may be empty
	Data                []byte
}

// IngestLimits bounds what an upload may be and how it is stored.
type IngestLimits struct {
	MaxUploadBytes      int64
	MaxImagePixels      int64 // width*height bound, checked from the header before decoding
	CompressTargetBytes int
	ThumbnailSize       int
	UploadTimeout       time.Duration
}

// IngestService validates an upload, stores its artifacts and records a
// Pending photo. Nothing is persisted for rejected input.
type IngestService struct {
	log        *logger.Logger
	photos     repository.PhotoRepositoryInterface
	store      media.ArtifactStore
	compressor *media.Compressor
	limits     IngestLimits
	now        func() time.Time
}

func NewIngestService(log *logger.Logger, photos repository.PhotoRepositoryInterface, store media.ArtifactStore, compressor *media.Compressor, limits IngestLimits) *IngestService {
	if limits.MaxUploadBytes <= 0 {
		limits.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if limits.MaxImagePixels <= 0 {
		limits.MaxImagePixels = DefaultMaxImagePixels
	}
	if limits.CompressTargetBytes <= 0 {
		limits.CompressTargetBytes = DefaultCompressTargetBytes
	}
	if limits.ThumbnailSize <= 0 {
		limits.ThumbnailSize = DefaultThumbnailSize
	}
	if limits.UploadTimeout <= 0 {
		limits.UploadTimeout = DefaultUploadTimeout
	}
	if compressor == nil {
		compressor = media.NewCompressor()
	}
	return &IngestService{
		log:        log.With("service", "IngestService"),
		photos:     photos,
		store:      store,
		compressor: compressor,
		limits:     limits,
		now:        time.Now,
	}
}

func (s *IngestService) validate(req *UploadRequest) error {
	if strings.TrimSpace(req.AssetID) == "" {
		return fmt.Errorf("%w: asset_id is required", ErrValidation)
	}
	if strings.TrimSpace(req.UploadedBy) == "" {
		return fmt.Errorf("%w: uploaded_by is required", ErrValidation)
	}
	if len(req.Data) == 0 {
		return fmt.Errorf("%w: empty upload", ErrValidation)
	}
	if int64(len(req.Data)) > s.limits.MaxUploadBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(req.Data), s.limits.MaxUploadBytes)
	}
	ct := strings.ToLower(strings.TrimSpace(req.ContentType))
	if ct != "" && ct != "application/octet-stream" && !strings.HasPrefix(ct, "image/") {
		return fmt.Errorf("%w: content type %s", ErrUnsupportedFormat, req.ContentType)
	}
	if !strings.HasPrefix(ct, "image/") && req.Filename != "" && !media.IsRasterImage(req.Filename) {
		return fmt.Errorf("%w: file %s", ErrUnsupportedFormat, req.Filename)
	}

	width, height, format, err := media.ImageDimensions(req.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	if !media.IsSupportedFormat(format) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if pixels := int64(width) * int64(height); pixels > s.limits.MaxImagePixels {
		return fmt.Errorf("%w: %dx%d pixels, limit %d", ErrTooLarge, width, height, s.limits.MaxImagePixels)
	}
	return nil
}

type processedUpload struct {
	meta       *media.Metadata
	compressed []byte
	thumbnail  []byte
}

// prepare extracts metadata and compresses on separate copies of the buffer.
func (s *IngestService) prepare(ctx context.Context, data []byte) (*processedUpload, error) {
	out := &processedUpload{}
	g, _ := errgroup.WithContext(ctx)

	metaBuf := bytes.Clone(data)
	g.Go(func() error {
		meta, err := media.ExtractMetadata(metaBuf)
		if err != nil {
			return err
		}
		out.meta = meta
		return nil
	})

	compressBuf := bytes.Clone(data)
	g.Go(func() error {
		compressed, _, err := s.compressor.Compress(compressBuf, s.limits.CompressTargetBytes)
		if err != nil {
			return err
		}
		thumb, err := s.compressor.CreateThumbnail(compressed, s.limits.ThumbnailSize)
		if err != nil {
			return err
		}
		out.compressed = compressed
		out.thumbnail = thumb
		return nil
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, media.ErrUnparsableImage) {
			return nil, fmt.Errorf("%w: %v", ErrCorruptImage, err)
		}
		return nil, err
	}
	if !media.IsSupportedFormat(out.meta.Format) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, out.meta.Format)
	}
	return out, nil
}

// Ingest stores the compressed original and its thumbnail and creates the
// photo in Pending. Uploaded artifacts are removed again if the record
// cannot be written.
func (s *IngestService) Ingest(ctx context.Context, req UploadRequest) (*models.InspectionPhoto, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	prepared, err := s.prepare(ctx, req.Data)
	if err != nil {
		return nil, err
	}
	meta := prepared.meta
	for _, w := range meta.Warnings {
		s.log.Warn("Optional metadata unavailable", "asset_id", req.AssetID, "detail", w)
	}

	photoID := uuid.New()
	key := media.FilenameFor(req.AssetID, req.UploadedBy, "jpg", s.now(), photoID.String())
	thumbKey := media.ThumbnailKey(key)

	uctx, cancel := context.WithTimeout(ctx, s.limits.UploadTimeout)
	defer cancel()

	originalURI, err := s.store.Upload(uctx, prepared.compressed, key, "image/jpeg")
	if err != nil {
		return nil, s.uploadError(uctx, "original", key, err)
	}
	thumbURI, err := s.store.Upload(uctx, prepared.thumbnail, thumbKey, "image/jpeg")
	if err != nil {
		s.rollback(key)
		return nil, s.uploadError(uctx, "thumbnail", thumbKey, err)
	}

	photo := &models.InspectionPhoto{
		ID:                  photoID,
		AssetID:             req.AssetID,
		UploadedBy:          req.UploadedBy,
		ChecklistResponseID: req.ChecklistResponseID,
		WorkOrderID:         req.WorkOrderID,
		StorageKey:          key,
		OriginalURI:         originalURI,
		ThumbnailURI:        thumbURI,
		ContentHash:         media.ContentHash(req.Data),
		FileSize:            int64(len(prepared.compressed)),
		Width:               meta.Width,
		Height:              meta.Height,
		Format:              meta.Format,
		CapturedAt:          meta.CapturedAt,
		CompassHeading:      meta.Heading,
		Status:              models.PhotoStatusPending,
	}
	if meta.GPS != nil {
		photo.SetGPS(meta.GPS.Latitude, meta.GPS.Longitude, meta.GPS.Altitude)
	}
	if len(meta.DeviceInfo) > 0 {
		photo.DeviceInfo = make(map[string]interface{}, len(meta.DeviceInfo))
		for k, v := range meta.DeviceInfo {
			photo.DeviceInfo[k] = v
		}
	}

	if err := s.photos.Create(photo); err != nil {
		s.rollback(key, thumbKey)
		return nil, err
	}

	s.log.Info("Inspection photo stored",
		"photo_id", photo.ID,
		"asset_id", photo.AssetID,
		"key", key,
		"source_type", media.ContentTypeForFormat(photo.Format),
		"bytes", photo.FileSize,
		"has_gps", photo.HasGPS(),
	)
	return photo, nil
}

func (s *IngestService) uploadError(ctx context.Context, what, key string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("upload of %s %s timed out after %s: %w", what, key, s.limits.UploadTimeout, err)
	}
	return fmt.Errorf("upload of %s %s failed: %w", what, key, err)
}

// rollback runs on a fresh context since the request one may be done.
func (s *IngestService) rollback(keys ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.limits.UploadTimeout)
	defer cancel()
	for _, k := range keys {
		if err := s.store.Delete(ctx, k); err != nil {
			s.log.Warn("Failed to remove orphaned artifact", "key", k, "error", err)
		}
	}
}
