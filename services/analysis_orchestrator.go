package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/camden-git/fleetinspectbackend/cache"
	"github.com/camden-git/fleetinspectbackend/logger"
	"github.com/camden-git/fleetinspectbackend/models"
	"github.com/camden-git/fleetinspectbackend/repository"
	"github.com/camden-git/fleetinspectbackend/vision"
)

const (
	DefaultVisionTimeout = 30 * time.Second
	batchConcurrency     = 4
)

// Notifier receives pipeline events. Delivery is best effort: errors are
// logged and never change the outcome of processing.
type Notifier interface {
	PhotoStatusChanged(photo *models.InspectionPhoto)
	CriticalAnomaly(photo *models.InspectionPhoto, anomaly *models.VisualAnomaly) error
}

// PhotoOutcome describes a single processing attempt.
type PhotoOutcome struct {
	PhotoID      uuid.UUID               `json:"photo_id"`
	RawID        string                  `json:"raw_id,omitempty"`
	Status       models.ProcessingStatus `json:"status"`
	Cached       bool                    `json:"cached"`
	ResultID     *uuid.UUID              `json:"result_id,omitempty"`
	AnomalyCount int                     `json:"anomaly_count"`
	ReadingCount int                     `json:"reading_count"`
	Error        string                  `json:"error,omitempty"`
}

// BatchSummary counts a batch; Success counts fresh analyses and Cached
// counts cache hits, so Success+Failed+Cached == Total.
type BatchSummary struct {
	Total   int             `json:"total"`
	Success int             `json:"success"`
	Failed  int             `json:"failed"`
	Cached  int             `json:"cached"`
	Items   []*PhotoOutcome `json:"items"`
}

// AnalysisOrchestrator drives a photo through Pending -> Processing -> Completed|Failed.
type AnalysisOrchestrator struct {
	log           *logger.Logger
	photos        repository.PhotoRepositoryInterface
	results       repository.AnalysisResultRepositoryInterface
	vision        vision.Client
	cache         cache.AnalysisCache
	classifier    *AnomalyClassifier
	meters        *MeterReadingExtractor
	notifier      Notifier
	visionTimeout time.Duration
	now           func() time.Time
}

func NewAnalysisOrchestrator(
	log *logger.Logger,
	photos repository.PhotoRepositoryInterface,
	results repository.AnalysisResultRepositoryInterface,
	visionClient vision.Client,
	analysisCache cache.AnalysisCache,
	classifier *AnomalyClassifier,
	meters *MeterReadingExtractor,
	notifier Notifier,
	visionTimeout time.Duration,
) *AnalysisOrchestrator {
	if visionTimeout <= 0 {
		visionTimeout = DefaultVisionTimeout
	}
	return &AnalysisOrchestrator{
		log:           log.With("service", "AnalysisOrchestrator"),
		photos:        photos,
		results:       results,
		vision:        visionClient,
		cache:         analysisCache,
		classifier:    classifier,
		meters:        meters,
		notifier:      notifier,
		visionTimeout: visionTimeout,
		now:           time.Now,
	}
}

func (o *AnalysisOrchestrator) loadPhoto(id uuid.UUID) (*models.InspectionPhoto, error) {
	photo, err := o.photos.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPhotoNotFound, id)
		}
		return nil, err
	}
	return photo, nil
}

func (o *AnalysisOrchestrator) transition(photo *models.InspectionPhoto, to models.ProcessingStatus, errMsg *string) error {
	err := o.photos.TransitionStatus(photo.ID, photo.Status, to, errMsg)
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return fmt.Errorf("%w: photo %s is no longer %s", ErrInvalidTransition, photo.ID, photo.Status)
		}
		return err
	}
	photo.Status = to
	photo.ErrorMessage = errMsg
	if o.notifier != nil {
		o.notifier.PhotoStatusChanged(photo)
	}
	return nil
}

// ProcessPhoto analyzes a Pending photo. A failed analysis moves the photo
// to Failed and is returned both in the outcome and as the error.
func (o *AnalysisOrchestrator) ProcessPhoto(ctx context.Context, photoID uuid.UUID) (*PhotoOutcome, error) {
	photo, err := o.loadPhoto(photoID)
	if err != nil {
		return nil, err
	}
	if photo.Status != models.PhotoStatusPending {
		return nil, fmt.Errorf("%w: photo %s is %s, expected %s", ErrInvalidTransition, photo.ID, photo.Status, models.PhotoStatusPending)
	}
	if err := o.transition(photo, models.PhotoStatusProcessing, nil); err != nil {
		return nil, err
	}

	outcome := &PhotoOutcome{PhotoID: photo.ID}
	result, err := o.analyze(ctx, photo)
	if err != nil {
		msg := err.Error()
		o.log.Warn("Photo analysis failed", "photo_id", photo.ID, "error", msg)
		if terr := o.transition(photo, models.PhotoStatusFailed, &msg); terr != nil {
			o.log.Error("Failed to record analysis failure", "photo_id", photo.ID, "error", terr)
		}
		outcome.Status = models.PhotoStatusFailed
		outcome.Error = msg
		return outcome, fmt.Errorf("analysis of photo %s failed: %w", photo.ID, err)
	}

	if err := o.transition(photo, models.PhotoStatusCompleted, nil); err != nil {
		// the result is stored but the photo must not stay in Processing
		msg := fmt.Sprintf("failed to record completion: %v", err)
		o.log.Error("Photo analysis stored but completion not recorded", "photo_id", photo.ID, "result_id", result.ID, "error", err)
		if terr := o.transition(photo, models.PhotoStatusFailed, &msg); terr != nil {
			o.log.Error("Failed to record analysis failure", "photo_id", photo.ID, "error", terr)
		}
		outcome.Status = models.PhotoStatusFailed
		outcome.Error = msg
		return outcome, fmt.Errorf("analysis of photo %s failed: %w", photo.ID, err)
	}
	o.sendAlerts(photo, result.Anomalies)

	resultID := result.ID
	outcome.Status = models.PhotoStatusCompleted
	outcome.Cached = result.CachedResult
	outcome.ResultID = &resultID
	outcome.AnomalyCount = len(result.Anomalies)
	outcome.ReadingCount = len(result.Readings)
	o.log.Info("Photo analysis completed",
		"photo_id", photo.ID,
		"cached", result.CachedResult,
		"anomalies", outcome.AnomalyCount,
		"readings", outcome.ReadingCount,
		"processing_time_ms", result.ProcessingTimeMs,
	)
	return outcome, nil
}

// RecoverInterrupted marks photos left in Processing by a previous run as
// Failed so they can be reprocessed. It must run before workers start.
func (o *AnalysisOrchestrator) RecoverInterrupted() (int, error) {
	stuck, err := o.photos.ListByStatus(models.PhotoStatusProcessing)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for i := range stuck {
		photo := &stuck[i]
		msg := "processing interrupted before completion"
		if err := o.transition(photo, models.PhotoStatusFailed, &msg); err != nil {
			o.log.Warn("Failed to recover interrupted photo", "photo_id", photo.ID, "error", err)
			continue
		}
		recovered++
	}
	if recovered > 0 {
		o.log.Warn("Recovered interrupted photos", "count", recovered)
	}
	return recovered, nil
}

// ReprocessPhoto supersedes the current result of a Completed or Failed photo,
// returns it to Pending and runs it again. The stored original is reused.
func (o *AnalysisOrchestrator) ReprocessPhoto(ctx context.Context, photoID uuid.UUID) (*PhotoOutcome, error) {
	photo, err := o.loadPhoto(photoID)
	if err != nil {
		return nil, err
	}
	switch photo.Status {
	case models.PhotoStatusPending:
	case models.PhotoStatusCompleted, models.PhotoStatusFailed:
		if err := o.results.SupersedeAll(photo.ID); err != nil {
			return nil, err
		}
		if err := o.transition(photo, models.PhotoStatusPending, nil); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: photo %s is %s", ErrInvalidTransition, photo.ID, photo.Status)
	}
	return o.ProcessPhoto(ctx, photo.ID)
}

// AnalyzeBatch runs each photo independently. Pending photos are processed,
// finished ones reprocessed. Per-photo errors land in the summary.
func (o *AnalysisOrchestrator) AnalyzeBatch(ctx context.Context, photoIDs []uuid.UUID) *BatchSummary {
	items := make([]*PhotoOutcome, len(photoIDs))

	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for i, id := range photoIDs {
		g.Go(func() error {
			items[i] = o.runBatchItem(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	summary := &BatchSummary{Total: len(photoIDs), Items: items}
	for _, item := range items {
		switch {
		case item.Status != models.PhotoStatusCompleted:
			summary.Failed++
		case item.Cached:
			summary.Cached++
		default:
			summary.Success++
		}
	}
	o.log.Info("Batch analysis finished",
		"total", summary.Total, "success", summary.Success, "failed", summary.Failed, "cached", summary.Cached)
	return summary
}

func (o *AnalysisOrchestrator) runBatchItem(ctx context.Context, id uuid.UUID) *PhotoOutcome {
	photo, err := o.loadPhoto(id)
	if err != nil {
		return &PhotoOutcome{PhotoID: id, Status: models.PhotoStatusFailed, Error: err.Error()}
	}

	var outcome *PhotoOutcome
	if photo.Status == models.PhotoStatusPending {
		outcome, err = o.ProcessPhoto(ctx, id)
	} else {
		outcome, err = o.ReprocessPhoto(ctx, id)
	}
	if outcome == nil {
		outcome = &PhotoOutcome{PhotoID: id, Status: models.PhotoStatusFailed}
	}
	if err != nil && outcome.Error == "" {
		outcome.Error = err.Error()
	}
	return outcome
}

// analyze produces and persists the result for a photo in Processing.
func (o *AnalysisOrchestrator) analyze(ctx context.Context, photo *models.InspectionPhoto) (*models.AnalysisResult, error) {
	start := o.now()
	result := &models.AnalysisResult{PhotoID: photo.ID, SourceURI: photo.OriginalURI}

	entry, hit := o.lookupCache(ctx, photo)
	var payload *vision.Analysis
	if hit {
		payload = &entry.Analysis
		expires := entry.ExpiresAt
		result.CachedResult = true
		result.CacheExpiresAt = &expires
	} else {
		var err error
		payload, err = o.callVision(ctx, photo.OriginalURI)
		if err != nil {
			return nil, err
		}
		if stored, err := o.cache.Set(ctx, photo.OriginalURI, payload); err != nil {
			o.log.Warn("Failed to cache analysis", "photo_id", photo.ID, "uri", photo.OriginalURI, "error", err)
		} else {
			expires := stored.ExpiresAt
			result.CacheExpiresAt = &expires
		}
	}
	result.SetPayload(payload)

	anomalies := o.classifier.Classify(payload.Objects)
	readings := o.meters.Extract(payload.FullText(), photo)
	for i := range readings {
		if err := o.meters.Validate(&readings[i]); err != nil {
			return nil, fmt.Errorf("meter reading validation: %w", err)
		}
	}
	result.AnomaliesDetected = len(anomalies) > 0

	if !result.CachedResult {
		result.ProcessingTimeMs = o.now().Sub(start).Milliseconds()
	}

	if err := o.results.SaveWithFindings(result, anomalies, readings); err != nil {
		return nil, err
	}
	result.Anomalies = anomalies
	result.Readings = readings
	return result, nil
}

// lookupCache treats cache errors as a miss.
func (o *AnalysisOrchestrator) lookupCache(ctx context.Context, photo *models.InspectionPhoto) (*cache.Entry, bool) {
	entry, ok, err := o.cache.Get(ctx, photo.OriginalURI)
	if err != nil {
		o.log.Warn("Analysis cache lookup failed", "photo_id", photo.ID, "uri", photo.OriginalURI, "error", err)
		return nil, false
	}
	return entry, ok
}

func (o *AnalysisOrchestrator) callVision(ctx context.Context, uri string) (*vision.Analysis, error) {
	if o.vision == nil {
		return nil, fmt.Errorf("vision analysis is disabled")
	}
	vctx, cancel := context.WithTimeout(ctx, o.visionTimeout)
	defer cancel()

	payload, err := o.vision.Analyze(vctx, uri)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(vctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("vision analysis timed out after %s: %w", o.visionTimeout, err)
		}
		return nil, fmt.Errorf("vision analysis: %w", err)
	}
	if payload == nil {
		return nil, fmt.Errorf("vision analysis returned no payload")
	}
	return payload, nil
}

func (o *AnalysisOrchestrator) sendAlerts(photo *models.InspectionPhoto, anomalies []models.VisualAnomaly) {
	if o.notifier == nil {
		return
	}
	for i := range anomalies {
		if !anomalies[i].AlertSent {
			continue
		}
		if err := o.notifier.CriticalAnomaly(photo, &anomalies[i]); err != nil {
			o.log.Warn("Critical anomaly notification failed",
				"photo_id", photo.ID, "anomaly_id", anomalies[i].ID, "error", err)
		}
	}
}
