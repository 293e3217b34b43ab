package repository

import (
	"errors"
	"time"

	"github.com/camden-git/fleetinspectbackend/models"
	"github.com/google/uuid"
)

// ErrStatusConflict is returned when a status transition finds the photo in
// another state than expected (another writer got there first).
var ErrStatusConflict = errors.New("photo status changed concurrently")

// PhotoRepositoryInterface defines the methods for inspection photo data operations
type PhotoRepositoryInterface interface {
	Create(photo *models.InspectionPhoto) error
	GetByID(id uuid.UUID) (*models.InspectionPhoto, error)
	ListByAsset(assetID string) ([]models.InspectionPhoto, error)
	ListByStatus(status models.ProcessingStatus) ([]models.InspectionPhoto, error)
	TransitionStatus(id uuid.UUID, from, to models.ProcessingStatus, errMsg *string) error
}

// AnalysisResultRepositoryInterface defines the methods for analysis result data operations
type AnalysisResultRepositoryInterface interface {
	// SaveWithFindings supersedes earlier results of the photo and stores the
	// result with its anomalies and readings in one transaction.
	SaveWithFindings(result *models.AnalysisResult, anomalies []models.VisualAnomaly, readings []models.MeterReading) error
	SupersedeAll(photoID uuid.UUID) error
	LatestForPhoto(photoID uuid.UUID) (*models.AnalysisResult, error)
	ListForPhoto(photoID uuid.UUID) ([]models.AnalysisResult, error)
}

// AnomalyRepositoryInterface defines the methods for visual anomaly data operations
type AnomalyRepositoryInterface interface {
	GetByID(id uuid.UUID) (*models.VisualAnomaly, error)
	ListByResult(resultID uuid.UUID) ([]models.VisualAnomaly, error)
	SetConfirmation(id uuid.UUID, confirmed bool, by string, at time.Time, workOrderID *string) error
}

// MeterReadingRepositoryInterface defines the methods for meter reading data operations
type MeterReadingRepositoryInterface interface {
	GetByID(id uuid.UUID) (*models.MeterReading, error)
	ListByResult(resultID uuid.UUID) ([]models.MeterReading, error)
	RecentValues(assetID string, readingType models.ReadingType, excludePhotoID uuid.UUID, limit int) ([]float64, error)
	UpdateValidation(reading *models.MeterReading) error
}
