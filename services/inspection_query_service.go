package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/camden-git/fleetinspectbackend/models"
	"github.com/camden-git/fleetinspectbackend/repository"
)

// InspectionQueryService serves read access to photos and their findings.
type InspectionQueryService struct {
	photos    repository.PhotoRepositoryInterface
	results   repository.AnalysisResultRepositoryInterface
	anomalies repository.AnomalyRepositoryInterface
	readings  repository.MeterReadingRepositoryInterface
}

func NewInspectionQueryService(
	photos repository.PhotoRepositoryInterface,
	results repository.AnalysisResultRepositoryInterface,
	anomalies repository.AnomalyRepositoryInterface,
	readings repository.MeterReadingRepositoryInterface,
) *InspectionQueryService {
	return &InspectionQueryService{photos: photos, results: results, anomalies: anomalies, readings: readings}
}

func (s *InspectionQueryService) GetPhoto(id uuid.UUID) (*models.InspectionPhoto, error) {
	photo, err := s.photos.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPhotoNotFound, id)
		}
		return nil, err
	}
	return photo, nil
}

func (s *InspectionQueryService) ListPhotosByAsset(assetID string) ([]models.InspectionPhoto, error) {
	return s.photos.ListByAsset(assetID)
}

// LatestResult returns the current result of a photo, or nil when it has none.
func (s *InspectionQueryService) LatestResult(photoID uuid.UUID) (*models.AnalysisResult, error) {
	result, err := s.results.LatestForPhoto(photoID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return result, nil
}

func (s *InspectionQueryService) ListAnomalies(photoID uuid.UUID) ([]models.VisualAnomaly, error) {
	result, err := s.LatestResult(photoID)
	if err != nil || result == nil {
		return nil, err
	}
	return s.anomalies.ListByResult(result.ID)
}

func (s *InspectionQueryService) ListReadings(photoID uuid.UUID) ([]models.MeterReading, error) {
	result, err := s.LatestResult(photoID)
	if err != nil || result == nil {
		return nil, err
	}
	return s.readings.ListByResult(result.ID)
}

// ResultHistory returns every result of a photo including superseded ones.
func (s *InspectionQueryService) ResultHistory(photoID uuid.UUID) ([]models.AnalysisResult, error) {
	return s.results.ListForPhoto(photoID)
}
