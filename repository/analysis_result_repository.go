package repository

import (
	"errors"
	"fmt"

	"github.com/camden-git/fleetinspectbackend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AnalysisResultRepository handles database operations for AnalysisResult entities
type AnalysisResultRepository struct {
	DB *gorm.DB
}

// NewAnalysisResultRepository creates a new instance of AnalysisResultRepository
func NewAnalysisResultRepository(db *gorm.DB) *AnalysisResultRepository {
	return &AnalysisResultRepository{DB: db}
}

func (r *AnalysisResultRepository) SaveWithFindings(result *models.AnalysisResult, anomalies []models.VisualAnomaly, readings []models.MeterReading) error {
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.AnalysisResult{}).
			Where("photo_id = ? AND superseded = ?", result.PhotoID, false).
			Update("superseded", true).Error; err != nil {
			return fmt.Errorf("failed to supersede prior results for photo %s: %w", result.PhotoID, err)
		}

		result.Superseded = false
		if err := tx.Omit("Anomalies", "Readings").Create(result).Error; err != nil {
			return fmt.Errorf("failed to store analysis result for photo %s: %w", result.PhotoID, err)
		}

		for i := range anomalies {
			if anomalies[i].ID == uuid.Nil {
				anomalies[i].ID = uuid.New()
			}
			anomalies[i].PhotoID = result.PhotoID
			anomalies[i].AnalysisResultID = result.ID
		}
		if len(anomalies) > 0 {
			if err := tx.Create(&anomalies).Error; err != nil {
				return fmt.Errorf("failed to store anomalies for photo %s: %w", result.PhotoID, err)
			}
		}

		for i := range readings {
			if readings[i].ID == uuid.Nil {
				readings[i].ID = uuid.New()
			}
			readings[i].PhotoID = result.PhotoID
			readings[i].AnalysisResultID = result.ID
		}
		if len(readings) > 0 {
			if err := tx.Create(&readings).Error; err != nil {
				return fmt.Errorf("failed to store meter readings for photo %s: %w", result.PhotoID, err)
			}
		}
		return nil
	})
}

// SupersedeAll marks every current result of a photo as superseded, keeping the rows
func (r *AnalysisResultRepository) SupersedeAll(photoID uuid.UUID) error {
	err := r.DB.Model(&models.AnalysisResult{}).
		Where("photo_id = ? AND superseded = ?", photoID, false).
		Update("superseded", true).Error
	if err != nil {
		return fmt.Errorf("failed to supersede results for photo %s: %w", photoID, err)
	}
	return nil
}

// LatestForPhoto returns the current result with its findings
func (r *AnalysisResultRepository) LatestForPhoto(photoID uuid.UUID) (*models.AnalysisResult, error) {
	var result models.AnalysisResult
	err := r.DB.Preload("Anomalies").Preload("Readings").
		Where("photo_id = ? AND superseded = ?", photoID, false).
		Order("created_at DESC").
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get latest result for photo %s: %w", photoID, err)
	}
	return &result, nil
}

// ListForPhoto returns every result of a photo, superseded ones included, newest first
func (r *AnalysisResultRepository) ListForPhoto(photoID uuid.UUID) ([]models.AnalysisResult, error) {
	var results []models.AnalysisResult
	if err := r.DB.Where("photo_id = ?", photoID).Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to list results for photo %s: %w", photoID, err)
	}
	return results, nil
}
