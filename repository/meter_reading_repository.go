package repository

import (
	"errors"
	"fmt"

	"github.com/camden-git/fleetinspectbackend/database"
	"github.com/camden-git/fleetinspectbackend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MeterReadingRepository handles database operations for MeterReading entities
type MeterReadingRepository struct {
	DB *gorm.DB
}

// NewMeterReadingRepository creates a new instance of MeterReadingRepository
func NewMeterReadingRepository(db *gorm.DB) *MeterReadingRepository {
	return &MeterReadingRepository{DB: db}
}

func (r *MeterReadingRepository) GetByID(id uuid.UUID) (*models.MeterReading, error) {
	var reading models.MeterReading
	err := r.DB.Where("id = ?", id).First(&reading).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get meter reading %s: %w", id, err)
	}
	return &reading, nil
}

func (r *MeterReadingRepository) ListByResult(resultID uuid.UUID) ([]models.MeterReading, error) {
	var readings []models.MeterReading
	if err := r.DB.Where("analysis_result_id = ?", resultID).Find(&readings).Error; err != nil {
		return nil, fmt.Errorf("failed to list readings for result %s: %w", resultID, err)
	}
	return readings, nil
}

// RecentValues returns up to limit prior values for (asset, type) from current results, newest first
func (r *MeterReadingRepository) RecentValues(assetID string, readingType models.ReadingType, excludePhotoID uuid.UUID, limit int) ([]float64, error) {
	exclude := ""
	if excludePhotoID != uuid.Nil {
		exclude = excludePhotoID.String()
	}
	return database.RecentReadingValues(r.DB, assetID, readingType, exclude, limit)
}

// UpdateValidation persists the validity, outlier and reviewer fields of a reading
func (r *MeterReadingRepository) UpdateValidation(reading *models.MeterReading) error {
	updates := map[string]interface{}{
		"is_valid":         reading.IsValid,
		"is_outlier":       reading.IsOutlier,
		"validation_notes": reading.ValidationNotes,
		"validated_by":     reading.ValidatedBy,
		"validated_at":     reading.ValidatedAt,
	}
	result := r.DB.Model(&models.MeterReading{}).Where("id = ?", reading.ID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update validation for reading %s: %w", reading.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
