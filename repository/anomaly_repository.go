package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/camden-git/fleetinspectbackend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AnomalyRepository handles database operations for VisualAnomaly entities
type AnomalyRepository struct {
	DB *gorm.DB
}

// NewAnomalyRepository creates a new instance of AnomalyRepository
func NewAnomalyRepository(db *gorm.DB) *AnomalyRepository {
	return &AnomalyRepository{DB: db}
}

func (r *AnomalyRepository) GetByID(id uuid.UUID) (*models.VisualAnomaly, error) {
	var anomaly models.VisualAnomaly
	err := r.DB.Where("id = ?", id).First(&anomaly).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get anomaly %s: %w", id, err)
	}
	return &anomaly, nil
}

func (r *AnomalyRepository) ListByResult(resultID uuid.UUID) ([]models.VisualAnomaly, error) {
	var anomalies []models.VisualAnomaly
	err := r.DB.Where("analysis_result_id = ?", resultID).Order("confidence DESC").Find(&anomalies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list anomalies for result %s: %w", resultID, err)
	}
	return anomalies, nil
}

// SetConfirmation records a reviewer's verdict and, optionally, the remediation work order
func (r *AnomalyRepository) SetConfirmation(id uuid.UUID, confirmed bool, by string, at time.Time, workOrderID *string) error {
	updates := map[string]interface{}{
		"confirmed":    confirmed,
		"confirmed_by": by,
		"confirmed_at": at,
	}
	if workOrderID != nil {
		updates["work_order_id"] = *workOrderID
	}
	result := r.DB.Model(&models.VisualAnomaly{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to set confirmation for anomaly %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
