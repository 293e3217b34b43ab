package repository

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/camden-git/fleetinspectbackend/models"
	"github.com/facette/natsort"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PhotoRepository handles database operations for InspectionPhoto entities
type PhotoRepository struct {
	DB *gorm.DB
}

// NewPhotoRepository creates a new instance of PhotoRepository
func NewPhotoRepository(db *gorm.DB) *PhotoRepository {
	return &PhotoRepository{DB: db}
}

// Create inserts a new photo record in pending state
func (r *PhotoRepository) Create(photo *models.InspectionPhoto) error {
	if photo.ID == uuid.Nil {
		photo.ID = uuid.New()
	}
	if photo.Status == "" {
		photo.Status = models.PhotoStatusPending
	}
	if err := r.DB.Create(photo).Error; err != nil {
		return fmt.Errorf("failed to create inspection photo for asset %s: %w", photo.AssetID, err)
	}
	return nil
}

// GetByID retrieves a photo by its ID
func (r *PhotoRepository) GetByID(id uuid.UUID) (*models.InspectionPhoto, error) {
	var photo models.InspectionPhoto
	err := r.DB.Where("id = ?", id).First(&photo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get inspection photo %s: %w", id, err)
	}
	return &photo, nil
}

// ListByAsset returns all photos of an asset in natural order of their storage keys
func (r *PhotoRepository) ListByAsset(assetID string) ([]models.InspectionPhoto, error) {
	var photos []models.InspectionPhoto
	if err := r.DB.Where("asset_id = ?", assetID).Find(&photos).Error; err != nil {
		return nil, fmt.Errorf("failed to list photos for asset %s: %w", assetID, err)
	}
	sortPhotosByKey(photos)
	return photos, nil
}

// ListByStatus returns every photo currently in the given status
func (r *PhotoRepository) ListByStatus(status models.ProcessingStatus) ([]models.InspectionPhoto, error) {
	var photos []models.InspectionPhoto
	if err := r.DB.Where("status = ?", status).Order("created_at ASC").Find(&photos).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s photos: %w", status, err)
	}
	return photos, nil
}

func sortPhotosByKey(photos []models.InspectionPhoto) {
	sort.SliceStable(photos, func(i, j int) bool {
		return natsort.Compare(photos[i].StorageKey, photos[j].StorageKey)
	})
}

// TransitionStatus moves a photo from one status to another. The update only
// applies while the row still holds the expected status.
func (r *PhotoRepository) TransitionStatus(id uuid.UUID, from, to models.ProcessingStatus, errMsg *string) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("invalid status transition %s -> %s for photo %s", from, to, id)
	}

	updates := map[string]interface{}{
		"status":        to,
		"error_message": errMsg,
		"updated_at":    time.Now(),
	}
	if to == models.PhotoStatusCompleted || to == models.PhotoStatusFailed {
		updates["processed_at"] = time.Now()
	}
	if to == models.PhotoStatusPending {
		updates["processed_at"] = gorm.Expr("NULL")
	}

	result := r.DB.Model(&models.InspectionPhoto{}).Where("id = ? AND status = ?", id, from).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to move photo %s from %s to %s: %w", id, from, to, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}
