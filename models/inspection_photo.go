package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ProcessingStatus string

const (
	PhotoStatusPending    ProcessingStatus = "pending"
	PhotoStatusProcessing ProcessingStatus = "processing"
	PhotoStatusCompleted  ProcessingStatus = "completed"
	PhotoStatusFailed     ProcessingStatus = "failed"
)

// CanTransitionTo reports whether the pipeline may move a photo from s to next.
// Completed and Failed only go back to Pending through an explicit reprocess.
func (s ProcessingStatus) CanTransitionTo(next ProcessingStatus) bool {
	switch s {
	case PhotoStatusPending:
		return next == PhotoStatusProcessing
	case PhotoStatusProcessing:
		return next == PhotoStatusCompleted || next == PhotoStatusFailed
	case PhotoStatusCompleted, PhotoStatusFailed:
		return next == PhotoStatusPending
	}
	return false
}

// InspectionPhoto is an uploaded inspection photograph and its stored artifacts.
// It corresponds to the 'inspection_photos' table.
type InspectionPhoto struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AssetID             string    `gorm:"not null;index" json:"asset_id"`
	UploadedBy          string    `gorm:"not null" json:"uploaded_by"`
	ChecklistResponseID *string   `gorm:"index" json:"checklist_response_id,omitempty"` // Nullable
	WorkOrderID         *string   `gorm:"index" json:"work_order_id,omitempty"`         // Nullable

	StorageKey   string `gorm:"not null" json:"storage_key"`
	OriginalURI  string `gorm:"not null;index" json:"original_uri"`
	ThumbnailURI string `gorm:"not null" json:"thumbnail_uri"`
	ContentHash  string `gorm:"index" json:"content_hash"` // blake2b-256 of the uploaded bytes

	FileSize int64  `gorm:"not null" json:"file_size"`
	Width    int    `gorm:"not null" json:"width"`
	Height   int    `gorm:"not null" json:"height"`
	Format   string `gorm:"not null" json:"format"`

	CapturedAt     time.Time         `gorm:"not null;index" json:"captured_at"`
	GPSLatitude    *float64          `json:"gps_latitude,omitempty"`    // Nullable, set together with longitude
	GPSLongitude   *float64          `json:"gps_longitude,omitempty"`   // Nullable
	GPSAltitude    *float64          `json:"gps_altitude,omitempty"`    // Nullable, metres
	CompassHeading *float64          `json:"compass_heading,omitempty"` // Nullable, degrees
	DeviceInfo     datatypes.JSONMap `json:"device_info,omitempty"`

	Status       ProcessingStatus `gorm:"not null;default:pending;index" json:"status"`
	ErrorMessage *string          `json:"error_message,omitempty"` // Nullable
	ProcessedAt  *time.Time       `json:"processed_at,omitempty"`  // Nullable

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName explicitly sets the table name for GORM.
func (InspectionPhoto) TableName() string {
	return "inspection_photos"
}

// SetGPS records a coordinate pair. Latitude and longitude are stored together or not at all.
func (p *InspectionPhoto) SetGPS(lat, lon float64, alt *float64) {
	p.GPSLatitude = &lat
	p.GPSLongitude = &lon
	p.GPSAltitude = alt
}

// HasGPS reports whether both coordinates are present.
func (p *InspectionPhoto) HasGPS() bool {
	return p.GPSLatitude != nil && p.GPSLongitude != nil
}
