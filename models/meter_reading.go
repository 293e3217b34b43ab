package models

import (
	"time"

	"github.com/google/uuid"
)

type ReadingType string

const (
	ReadingOdometer    ReadingType = "odometer"
	ReadingHourMeter   ReadingType = "hour_meter"
	ReadingPressure    ReadingType = "pressure"
	ReadingTemperature ReadingType = "temperature"
	ReadingFuelLevel   ReadingType = "fuel_level"
	ReadingOther       ReadingType = "other"
)

// Unit is the default display unit recorded for a reading type.
func (t ReadingType) Unit() string {
	switch t {
	case ReadingOdometer:
		return "km"
	case ReadingHourMeter:
		return "h"
	case ReadingPressure:
		return "psi"
	case ReadingTemperature:
		return "C"
	case ReadingFuelLevel:
		return "%"
	}
	return ""
}

// Bounds is the sane value domain for a reading type.
func (t ReadingType) Bounds() (min, max float64) {
	switch t {
	case ReadingHourMeter:
		return 0, 99999
	case ReadingPressure:
		return 0, 10000
	case ReadingTemperature:
		return -50, 1500
	case ReadingFuelLevel:
		return 0, 100
	}
	return 0, 999999
}

// MeterReading is a numeric instrument value recognised on a photo.
type MeterReading struct {
	ID               uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	PhotoID          uuid.UUID   `gorm:"type:uuid;not null;index" json:"photo_id"`
	AnalysisResultID uuid.UUID   `gorm:"type:uuid;not null;index" json:"analysis_result_id"`
	AssetID          string      `gorm:"not null;index:idx_reading_asset_type" json:"asset_id"`
	ReadingType      ReadingType `gorm:"not null;index:idx_reading_asset_type" json:"reading_type"`

	Value      float64 `gorm:"not null" json:"value"`
	Unit       string  `json:"unit"`
	Confidence float64 `gorm:"not null" json:"confidence"`
	RawText    string  `json:"raw_text"`

	IsValid         bool       `gorm:"not null" json:"is_valid"`
	IsOutlier       bool       `gorm:"not null;default:false" json:"is_outlier"`
	ValidationNotes *string    `json:"validation_notes,omitempty"`
	ValidatedBy     *string    `json:"validated_by,omitempty"` // set only by a human reviewer
	ValidatedAt     *time.Time `json:"validated_at,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName explicitly sets the table name for GORM.
func (MeterReading) TableName() string {
	return "meter_readings"
}

// HumanValidated reports whether a reviewer has ruled on this reading.
func (m *MeterReading) HumanValidated() bool {
	return m.ValidatedBy != nil
}
