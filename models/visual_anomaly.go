package models

import (
	"time"

	"github.com/google/uuid"
)

type AnomalyType string

const (
	AnomalyCorrosion   AnomalyType = "corrosion"
	AnomalyCrack       AnomalyType = "crack"
	AnomalyLeak        AnomalyType = "leak"
	AnomalyWear        AnomalyType = "wear"
	AnomalyDeformation AnomalyType = "deformation"
	AnomalyOther       AnomalyType = "other"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities Low < Medium < High < Critical. Unknown values rank below Low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// SeverityForConfidence maps a detection confidence onto a severity tier.
func SeverityForConfidence(c float64) Severity {
	switch {
	case c >= 0.90:
		return SeverityCritical
	case c >= 0.80:
		return SeverityHigh
	case c >= 0.70:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// BoundingBox is a normalized axis-aligned box; every field lies in [0,1].
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the box origin and extent stay inside the unit square.
func (b BoundingBox) Valid() bool {
	in := func(v float64) bool { return v >= 0 && v <= 1 }
	return in(b.X) && in(b.Y) && in(b.Width) && in(b.Height) && b.X+b.Width <= 1+1e-9 && b.Y+b.Height <= 1+1e-9
}

// VisualAnomaly is a defect detected on a photo by one analysis result.
type VisualAnomaly struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PhotoID          uuid.UUID `gorm:"type:uuid;not null;index" json:"photo_id"`
	AnalysisResultID uuid.UUID `gorm:"type:uuid;not null;index" json:"analysis_result_id"`

	AnomalyType AnomalyType `gorm:"not null" json:"anomaly_type"`
	Severity    Severity    `gorm:"not null;index" json:"severity"`
	Confidence  float64     `gorm:"not null" json:"confidence"`
	Label       string      `json:"label"` // detected object name that matched
	BoundingBox BoundingBox `gorm:"embedded;embeddedPrefix:bbox_" json:"bounding_box"`

	// nil = unreviewed, true = confirmed, false = rejected
	Confirmed   *bool      `json:"confirmed,omitempty"`
	ConfirmedBy *string    `json:"confirmed_by,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	WorkOrderID *string    `gorm:"index" json:"work_order_id,omitempty"`

	AlertSent   bool       `gorm:"not null;default:false" json:"alert_sent"`
	AlertSentAt *time.Time `json:"alert_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName explicitly sets the table name for GORM.
func (VisualAnomaly) TableName() string {
	return "visual_anomalies"
}
