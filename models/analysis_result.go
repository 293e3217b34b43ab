package models

import (
	"time"

	"github.com/camden-git/fleetinspectbackend/vision"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AnalysisResult is one analysis run for a photo. A reprocess writes a new row
// and marks the earlier ones superseded; nothing is deleted.
type AnalysisResult struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PhotoID uuid.UUID `gorm:"type:uuid;not null;index" json:"photo_id"`

	SourceURI  string                                   `gorm:"not null;index" json:"source_uri"`
	Labels     datatypes.JSONSlice[vision.Label]          `json:"labels"`
	Objects    datatypes.JSONSlice[vision.DetectedObject] `json:"objects"`
	Texts      datatypes.JSONSlice[vision.TextBlock]      `json:"texts"`
	Colors     datatypes.JSONSlice[vision.Color]          `json:"colors"`
	SafeSearch datatypes.JSONType[vision.SafeSearch]      `json:"safe_search"`

	AnomaliesDetected bool   `gorm:"not null;default:false" json:"anomalies_detected"`
	ProcessingTimeMs  int64  `gorm:"not null;default:0" json:"processing_time_ms"`
	ModelVersion      string `json:"model_version"`

	CachedResult   bool       `gorm:"not null;default:false" json:"cached_result"`
	CacheExpiresAt *time.Time `json:"cache_expires_at,omitempty"` // Nullable

	Superseded bool      `gorm:"not null;default:false;index" json:"superseded"`
	CreatedAt  time.Time `json:"created_at"`

	Anomalies []VisualAnomaly `gorm:"foreignKey:AnalysisResultID" json:"anomalies,omitempty"`
	Readings  []MeterReading  `gorm:"foreignKey:AnalysisResultID" json:"readings,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (AnalysisResult) TableName() string {
	return "analysis_results"
}

// Payload rebuilds the vision payload stored on the row.
func (r *AnalysisResult) Payload() *vision.Analysis {
	return &vision.Analysis{
		Labels:       r.Labels,
		Objects:      r.Objects,
		Texts:        r.Texts,
		Colors:       r.Colors,
		SafeSearch:   r.SafeSearch.Data(),
		ModelVersion: r.ModelVersion,
	}
}

// SetPayload copies every section of a vision payload onto the row.
func (r *AnalysisResult) SetPayload(a *vision.Analysis) {
	if a == nil {
		return
	}
	r.Labels = a.Labels
	r.Objects = a.Objects
	r.Texts = a.Texts
	r.Colors = a.Colors
	r.SafeSearch = datatypes.NewJSONType(a.SafeSearch)
	r.ModelVersion = a.ModelVersion
}
