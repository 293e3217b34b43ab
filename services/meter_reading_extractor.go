package services

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/camden-git/fleetinspectbackend/models"
	"github.com/google/uuid"
)

const (
	DefaultMeterConfidence = 0.8

	minIntegerDigits   = 3
	maxDecimalPlaces   = 2
	historyWindow      = 10
	outlierRelativeDev = 0.5
)

var meterCandidatePattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ReadingHistory supplies prior values for an (asset, reading type) pair, newest first.
type ReadingHistory interface {
	RecentValues(assetID string, readingType models.ReadingType, excludePhotoID uuid.UUID, limit int) ([]float64, error)
}

// MeterReadingExtractor parses numeric candidates from OCR text and checks
// them against the asset's recent readings.
type MeterReadingExtractor struct {
	history     ReadingHistory
	readingType models.ReadingType
	confidence  float64
}

func NewMeterReadingExtractor(history ReadingHistory) *MeterReadingExtractor {
	return &MeterReadingExtractor{
		history:     history,
		readingType: models.ReadingOdometer,
		confidence:  DefaultMeterConfidence,
	}
}

// Candidate is a number found in OCR text.
type Candidate struct {
	Value   float64
	RawText string
}

// ParseCandidates scans text for digit runs with an optional decimal part.
// Runs shorter than three integer digits or with more than two decimals are
// dropped, as are values outside the reading type's bounds.
func ParseCandidates(text string, readingType models.ReadingType) []Candidate {
	lo, hi := readingType.Bounds()
	var out []Candidate
	for _, match := range meterCandidatePattern.FindAllString(text, -1) {
		intPart, decPart, _ := strings.Cut(match, ".")
		if len(intPart) < minIntegerDigits || len(decPart) > maxDecimalPlaces {
			continue
		}
		v, err := strconv.ParseFloat(match, 64)
		if err != nil || v < lo || v > hi {
			continue
		}
		out = append(out, Candidate{Value: v, RawText: match})
	}
	return out
}

// Extract builds unvalidated readings for the photo from the full OCR text.
func (e *MeterReadingExtractor) Extract(text string, photo *models.InspectionPhoto) []models.MeterReading {
	var readings []models.MeterReading
	for _, c := range ParseCandidates(text, e.readingType) {
		readings = append(readings, models.MeterReading{
			PhotoID:     photo.ID,
			AssetID:     photo.AssetID,
			ReadingType: e.readingType,
			Value:       c.Value,
			Unit:        e.readingType.Unit(),
			Confidence:  e.confidence,
			RawText:     c.RawText,
			IsValid:     true,
		})
	}
	return readings
}

// Validate sets the outlier flag from the mean of up to ten prior readings.
// Readings a reviewer has ruled on are left untouched.
func (e *MeterReadingExtractor) Validate(reading *models.MeterReading) error {
	if reading.HumanValidated() {
		return ErrHumanValidated
	}
	history, err := e.history.RecentValues(reading.AssetID, reading.ReadingType, reading.PhotoID, historyWindow)
	if err != nil {
		return fmt.Errorf("failed to load reading history for asset %s: %w", reading.AssetID, err)
	}

	outlier, mean := IsOutlier(reading.Value, history)
	reading.IsOutlier = outlier
	reading.IsValid = !outlier
	reading.ValidationNotes = nil
	if outlier {
		note := fmt.Sprintf("value %g deviates more than %.0f%% from mean %.2f of last %d readings",
			reading.Value, outlierRelativeDev*100, mean, len(history))
		reading.ValidationNotes = &note
	}
	return nil
}

// IsOutlier reports |v - M| > 0.5*M for the mean M of history. Empty history
// is never an outlier.
func IsOutlier(v float64, history []float64) (bool, float64) {
	if len(history) == 0 {
		return false, 0
	}
	var sum float64
	for _, h := range history {
		sum += h
	}
	mean := sum / float64(len(history))
	return math.Abs(v-mean) > outlierRelativeDev*mean, mean
}
