package services

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/fleetinspectbackend/models"
)

func TestExtractOdometerFromText(t *testing.T) {
	e := NewMeterReadingExtractor(newFakeReadingRepo())
	photo := &models.InspectionPhoto{ID: uuid.New(), AssetID: "truck-7"}

	readings := e.Extract("odometer 048231 km", photo)

	require.Len(t, readings, 1)
	r := readings[0]
	assert.Equal(t, 48231.0, r.Value)
	assert.Equal(t, "048231", r.RawText)
	assert.Equal(t, models.ReadingOdometer, r.ReadingType)
	assert.Equal(t, "km", r.Unit)
	assert.Equal(t, DefaultMeterConfidence, r.Confidence)
	assert.Equal(t, photo.ID, r.PhotoID)
	assert.Equal(t, "truck-7", r.AssetID)
}

func TestParseCandidatesFiltersNoise(t *testing.T) {
	got := ParseCandidates("unit 7 at 12 psi, trip 123.4, total 1234567, temp 250.125, hours 0815.50", models.ReadingOdometer)

	var values []float64
	for _, c := range got {
		values = append(values, c.Value)
	}
	assert.Equal(t, []float64{123.4, 815.5}, values)
}

func TestIsOutlierRule(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		history []float64
		want    bool
	}{
		{"no history", 5, nil, false},
		{"within band", 140, []float64{100}, false},
		{"exactly half above", 150, []float64{100}, false},
		{"above band", 150.01, []float64{100}, true},
		{"below band", 49, []float64{100}, true},
		{"mean of several", 48000, []float64{47000, 47500, 48500}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := IsOutlier(tt.value, tt.history)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateMarksOutlierWithNote(t *testing.T) {
	repo := newFakeReadingRepo()
	repo.history["truck-7/odometer"] = []float64{10000, 10200, 10400}
	e := NewMeterReadingExtractor(repo)

	reading := &models.MeterReading{AssetID: "truck-7", ReadingType: models.ReadingOdometer, Value: 48231, IsValid: true}
	require.NoError(t, e.Validate(reading))
	assert.True(t, reading.IsOutlier)
	assert.False(t, reading.IsValid)
	require.NotNil(t, reading.ValidationNotes)
	assert.Contains(t, *reading.ValidationNotes, "deviates")

	normal := &models.MeterReading{AssetID: "truck-7", ReadingType: models.ReadingOdometer, Value: 10500, IsValid: true}
	require.NoError(t, e.Validate(normal))
	assert.False(t, normal.IsOutlier)
	assert.True(t, normal.IsValid)
	assert.Nil(t, normal.ValidationNotes)
}

func TestValidateUsesOnlyTenMostRecent(t *testing.T) {
	repo := newFakeReadingRepo()
	history := make([]float64, 0, 15)
	for i := 0; i < 10; i++ {
		history = append(history, 1000)
	}
	for i := 0; i < 5; i++ {
		history = append(history, 1_000_000)
	}
	repo.history["a/odometer"] = history
	e := NewMeterReadingExtractor(repo)

	reading := &models.MeterReading{AssetID: "a", ReadingType: models.ReadingOdometer, Value: 1100}
	require.NoError(t, e.Validate(reading))
	assert.False(t, reading.IsOutlier)
}

func TestValidateSkipsHumanValidatedReading(t *testing.T) {
	repo := newFakeReadingRepo()
	repo.history["a/odometer"] = []float64{100}
	e := NewMeterReadingExtractor(repo)

	reviewer := "inspector-1"
	at := time.Now()
	reading := &models.MeterReading{
		AssetID:     "a",
		ReadingType: models.ReadingOdometer,
		Value:       900,
		IsValid:     true,
		ValidatedBy: &reviewer,
		ValidatedAt: &at,
	}
	err := e.Validate(reading)
	assert.ErrorIs(t, err, ErrHumanValidated)
	assert.True(t, reading.IsValid)
	assert.False(t, reading.IsOutlier)
}

func TestValidateSurfacesHistoryErrors(t *testing.T) {
	repo := newFakeReadingRepo()
	repo.err = errors.New("db down")
	e := NewMeterReadingExtractor(repo)

	err := e.Validate(&models.MeterReading{AssetID: "a", ReadingType: models.ReadingOdometer, Value: 100})
	assert.Error(t, err)
}
