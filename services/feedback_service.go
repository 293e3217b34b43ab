package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/camden-git/fleetinspectbackend/logger"
	"github.com/camden-git/fleetinspectbackend/models"
	"github.com/camden-git/fleetinspectbackend/repository"
)

// FeedbackService records reviewer decisions on anomalies and readings.
type FeedbackService struct {
	log       *logger.Logger
	anomalies repository.AnomalyRepositoryInterface
	readings  repository.MeterReadingRepositoryInterface
	meters    *MeterReadingExtractor
	now       func() time.Time
}

func NewFeedbackService(log *logger.Logger, anomalies repository.AnomalyRepositoryInterface, readings repository.MeterReadingRepositoryInterface, meters *MeterReadingExtractor) *FeedbackService {
	return &FeedbackService{
		log:       log.With("service", "FeedbackService"),
		anomalies: anomalies,
		readings:  readings,
		meters:    meters,
		now:       time.Now,
	}
}

// ConfirmAnomaly marks an anomaly confirmed or rejected, optionally linking
// the work order raised for it.
func (s *FeedbackService) ConfirmAnomaly(id uuid.UUID, confirmed bool, userID string, workOrderID *string) (*models.VisualAnomaly, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: reviewer is required", ErrValidation)
	}
	if err := s.anomalies.SetConfirmation(id, confirmed, userID, s.now(), workOrderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAnomalyNotFound, id)
		}
		return nil, err
	}
	s.log.Info("Anomaly reviewed", "anomaly_id", id, "confirmed", confirmed, "by", userID)
	return s.anomalies.GetByID(id)
}

// ReadingValidation is a reviewer's verdict on a meter reading.
type ReadingValidation struct {
	IsValid   bool
	IsOutlier bool
	Notes     *string
	UserID    string
}

// ValidateReading records a human override. Afterwards automated
// revalidation leaves the reading alone.
func (s *FeedbackService) ValidateReading(id uuid.UUID, v ReadingValidation) (*models.MeterReading, error) {
	if strings.TrimSpace(v.UserID) == "" {
		return nil, fmt.Errorf("%w: reviewer is required", ErrValidation)
	}
	reading, err := s.getReading(id)
	if err != nil {
		return nil, err
	}
	at := s.now()
	user := v.UserID
	reading.IsValid = v.IsValid
	reading.IsOutlier = v.IsOutlier
	reading.ValidationNotes = v.Notes
	reading.ValidatedBy = &user
	reading.ValidatedAt = &at
	if err := s.readings.UpdateValidation(reading); err != nil {
		return nil, err
	}
	s.log.Info("Meter reading validated", "reading_id", id, "valid", v.IsValid, "outlier", v.IsOutlier, "by", user)
	return reading, nil
}

// RevalidateReading reruns the outlier check against current history.
// Returns ErrHumanValidated for readings a reviewer already ruled on.
func (s *FeedbackService) RevalidateReading(id uuid.UUID) (*models.MeterReading, error) {
	reading, err := s.getReading(id)
	if err != nil {
		return nil, err
	}
	if err := s.meters.Validate(reading); err != nil {
		return nil, err
	}
	if err := s.readings.UpdateValidation(reading); err != nil {
		return nil, err
	}
	return reading, nil
}

func (s *FeedbackService) getReading(id uuid.UUID) (*models.MeterReading, error) {
	reading, err := s.readings.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrReadingNotFound, id)
		}
		return nil, err
	}
	return reading, nil
}
