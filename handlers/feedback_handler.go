package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/camden-git/fleetinspectbackend/logger"
	"github.com/camden-git/fleetinspectbackend/models"
	"github.com/camden-git/fleetinspectbackend/services"
)

type ReviewRecorder interface {
	ConfirmAnomaly(id uuid.UUID, confirmed bool, userID string, workOrderID *string) (*models.VisualAnomaly, error)
	ValidateReading(id uuid.UUID, v services.ReadingValidation) (*models.MeterReading, error)
	RevalidateReading(id uuid.UUID) (*models.MeterReading, error)
}

type FeedbackHandler struct {
	Log      *logger.Logger
	Feedback ReviewRecorder
}

func (h *FeedbackHandler) ConfirmAnomaly(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, chi.URLParam(r, "anomaly_id"), "anomaly_id")
	if !ok {
		return
	}
	var req struct {
		Confirmed   *bool   `json:"confirmed"`
		UserID      string  `json:"user_id"`
		WorkOrderID *string `json:"work_order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidBody, "Invalid request body: "+err.Error())
		return
	}
	if req.Confirmed == nil {
		WriteAPIError(w, http.StatusBadRequest, CodeValidationFailed, "confirmed is required")
		return
	}

	anomaly, err := h.Feedback.ConfirmAnomaly(id, *req.Confirmed, req.UserID, req.WorkOrderID)
	if err != nil {
		writeServiceError(h.Log, w, err)
		return
	}
	writeJSON(h.Log, w, http.StatusOK, anomaly)
}

func (h *FeedbackHandler) ValidateReading(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, chi.URLParam(r, "reading_id"), "reading_id")
	if !ok {
		return
	}
	var req struct {
		IsValid   *bool   `json:"is_valid"`
		IsOutlier bool    `json:"is_outlier"`
		Notes     *string `json:"validation_notes"`
		UserID    string  `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidBody, "Invalid request body: "+err.Error())
		return
	}
	if req.IsValid == nil {
		WriteAPIError(w, http.StatusBadRequest, CodeValidationFailed, "is_valid is required")
		return
	}

	reading, err := h.Feedback.ValidateReading(id, services.ReadingValidation{
		IsValid:   *req.IsValid,
		IsOutlier: req.IsOutlier,
		Notes:     req.Notes,
		UserID:    req.UserID,
	})
	if err != nil {
		writeServiceError(h.Log, w, err)
		return
	}
	writeJSON(h.Log, w, http.StatusOK, reading)
}

// RevalidateReading reruns the automated outlier check; 409 once a reviewer ruled.
func (h *FeedbackHandler) RevalidateReading(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, chi.URLParam(r, "reading_id"), "reading_id")
	if !ok {
		return
	}
	reading, err := h.Feedback.RevalidateReading(id)
	if err != nil {
		writeServiceError(h.Log, w, err)
		return
	}
	writeJSON(h.Log, w, http.StatusOK, reading)
}
