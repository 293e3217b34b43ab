package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/camden-git/fleetinspectbackend/logger"
	"github.com/camden-git/fleetinspectbackend/models"
	"github.com/camden-git/fleetinspectbackend/services"
	"github.com/camden-git/fleetinspectbackend/workers"
)

const (
	maxBatchSize        = 100
	multipartFormMemory = 8 << 20
	uploadFormField     = "photo"
)

type PhotoIngester interface {
	Ingest(ctx context.Context, req services.UploadRequest) (*models.InspectionPhoto, error)
}

type PhotoAnalyzer interface {
	ProcessPhoto(ctx context.Context, photoID uuid.UUID) (*services.PhotoOutcome, error)
	ReprocessPhoto(ctx context.Context, photoID uuid.UUID) (*services.PhotoOutcome, error)
	AnalyzeBatch(ctx context.Context, photoIDs []uuid.UUID) *services.BatchSummary
}

type AnalysisScheduler interface {
	QueueJob(job workers.AnalysisJob) bool
}

type InspectionReader interface {
	GetPhoto(id uuid.UUID) (*models.InspectionPhoto, error)
	ListPhotosByAsset(assetID string) ([]models.InspectionPhoto, error)
	LatestResult(photoID uuid.UUID) (*models.AnalysisResult, error)
}

type InspectionHandler struct {
	Log            *logger.Logger
	Ingest         PhotoIngester
	Analyzer       PhotoAnalyzer
	Scheduler      AnalysisScheduler
	Reader         InspectionReader
	MaxUploadBytes int64
}

type photoResponse struct {
	Photo  *models.InspectionPhoto `json:"photo"`
	Result *models.AnalysisResult  `json:"result,omitempty"`
}

func optionalFormValue(r *http.Request, key string) *string {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return nil
	}
	return &v
}

// UploadPhoto accepts a multipart upload with the image in the "photo" field.
// With process=true the photo is queued for analysis right away.
func (h *InspectionHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	// leave room for the other form fields
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(multipartFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			WriteAPIError(w, http.StatusRequestEntityTooLarge, CodeTooLarge, "Upload exceeds size limit")
			return
		}
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidBody, "Invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeValidationFailed, "Missing form file '"+uploadFormField+"'")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.MaxUploadBytes+1))
	if err != nil {
		h.Log.Error("Failed to read upload", "filename", header.Filename, "error", err)
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidBody, "Could not read uploaded file")
		return
	}

	photo, err := h.Ingest.Ingest(r.Context(), services.UploadRequest{
		AssetID:             strings.TrimSpace(r.FormValue("asset_id")),
		UploadedBy:          strings.TrimSpace(r.FormValue("uploaded_by")),
		ChecklistResponseID: optionalFormValue(r, "checklist_response_id"),
		WorkOrderID:         optionalFormValue(r, "work_order_id"),
		Filename:            header.Filename,
		ContentType:         header.Header.Get("Content-Type"),
		Data:                data,
	})
	if err != nil {
		writeServiceError(h.Log, w, err)
		return
	}

	resp := map[string]interface{}{"photo": photo, "queued": false}
	if r.FormValue("process") == "true" && h.Scheduler != nil {
		resp["queued"] = h.Scheduler.QueueJob(workers.AnalysisJob{PhotoID: photo.ID, Type: workers.JobProcess})
	}
	writeJSON(h.Log, w, http.StatusCreated, resp)
}

func (h *InspectionHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, chi.URLParam(r, "photo_id"), "photo_id")
	if !ok {
		return
	}
	photo, err := h.Reader.GetPhoto(id)
	if err != nil {
		writeServiceError(h.Log, w, err)
		return
	}
	result, err := h.Reader.LatestResult(id)
	if err != nil {
		writeServiceError(h.Log, w, err)
		return
	}
	writeJSON(h.Log, w, http.StatusOK, photoResponse{Photo: photo, Result: result})
}

func (h *InspectionHandler) ListAssetPhotos(w http.ResponseWriter, r *http.Request) {
	assetID := strings.TrimSpace(chi.URLParam(r, "asset_id"))
	if assetID == "" {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidID, "Missing asset_id")
		return
	}
	photos, err := h.Reader.ListPhotosByAsset(assetID)
	if err != nil {
		writeServiceError(h.Log, w, err)
		return
	}
	if photos == nil {
		photos = []models.InspectionPhoto{}
	}
	writeJSON(h.Log, w, http.StatusOK, map[string]interface{}{"asset_id": assetID, "photos": photos})
}

// ProcessPhoto queues a Pending photo; ?wait=true runs it inline and
// returns the outcome.
func (h *InspectionHandler) ProcessPhoto(w http.ResponseWriter, r *http.Request) {
	h.runPhotoJob(w, r, workers.JobProcess)
}

// ReprocessPhoto supersedes the current result and analyzes the photo again.
func (h *InspectionHandler) ReprocessPhoto(w http.ResponseWriter, r *http.Request) {
	h.runPhotoJob(w, r, workers.JobReprocess)
}

func (h *InspectionHandler) runPhotoJob(w http.ResponseWriter, r *http.Request, jobType string) {
	id, ok := parseUUIDParam(w, chi.URLParam(r, "photo_id"), "photo_id")
	if !ok {
		return
	}

	if r.URL.Query().Get("wait") == "true" || h.Scheduler == nil {
		var (
			outcome *services.PhotoOutcome
			err     error
		)
		if jobType == workers.JobReprocess {
			outcome, err = h.Analyzer.ReprocessPhoto(r.Context(), id)
		} else {
			outcome, err = h.Analyzer.ProcessPhoto(r.Context(), id)
		}
		if outcome != nil {
			// a failed analysis is a valid outcome, the photo is now Failed
			writeJSON(h.Log, w, http.StatusOK, outcome)
			return
		}
		writeServiceError(h.Log, w, err)
		return
	}

	if _, err := h.Reader.GetPhoto(id); err != nil {
		writeServiceError(h.Log, w, err)
		return
	}
	if !h.Scheduler.QueueJob(workers.AnalysisJob{PhotoID: id, Type: jobType}) {
		WriteAPIError(w, http.StatusConflict, CodeQueueFull, "Photo is already queued or the queue is full")
		return
	}
	writeJSON(h.Log, w, http.StatusAccepted, map[string]interface{}{"photo_id": id, "job": jobType, "queued": true})
}

// AnalyzeBatch runs a synchronous batch over {"photo_ids": [...]}.
func (h *InspectionHandler) AnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhotoIDs []string `json:"photo_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidBody, "Invalid request body: "+err.Error())
		return
	}
	if len(req.PhotoIDs) == 0 {
		WriteAPIError(w, http.StatusBadRequest, CodeValidationFailed, "photo_ids must not be empty")
		return
	}
	if len(req.PhotoIDs) > maxBatchSize {
		WriteAPIError(w, http.StatusBadRequest, CodeValidationFailed, "too many photo_ids in one batch")
		return
	}

	// A malformed id fails its own item; the rest of the batch still runs.
	ids := make([]uuid.UUID, 0, len(req.PhotoIDs))
	var rejected []*services.PhotoOutcome
	for _, raw := range req.PhotoIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			rejected = append(rejected, &services.PhotoOutcome{
				RawID:  raw,
				Status: models.PhotoStatusFailed,
				Error:  "invalid photo_id: " + raw,
			})
			continue
		}
		ids = append(ids, id)
	}

	summary := &services.BatchSummary{Items: []*services.PhotoOutcome{}}
	if len(ids) > 0 {
		summary = h.Analyzer.AnalyzeBatch(r.Context(), ids)
	}
	summary.Items = append(summary.Items, rejected...)
	summary.Total += len(rejected)
	summary.Failed += len(rejected)
	writeJSON(h.Log, w, http.StatusOK, summary)
}
