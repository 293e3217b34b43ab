package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/camden-git/fleetinspectbackend/logger"
	"github.com/camden-git/fleetinspectbackend/services"
)

// error codes returned in APIErrorDetail.Code
const (
	CodeTooLarge          = "too_large"
	CodeUnsupportedFormat = "unsupported_format"
	CodeCorruptImage      = "corrupt_image"
	CodeValidationFailed  = "validation_failed"
	CodeInvalidBody       = "invalid_body"
	CodeInvalidID         = "invalid_id"
	CodeInvalidPath       = "invalid_path"
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodeQueueFull         = "queue_full"
	CodeForbidden         = "forbidden"
	CodeInternal          = "internal_error"
)

type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a single-error response body with the given status.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(APIErrorResponse{
		Errors: []APIErrorDetail{{Code: code, Status: strconv.Itoa(httpStatus), Detail: detail}},
	})
}

// writeServiceError maps service errors onto status codes. Validation
// subclasses are checked before the generic ErrValidation they wrap.
func writeServiceError(log *logger.Logger, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrTooLarge):
		WriteAPIError(w, http.StatusRequestEntityTooLarge, CodeTooLarge, err.Error())
	case errors.Is(err, services.ErrUnsupportedFormat):
		WriteAPIError(w, http.StatusUnsupportedMediaType, CodeUnsupportedFormat, err.Error())
	case errors.Is(err, services.ErrCorruptImage):
		WriteAPIError(w, http.StatusBadRequest, CodeCorruptImage, err.Error())
	case errors.Is(err, services.ErrValidation):
		WriteAPIError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
	case errors.Is(err, services.ErrPhotoNotFound),
		errors.Is(err, services.ErrAnomalyNotFound),
		errors.Is(err, services.ErrReadingNotFound):
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrHumanValidated):
		WriteAPIError(w, http.StatusConflict, CodeConflict, err.Error())
	default:
		log.Error("Unhandled service error", "error", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
	}
}
