package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/camden-git/fleetinspectbackend/logger"
)

func writeJSON(log *logger.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Warn("Error encoding JSON response", "error", err)
		}
	}
}

func parseUUIDParam(w http.ResponseWriter, raw, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidID, "Invalid "+name+": "+raw)
		return uuid.Nil, false
	}
	return id, true
}
