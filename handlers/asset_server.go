package handlers

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/camden-git/fleetinspectbackend/logger"
	"github.com/camden-git/fleetinspectbackend/media"
)

// ArtifactServer serves artifacts written by a LocalStorage. The request
// path after routePrefix is the storage key, e.g. with
//
//	r.Get("/artifacts/*", ArtifactServer(log, store, "/api/artifacts/"))
//
// a GET of /api/artifacts/inspections/truck-7/x.jpg reads key inspections/truck-7/x.jpg.
func ArtifactServer(log *logger.Logger, store *media.LocalStorage, routePrefix string) http.HandlerFunc {
	log = log.With("handler", "ArtifactServer")
	log.Info("Serving artifacts", "prefix", routePrefix, "dir", store.BasePath())

	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, routePrefix)
		if key == "" || strings.Contains(key, "..") {
			WriteAPIError(w, http.StatusBadRequest, CodeInvalidPath, "Invalid artifact path")
			return
		}

		fullPath, err := store.GetFullPath(key)
		if err != nil {
			log.Warn("Artifact access outside storage root", "path", r.URL.Path, "error", err)
			WriteAPIError(w, http.StatusForbidden, CodeForbidden, "Forbidden")
			return
		}

		if _, err := os.Stat(fullPath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			log.Error("Error stating artifact", "path", fullPath, "error", err)
			WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Internal Server Error")
			return
		}

		// keys embed an upload timestamp, so content never changes
		cacheDuration := 24 * time.Hour
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(cacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(cacheDuration).Format(http.TimeFormat))

		http.ServeFile(w, r, fullPath)
	}
}
