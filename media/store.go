package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/camden-git/fleetinspectbackend/logger"
)

// ArtifactStore accepts byte buffers under a destination key and returns a
// URI the vision service and clients can retrieve them from.
type ArtifactStore interface {
	Upload(ctx context.Context, data []byte, key string, contentType string) (string, error)
	// Delete removes an artifact; used only to roll back an upload whose
	// photo record could not be created
	Delete(ctx context.Context, key string) error
}

// FilenameFor builds the storage key inspections/{assetID}/{timestamp}_{userID}.{ext}.
// The timestamp segment carries a "-{unique}" suffix when unique is set, so
// uploads for the same asset and user within one second never share a key.
func FilenameFor(assetID, userID, ext string, at time.Time, unique string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "jpg"
	}
	stamp := at.UTC().Format("20060102_150405")
	if unique = strings.TrimSpace(unique); unique != "" {
		stamp += "-" + sanitizeSegment(unique)
	}
	return fmt.Sprintf("inspections/%s/%s_%s.%s", sanitizeSegment(assetID), stamp, sanitizeSegment(userID), ext)
}

// ThumbnailKey inserts "_thumb" before the extension of an original key.
func ThumbnailKey(key string) string {
	ext := path.Ext(key)
	return strings.TrimSuffix(key, ext) + "_thumb" + ext
}

func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	if s == "" {
		return "unknown"
	}
	return s
}

// LocalStorage implements ArtifactStore using the local filesystem
type LocalStorage struct {
	log      *logger.Logger
	basePath string // absolute path to the MEDIA_STORAGE_PATH
	baseURL  string // prefix prepended to keys to form URIs
}

// NewLocalStorage creates a new local filesystem store
func NewLocalStorage(log *logger.Logger, basePath, baseURL string) (*LocalStorage, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}

	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	log = log.With("service", "LocalStorage")
	log.Info("Initialized local artifact store", "path", absBasePath)
	return &LocalStorage{
		log:      log,
		basePath: absBasePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

// BasePath returns the absolute root of the store.
func (ls *LocalStorage) BasePath() string {
	return ls.basePath
}

// Upload writes data at key below the base path and returns baseURL/key.
func (ls *LocalStorage) Upload(ctx context.Context, data []byte, key string, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("upload of '%s' cancelled: %w", key, err)
	}
	fullSavePath, err := ls.GetFullPath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullSavePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory for '%s': %w", key, err)
	}

	outFile, err := os.Create(fullSavePath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file '%s': %w", fullSavePath, err)
	}
	defer outFile.Close()

	_, err = io.Copy(outFile, bytes.NewReader(data))
	if err != nil {
		outFile.Close()
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to write data to '%s': %w", fullSavePath, err)
	}

	ls.log.Debug("Saved artifact", "key", key, "content_type", contentType, "bytes", len(data))
	return ls.baseURL + "/" + filepath.ToSlash(key), nil
}

// Delete removes an asset file
func (ls *LocalStorage) Delete(ctx context.Context, key string) error {
	fullPath, err := ls.GetFullPath(key)
	if err != nil {
		return err
	}

	err = os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) { // Ignore "not exist" errors
		return fmt.Errorf("failed to delete asset '%s': %w", key, err)
	}
	if err == nil {
		ls.log.Debug("Deleted artifact", "key", key)
	}
	return nil
}

// GetFullPath calculates the absolute path and performs security check
func (ls *LocalStorage) GetFullPath(relativePath string) (string, error) {
	// clean the relative path first to prevent simple traversal tricks
	cleanRelativePath := filepath.Clean(relativePath)

	fullPath := filepath.Join(ls.basePath, cleanRelativePath)

	absFullPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", relativePath, err)
	}

	if absFullPath != ls.basePath && !strings.HasPrefix(absFullPath, ls.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: access denied for '%s'", relativePath)
	}

	return absFullPath, nil
}

// KeyForURI strips the base URL from a URI returned by Upload.
func (ls *LocalStorage) KeyForURI(uri string) (string, bool) {
	prefix := ls.baseURL + "/"
	if !strings.HasPrefix(uri, prefix) {
		return "", false
	}
	return strings.TrimPrefix(uri, prefix), true
}

// ReadURI loads the bytes of an artifact previously returned by Upload.
func (ls *LocalStorage) ReadURI(uri string) ([]byte, error) {
	key, ok := ls.KeyForURI(uri)
	if !ok {
		return nil, fmt.Errorf("uri '%s' is not served by this store", uri)
	}
	fullPath, err := ls.GetFullPath(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(fullPath)
}
