package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/camden-git/fleetinspectbackend/logger"
)

// BucketStore keeps inspection artifacts in a single GCS bucket.
type BucketStore struct {
	log           *logger.Logger
	storageClient *storage.Client
	bucket        string
	cdnDomain     string
}

func NewBucketStore(log *logger.Logger, bucket, cdnDomain string) (*BucketStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("missing bucket name")
	}

	ctx := context.Background()
	opts := ClientOptionsFromEnv()
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	stClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &BucketStore{
		log:           log.With("service", "BucketStore", "bucket", bucket),
		storageClient: stClient,
		bucket:        bucket,
		cdnDomain:     strings.TrimRight(cdnDomain, "/"),
	}, nil
}

// Upload writes the object and returns its URI. Without a CDN domain the
// gs:// form is returned, which the vision service reads directly.
func (bs *BucketStore) Upload(ctx context.Context, data []byte, key string, contentType string) (string, error) {
	w := bs.storageClient.Bucket(bs.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	bs.log.Debug("Uploaded artifact", "key", key, "bytes", len(data))
	return bs.URIFor(key), nil
}

func (bs *BucketStore) Delete(ctx context.Context, key string) error {
	err := bs.storageClient.Bucket(bs.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %s: %w", key, err)
	}
	return nil
}

func (bs *BucketStore) URIFor(key string) string {
	if bs.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", strings.TrimPrefix(strings.TrimPrefix(bs.cdnDomain, "https://"), "http://"), key)
	}
	return fmt.Sprintf("gs://%s/%s", bs.bucket, key)
}

func (bs *BucketStore) Close() error {
	if bs == nil || bs.storageClient == nil {
		return nil
	}
	return bs.storageClient.Close()
}
