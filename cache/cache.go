// Package cache stores vision analysis payloads keyed by the source image URI.
package cache

import (
	"context"
	"time"

	"github.com/camden-git/fleetinspectbackend/vision"
)

const DefaultTTL = 7 * 24 * time.Hour

// Entry is a stored analysis. It is usable while now < ExpiresAt; reads never
// extend the expiry.
type Entry struct {
	SourceURI string          `json:"source_uri"`
	Analysis  vision.Analysis `json:"analysis"`
	StoredAt  time.Time       `json:"stored_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func (e *Entry) Valid(now time.Time) bool {
	return e != nil && now.Before(e.ExpiresAt)
}

// AnalysisCache maps a source image URI to a previously computed analysis.
type AnalysisCache interface {
	// Get returns a non-expired entry, or ok=false on a miss.
	Get(ctx context.Context, sourceURI string) (entry *Entry, ok bool, err error)
	// Set stores analysis with expiry = now + the configured horizon.
	Set(ctx context.Context, sourceURI string, analysis *vision.Analysis) (*Entry, error)
}
