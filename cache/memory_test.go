package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/fleetinspectbackend/vision"
)

func TestMemoryCacheHitAndExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(48 * time.Hour)
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, ok, err := c.Get(ctx, "gs://b/a.jpg")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := c.Set(ctx, "gs://b/a.jpg", &vision.Analysis{Labels: []vision.Label{{Description: "truck", Score: 0.9}}})
	require.NoError(t, err)
	assert.Equal(t, now.Add(48*time.Hour), stored.ExpiresAt)

	now = now.Add(47 * time.Hour)
	got, ok, err := c.Get(ctx, "gs://b/a.jpg")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stored.ExpiresAt, got.ExpiresAt, "reads must not slide the expiry")
	assert.Equal(t, "truck", got.Analysis.Labels[0].Description)

	now = stored.ExpiresAt
	_, ok, err = c.Get(ctx, "gs://b/a.jpg")
	require.NoError(t, err)
	assert.False(t, ok, "entry is invalid once now reaches expiry")
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheKeyedByURI(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	_, err := c.Set(ctx, "uri-1", &vision.Analysis{ModelVersion: "v1"})
	require.NoError(t, err)

	_, ok, _ := c.Get(ctx, "uri-2")
	assert.False(t, ok)
	got, ok, _ := c.Get(ctx, "uri-1")
	require.True(t, ok)
	assert.Equal(t, "v1", got.Analysis.ModelVersion)

	_, err = c.Set(ctx, "uri-3", nil)
	require.Error(t, err)
}

func TestDecodeEntry(t *testing.T) {
	_, err := decodeEntry([]byte(`{"source_uri":"x"}`))
	require.Error(t, err)

	e, err := decodeEntry([]byte(`{"source_uri":"x","expires_at":"2030-01-01T00:00:00Z","analysis":{"labels":[{"description":"rust","score":0.5}]}}`))
	require.NoError(t, err)
	assert.Equal(t, "rust", e.Analysis.Labels[0].Description)
	assert.True(t, e.Valid(time.Date(2029, 1, 1, 0, 0, 0, 0, time.UTC)))
}
