package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/camden-git/fleetinspectbackend/models"
	"github.com/camden-git/fleetinspectbackend/repository"
	"github.com/camden-git/fleetinspectbackend/vision"
)

type fakePhotoRepo struct {
	mu        sync.Mutex
	photos    map[uuid.UUID]*models.InspectionPhoto
	createErr error

	// transitions into these statuses fail with the mapped error
	transitionErr map[models.ProcessingStatus]error
}

func newFakePhotoRepo() *fakePhotoRepo {
	return &fakePhotoRepo{photos: map[uuid.UUID]*models.InspectionPhoto{}}
}

func (r *fakePhotoRepo) add(p models.InspectionPhoto) *models.InspectionPhoto {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = models.PhotoStatusPending
	}
	r.photos[p.ID] = &p
	return &p
}

func (r *fakePhotoRepo) Create(photo *models.InspectionPhoto) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.add(*photo)
	return nil
}

func (r *fakePhotoRepo) GetByID(id uuid.UUID) (*models.InspectionPhoto, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.photos[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePhotoRepo) ListByAsset(assetID string) ([]models.InspectionPhoto, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.InspectionPhoto
	for _, p := range r.photos {
		if p.AssetID == assetID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePhotoRepo) ListByStatus(status models.ProcessingStatus) ([]models.InspectionPhoto, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.InspectionPhoto
	for _, p := range r.photos {
		if p.Status == status {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePhotoRepo) TransitionStatus(id uuid.UUID, from, to models.ProcessingStatus, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transitionErr[to]; err != nil {
		return err
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("invalid status transition %s -> %s", from, to)
	}
	p, ok := r.photos[id]
	if !ok || p.Status != from {
		return repository.ErrStatusConflict
	}
	p.Status = to
	p.ErrorMessage = errMsg
	return nil
}

func (r *fakePhotoRepo) status(id uuid.UUID) models.ProcessingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.photos[id].Status
}

func (r *fakePhotoRepo) errorMessage(id uuid.UUID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg := r.photos[id].ErrorMessage; msg != nil {
		return *msg
	}
	return ""
}

type fakeResultRepo struct {
	mu        sync.Mutex
	results   []*models.AnalysisResult
	anomalies []models.VisualAnomaly
	readings  []models.MeterReading
}

func (r *fakeResultRepo) SaveWithFindings(result *models.AnalysisResult, anomalies []models.VisualAnomaly, readings []models.MeterReading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, prior := range r.results {
		if prior.PhotoID == result.PhotoID {
			prior.Superseded = true
		}
	}
	result.ID = uuid.New()
	result.CreatedAt = time.Now()
	for i := range anomalies {
		anomalies[i].ID = uuid.New()
		anomalies[i].PhotoID = result.PhotoID
		anomalies[i].AnalysisResultID = result.ID
	}
	for i := range readings {
		readings[i].ID = uuid.New()
		readings[i].PhotoID = result.PhotoID
		readings[i].AnalysisResultID = result.ID
	}
	cp := *result
	r.results = append(r.results, &cp)
	r.anomalies = append(r.anomalies, anomalies...)
	r.readings = append(r.readings, readings...)
	return nil
}

func (r *fakeResultRepo) SupersedeAll(photoID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, prior := range r.results {
		if prior.PhotoID == photoID {
			prior.Superseded = true
		}
	}
	return nil
}

func (r *fakeResultRepo) LatestForPhoto(photoID uuid.UUID) (*models.AnalysisResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.results) - 1; i >= 0; i-- {
		if r.results[i].PhotoID == photoID && !r.results[i].Superseded {
			cp := *r.results[i]
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeResultRepo) ListForPhoto(photoID uuid.UUID) ([]models.AnalysisResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AnalysisResult
	for _, res := range r.results {
		if res.PhotoID == photoID {
			out = append(out, *res)
		}
	}
	return out, nil
}

// fakeReadingRepo serves both the history lookup and the reading repository.
type fakeReadingRepo struct {
	mu       sync.Mutex
	history  map[string][]float64
	readings map[uuid.UUID]*models.MeterReading
	err      error
}

func newFakeReadingRepo() *fakeReadingRepo {
	return &fakeReadingRepo{history: map[string][]float64{}, readings: map[uuid.UUID]*models.MeterReading{}}
}

func (r *fakeReadingRepo) RecentValues(assetID string, readingType models.ReadingType, _ uuid.UUID, limit int) ([]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	values := r.history[assetID+"/"+string(readingType)]
	if len(values) > limit {
		values = values[:limit]
	}
	return append([]float64(nil), values...), nil
}

func (r *fakeReadingRepo) GetByID(id uuid.UUID) (*models.MeterReading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.readings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeReadingRepo) ListByResult(resultID uuid.UUID) ([]models.MeterReading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.MeterReading
	for _, m := range r.readings {
		if m.AnalysisResultID == resultID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *fakeReadingRepo) UpdateValidation(reading *models.MeterReading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.readings[reading.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *reading
	r.readings[reading.ID] = &cp
	return nil
}

type fakeAnomalyRepo struct {
	mu        sync.Mutex
	anomalies map[uuid.UUID]*models.VisualAnomaly
}

func (r *fakeAnomalyRepo) GetByID(id uuid.UUID) (*models.VisualAnomaly, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.anomalies[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAnomalyRepo) ListByResult(resultID uuid.UUID) ([]models.VisualAnomaly, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.VisualAnomaly
	for _, a := range r.anomalies {
		if a.AnalysisResultID == resultID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

func (r *fakeAnomalyRepo) SetConfirmation(id uuid.UUID, confirmed bool, by string, at time.Time, workOrderID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.anomalies[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	a.Confirmed = &confirmed
	a.ConfirmedBy = &by
	a.ConfirmedAt = &at
	if workOrderID != nil {
		a.WorkOrderID = workOrderID
	}
	return nil
}

type fakeVision struct {
	mu      sync.Mutex
	calls   int
	payload *vision.Analysis
	err     error
	block   bool
}

func (v *fakeVision) Analyze(ctx context.Context, uri string) (*vision.Analysis, error) {
	v.mu.Lock()
	v.calls++
	payload, err, block := v.payload, v.err, v.block
	v.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	cp := *payload
	return &cp, nil
}

func (v *fakeVision) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type fakeNotifier struct {
	mu       sync.Mutex
	statuses []models.ProcessingStatus
	alerts   []models.VisualAnomaly
	err      error
}

func (n *fakeNotifier) PhotoStatusChanged(photo *models.InspectionPhoto) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, photo.Status)
}

func (n *fakeNotifier) CriticalAnomaly(photo *models.InspectionPhoto, anomaly *models.VisualAnomaly) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, *anomaly)
	return n.err
}

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	failSuffix string
	deleted    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Upload(ctx context.Context, data []byte, key string, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSuffix != "" && strings.HasSuffix(key, s.failSuffix) {
		return "", fmt.Errorf("store unavailable")
	}
	s.objects[key] = append([]byte(nil), data...)
	return "mem://" + key, nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
