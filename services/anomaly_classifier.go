package services

import (
	"math"
	"strings"
	"time"

	"github.com/camden-git/fleetinspectbackend/models"
	"github.com/camden-git/fleetinspectbackend/vision"
)

const DefaultAnomalyMinConfidence = 0.7

type keywordRule struct {
	keyword     string
	anomalyType models.AnomalyType
}

// anomalyKeywords is checked in order; the first keyword contained in the
// lower-cased object name decides the type.
var anomalyKeywords = []keywordRule{
	{"rust", models.AnomalyCorrosion},
	{"corros", models.AnomalyCorrosion},
	{"oxid", models.AnomalyCorrosion},
	{"crack", models.AnomalyCrack},
	{"fracture", models.AnomalyCrack},
	{"split", models.AnomalyCrack},
	{"leak", models.AnomalyLeak},
	{"drip", models.AnomalyLeak},
	{"puddle", models.AnomalyLeak},
	{"spill", models.AnomalyLeak},
	{"worn", models.AnomalyWear},
	{"wear", models.AnomalyWear},
	{"abrasion", models.AnomalyWear},
	{"fray", models.AnomalyWear},
	{"dent", models.AnomalyDeformation},
	{"bent", models.AnomalyDeformation},
	{"deform", models.AnomalyDeformation},
	{"bulge", models.AnomalyDeformation},
	{"damage", models.AnomalyOther},
	{"defect", models.AnomalyOther},
}

// AnomalyClassifier turns detected objects into visual anomalies.
type AnomalyClassifier struct {
	minConfidence float64
	now           func() time.Time
}

func NewAnomalyClassifier(minConfidence float64) *AnomalyClassifier {
	if minConfidence <= 0 || minConfidence > 1 {
		minConfidence = DefaultAnomalyMinConfidence
	}
	return &AnomalyClassifier{minConfidence: minConfidence, now: time.Now}
}

// MatchType returns the anomaly type for an object name, if any keyword matches.
func MatchType(name string) (models.AnomalyType, bool) {
	lower := strings.ToLower(name)
	for _, rule := range anomalyKeywords {
		if strings.Contains(lower, rule.keyword) {
			return rule.anomalyType, true
		}
	}
	return "", false
}

// Classify yields one anomaly per object that matches a keyword and meets the
// confidence threshold. Critical anomalies are flagged for alerting.
func (c *AnomalyClassifier) Classify(objects []vision.DetectedObject) []models.VisualAnomaly {
	var anomalies []models.VisualAnomaly
	for _, obj := range objects {
		anomalyType, ok := MatchType(obj.Name)
		if !ok || obj.Score < c.minConfidence {
			continue
		}
		confidence := math.Max(0, math.Min(1, obj.Score))
		anomaly := models.VisualAnomaly{
			AnomalyType: anomalyType,
			Severity:    models.SeverityForConfidence(confidence),
			Confidence:  confidence,
			Label:       obj.Name,
			BoundingBox: BoundingBoxFromPolygon(obj.Polygon),
		}
		if anomaly.Severity == models.SeverityCritical {
			at := c.now()
			anomaly.AlertSent = true
			anomaly.AlertSentAt = &at
		}
		anomalies = append(anomalies, anomaly)
	}
	return anomalies
}

// BoundingBoxFromPolygon reduces a normalized polygon to its axis-aligned
// box, clamped to the unit square. An empty polygon gives a zero box.
func BoundingBoxFromPolygon(polygon []vision.Vertex) models.BoundingBox {
	if len(polygon) == 0 {
		return models.BoundingBox{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, v := range polygon {
		minX = math.Min(minX, clampUnit(v.X))
		minY = math.Min(minY, clampUnit(v.Y))
		maxX = math.Max(maxX, clampUnit(v.X))
		maxY = math.Max(maxY, clampUnit(v.Y))
	}
	return models.BoundingBox{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
