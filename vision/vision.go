// Package vision defines the contract consumed from the external image
// analysis service: one typed struct per response section.
package vision

import (
	"context"
	"strings"
)

// Client analyzes an already stored image addressed by URI.
type Client interface {
	Analyze(ctx context.Context, imageURI string) (*Analysis, error)
}

type Analysis struct {
	Labels       []Label          `json:"labels"`
	Objects      []DetectedObject `json:"objects"`
	Texts        []TextBlock      `json:"texts"`
	Colors       []Color          `json:"colors"`
	SafeSearch   SafeSearch       `json:"safe_search"`
	ModelVersion string           `json:"model_version,omitempty"`
}

type Label struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// Vertex is a polygon point. Object polygons use normalized [0,1]
// coordinates, text polygons use pixel coordinates.
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type DetectedObject struct {
	Name    string   `json:"name"`
	Score   float64  `json:"score"`
	Polygon []Vertex `json:"polygon,omitempty"`
}

type TextBlock struct {
	Description string   `json:"description"`
	Polygon     []Vertex `json:"polygon,omitempty"`
}

type Color struct {
	R             int     `json:"r"`
	G             int     `json:"g"`
	B             int     `json:"b"`
	Score         float64 `json:"score"`
	PixelFraction float64 `json:"pixel_fraction,omitempty"`
}

// SafeSearch holds likelihood names such as "VERY_UNLIKELY". Empty means not returned.
type SafeSearch struct {
	Adult    string `json:"adult,omitempty"`
	Spoof    string `json:"spoof,omitempty"`
	Medical  string `json:"medical,omitempty"`
	Violence string `json:"violence,omitempty"`
	Racy     string `json:"racy,omitempty"`
}

// FullText returns the first text block, which carries the whole recognised
// text of the image. Empty when no text was found.
func (a *Analysis) FullText() string {
	if a == nil || len(a.Texts) == 0 {
		return ""
	}
	return strings.TrimSpace(a.Texts[0].Description)
}
