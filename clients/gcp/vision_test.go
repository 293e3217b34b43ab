package gcp

import (
	"testing"

	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/type/color"
)

func TestToAnalysisMapsEverySection(t *testing.T) {
	resp := &visionpb.AnnotateImageResponse{
		LabelAnnotations: []*visionpb.EntityAnnotation{
			{Description: "Rust", Score: 0.92},
			nil,
		},
		LocalizedObjectAnnotations: []*visionpb.LocalizedObjectAnnotation{
			{
				Name:  "Wheel",
				Score: 0.8,
				BoundingPoly: &visionpb.BoundingPoly{NormalizedVertices: []*visionpb.NormalizedVertex{
					{X: -0.1, Y: 0.2}, {X: 0.5, Y: 1.3},
				}},
			},
		},
		TextAnnotations: []*visionpb.EntityAnnotation{
			{Description: "odometer 048231 km", BoundingPoly: &visionpb.BoundingPoly{Vertices: []*visionpb.Vertex{{X: 10, Y: 20}}}},
		},
		ImagePropertiesAnnotation: &visionpb.ImageProperties{DominantColors: &visionpb.DominantColorsAnnotation{
			Colors: []*visionpb.ColorInfo{{Color: &color.Color{Red: 200, Green: 100, Blue: 50}, Score: 0.6, PixelFraction: 0.3}},
		}},
		SafeSearchAnnotation: &visionpb.SafeSearchAnnotation{Adult: visionpb.Likelihood_VERY_UNLIKELY},
	}

	out := toAnalysis(resp)
	require.Len(t, out.Labels, 1)
	assert.Equal(t, "Rust", out.Labels[0].Description)
	assert.InDelta(t, 0.92, out.Labels[0].Score, 1e-6)

	require.Len(t, out.Objects, 1)
	require.Len(t, out.Objects[0].Polygon, 2)
	assert.Equal(t, 0.0, out.Objects[0].Polygon[0].X)
	assert.Equal(t, 1.0, out.Objects[0].Polygon[1].Y)

	assert.Equal(t, "odometer 048231 km", out.FullText())
	require.Len(t, out.Colors, 1)
	assert.Equal(t, 200, out.Colors[0].R)
	assert.Equal(t, "VERY_UNLIKELY", out.SafeSearch.Adult)
	assert.Equal(t, ModelVersion, out.ModelVersion)
}

func TestImageSourceSelection(t *testing.T) {
	s := &VisionClient{loader: func(uri string) ([]byte, bool, error) {
		if uri == "/api/artifacts/a.jpg" {
			return []byte("jpeg"), true, nil
		}
		return nil, false, nil
	}}

	img, err := s.image("gs://bucket/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "gs://bucket/a.jpg", img.GetSource().GetGcsImageUri())

	img, err = s.image("https://cdn.example.com/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.jpg", img.GetSource().GetImageUri())

	img, err = s.image("/api/artifacts/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), img.GetContent())

	_, err = s.image("ftp://elsewhere/a.jpg")
	assert.Error(t, err)
}
