package gcp

import (
	"context"
	"fmt"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/camden-git/fleetinspectbackend/logger"
	analysis "github.com/camden-git/fleetinspectbackend/vision"
)

const (
	ModelVersion = "gcp-vision-v1"

	maxLabels  = 20
	maxObjects = 20
)

// ContentLoader resolves URIs the vision service cannot fetch itself, such as
// artifacts served from local disk. ok is false for URIs it does not own.
type ContentLoader func(uri string) (data []byte, ok bool, err error)

// VisionClient runs one multi-feature annotate call per image.
type VisionClient struct {
	log          *logger.Logger
	visionClient *vision.ImageAnnotatorClient
	loader       ContentLoader
}

func NewVisionClient(log *logger.Logger, loader ContentLoader) (*VisionClient, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	vClient, err := vision.NewImageAnnotatorClient(context.Background(), ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &VisionClient{
		log:          log.With("service", "gcp.Vision"),
		visionClient: vClient,
		loader:       loader,
	}, nil
}

func (s *VisionClient) Close() error {
	if s == nil || s.visionClient == nil {
		return nil
	}
	return s.visionClient.Close()
}

func (s *VisionClient) image(uri string) (*visionpb.Image, error) {
	lower := strings.ToLower(uri)
	if strings.HasPrefix(lower, "gs://") {
		return &visionpb.Image{Source: &visionpb.ImageSource{GcsImageUri: uri}}, nil
	}
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return &visionpb.Image{Source: &visionpb.ImageSource{ImageUri: uri}}, nil
	}
	if s.loader != nil {
		data, ok, err := s.loader(uri)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", uri, err)
		}
		if ok {
			return &visionpb.Image{Content: data}, nil
		}
	}
	return nil, fmt.Errorf("unsupported image uri %q", uri)
}

// Analyze requests labels, objects, text, image properties and safe-search
// for the image at uri.
func (s *VisionClient) Analyze(ctx context.Context, uri string) (*analysis.Analysis, error) {
	img, err := s.image(uri)
	if err != nil {
		return nil, err
	}

	req := &visionpb.AnnotateImageRequest{
		Image: img,
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: maxLabels},
			{Type: visionpb.Feature_OBJECT_LOCALIZATION, MaxResults: maxObjects},
			{Type: visionpb.Feature_TEXT_DETECTION},
			{Type: visionpb.Feature_IMAGE_PROPERTIES},
			{Type: visionpb.Feature_SAFE_SEARCH_DETECTION},
		},
	}
	resp, err := s.visionClient.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{req},
	})
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return &analysis.Analysis{ModelVersion: ModelVersion}, nil
	}

	r0 := resp.Responses[0]
	if r0.GetError() != nil && r0.GetError().GetMessage() != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.GetError().GetMessage())
	}

	out := toAnalysis(r0)
	s.log.Debug("Vision analysis complete",
		"uri", uri,
		"labels", len(out.Labels),
		"objects", len(out.Objects),
		"texts", len(out.Texts),
	)
	return out, nil
}

func toAnalysis(r *visionpb.AnnotateImageResponse) *analysis.Analysis {
	out := &analysis.Analysis{ModelVersion: ModelVersion}

	for _, l := range r.GetLabelAnnotations() {
		if l == nil {
			continue
		}
		out.Labels = append(out.Labels, analysis.Label{
			Description: l.GetDescription(),
			Score:       float64(l.GetScore()),
		})
	}

	for _, o := range r.GetLocalizedObjectAnnotations() {
		if o == nil {
			continue
		}
		obj := analysis.DetectedObject{Name: o.GetName(), Score: float64(o.GetScore())}
		for _, v := range o.GetBoundingPoly().GetNormalizedVertices() {
			obj.Polygon = append(obj.Polygon, analysis.Vertex{
				X: clamp01(float64(v.GetX())),
				Y: clamp01(float64(v.GetY())),
			})
		}
		out.Objects = append(out.Objects, obj)
	}

	for _, t := range r.GetTextAnnotations() {
		if t == nil {
			continue
		}
		block := analysis.TextBlock{Description: t.GetDescription()}
		for _, v := range t.GetBoundingPoly().GetVertices() {
			block.Polygon = append(block.Polygon, analysis.Vertex{X: float64(v.GetX()), Y: float64(v.GetY())})
		}
		out.Texts = append(out.Texts, block)
	}

	for _, c := range r.GetImagePropertiesAnnotation().GetDominantColors().GetColors() {
		if c == nil || c.GetColor() == nil {
			continue
		}
		out.Colors = append(out.Colors, analysis.Color{
			R:             int(c.GetColor().GetRed()),
			G:             int(c.GetColor().GetGreen()),
			B:             int(c.GetColor().GetBlue()),
			Score:         float64(c.GetScore()),
			PixelFraction: float64(c.GetPixelFraction()),
		})
	}

	if ss := r.GetSafeSearchAnnotation(); ss != nil {
		out.SafeSearch = analysis.SafeSearch{
			Adult:    ss.GetAdult().String(),
			Spoof:    ss.GetSpoof().String(),
			Medical:  ss.GetMedical().String(),
			Violence: ss.GetViolence().String(),
			Racy:     ss.GetRacy().String(),
		}
	}
	return out
}
