package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

const documentTextDetection = "DOCUMENT_TEXT_DETECTION"

// Vision implements the Backend interface using Google Cloud Vision
// document text detection.
type Vision struct {
	svc *vision.Service
}

// NewVision creates a Cloud Vision backend authenticated with an API key.
// Extra options are appended, which lets tests point it at a fake endpoint.
func NewVision(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Vision, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: vision api key is required", ErrUnavailable)
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating vision client: %w", err)
	}

	return &Vision{svc: svc}, nil
}

func (v *Vision) Name() string { return "vision" }

// Recognize sends the image as base64 content with a single document-text
// feature and returns the full text with the first page's confidence.
func (v *Vision) Recognize(ctx context.Context, path, _ string) (Recognition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Recognition{}, fmt.Errorf("reading image: %w", err)
	}

	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(data)},
			Features: []*vision.Feature{{Type: documentTextDetection, MaxResults: 1}},
		}},
	}

	resp, err := v.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return Recognition{}, fmt.Errorf("%w: vision annotate: %v", ErrUnavailable, err)
	}
	if len(resp.Responses) == 0 {
		return Recognition{}, nil
	}

	r := resp.Responses[0]
	if r.Error != nil && r.Error.Message != "" {
		return Recognition{}, fmt.Errorf("%w: vision: %s", ErrUnavailable, r.Error.Message)
	}
	if r.FullTextAnnotation == nil {
		return Recognition{}, nil
	}

	rec := Recognition{Text: r.FullTextAnnotation.Text}
	if len(r.FullTextAnnotation.Pages) > 0 {
		rec.Confidence = r.FullTextAnnotation.Pages[0].Confidence * 100
	}
	return rec, nil
}

// Close is a no-op; the REST client holds no resources.
func (v *Vision) Close() error {
	return nil
}
