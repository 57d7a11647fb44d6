package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pollinator/api/internal/config"
	"github.com/pollinator/api/internal/model"
)

const featureDocumentText = "DOCUMENT_TEXT_DETECTION"

// VisionClient handles communication with the Google Cloud Vision API
type VisionClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type annotateRequest struct {
	Requests []annotateImageRequest `json:"requests"`
}

type annotateImageRequest struct {
	Image    visionImage     `json:"image"`
	Features []visionFeature `json:"features"`
}

type visionImage struct {
	Content string             `json:"content,omitempty"`
	Source  *visionImageSource `json:"source,omitempty"`
}

type visionImageSource struct {
	ImageURI string `json:"imageUri"`
}

type visionFeature struct {
	Type string `json:"type"`
}

type annotateResponse struct {
	Responses []struct {
		FullTextAnnotation *struct {
			Text string `json:"text"`
		} `json:"fullTextAnnotation"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// NewVisionClient creates a new Vision API client
func NewVisionClient(cfg *config.OCRConfig) *VisionClient {
	return &VisionClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// DetectText runs document text detection on raw image bytes.
// An image without text yields an empty string.
func (c *VisionClient) DetectText(ctx context.Context, image []byte) (string, error) {
	return c.annotate(ctx, visionImage{Content: base64.StdEncoding.EncodeToString(image)})
}

// DetectTextURI runs document text detection on an image the API fetches itself
func (c *VisionClient) DetectTextURI(ctx context.Context, uri string) (string, error) {
	return c.annotate(ctx, visionImage{Source: &visionImageSource{ImageURI: uri}})
}

func (c *VisionClient) annotate(ctx context.Context, image visionImage) (string, error) {
	reqBody := annotateRequest{
		Requests: []annotateImageRequest{{
			Image:    image,
			Features: []visionFeature{{Type: featureDocumentText}},
		}},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images:annotate", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// kept out of the URL, which http.Client errors quote verbatim
	req.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: failed to send request: %v", model.ErrProviderFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", model.ErrProviderFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: vision API error (status %d): %s", model.ErrProviderFailed, resp.StatusCode, string(respBody))
	}

	var annotated annotateResponse
	if err := json.Unmarshal(respBody, &annotated); err != nil {
		return "", fmt.Errorf("%w: failed to unmarshal response: %v", model.ErrProviderFailed, err)
	}

	if len(annotated.Responses) == 0 {
		return "", fmt.Errorf("%w: no responses from vision API", model.ErrProviderFailed)
	}

	first := annotated.Responses[0]
	if first.Error != nil {
		return "", fmt.Errorf("%w: vision API error %d: %s", model.ErrProviderFailed, first.Error.Code, first.Error.Message)
	}
	if first.FullTextAnnotation == nil {
		log.Printf("[Vision API] no text annotation in response")
		return "", nil
	}

	return first.FullTextAnnotation.Text, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *VisionClient) IsConfigured() bool {
	return c.apiKey != ""
}
