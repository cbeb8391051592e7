package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/minios-linux/dialogkit/dialogue"
	"github.com/minios-linux/dialogkit/i18n"
)

// VisionEndpoint is the Cloud Vision images:annotate URL.
const VisionEndpoint = "https://vision.googleapis.com/v1/images:annotate"

// GoogleVision calls the Cloud Vision REST API with an API key.
type GoogleVision struct {
	APIKey   string
	Endpoint string
	Client   *http.Client
}

// NewGoogleVision returns a recognizer authenticated with apiKey.
func NewGoogleVision(apiKey string) *GoogleVision {
	return &GoogleVision{
		APIKey:   apiKey,
		Endpoint: VisionEndpoint,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *GoogleVision) Kind() string { return dialogue.BackendGoogleVision }

type visionRequest struct {
	Requests []visionImageRequest `json:"requests"`
}

type visionImageRequest struct {
	Image struct {
		Content string `json:"content"`
	} `json:"image"`
	Features []visionFeature `json:"features"`
}

type visionFeature struct {
	Type string `json:"type"`
}

type visionResponse struct {
	Responses []struct {
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Recognize sends the image for TEXT_DETECTION and returns the full-text
// annotation. The language is detected by the service.
func (g *GoogleVision) Recognize(ctx context.Context, imagePath, _ string) (string, error) {
	if g.APIKey == "" {
		return "", &ConfigError{Message: i18n.T("Google Vision API key is not set, run: dialogkit auth set google-vision")}
	}

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}

	var item visionImageRequest
	item.Image.Content = base64.StdEncoding.EncodeToString(image)
	item.Features = []visionFeature{{Type: "TEXT_DETECTION"}}
	body, err := json.Marshal(visionRequest{Requests: []visionImageRequest{item}})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint+"?key="+g.APIKey, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	var parsed visionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("vision returned status %d: invalid JSON: %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("vision API error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vision returned status %d", resp.StatusCode)
	}
	if len(parsed.Responses) == 0 {
		return "", ErrEmptyText
	}
	first := parsed.Responses[0]
	if first.Error != nil {
		return "", fmt.Errorf("vision API error: %s", first.Error.Message)
	}
	if len(first.TextAnnotations) == 0 {
		return "", ErrEmptyText
	}
	return first.TextAnnotations[0].Description, nil
}
