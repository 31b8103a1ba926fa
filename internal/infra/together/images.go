package together

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"audio-blinkshot/internal/domain"
)

const (
	ImageModel  = "black-forest-labs/FLUX.1-schnell"
	ImageWidth  = 1024
	ImageHeight = 768
	ImageSteps  = 4
	ImageCount  = 1
)

// ImageClient generates images with a fixed model and geometry. It makes
// exactly one attempt per call since every attempt is billed.
type ImageClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewImageClient() *ImageClient {
	return NewImageClientWithURL(DefaultBaseURL)
}

func NewImageClientWithURL(baseURL string) *ImageClient {
	return &ImageClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Steps  int    `json:"steps"`
	N      int    `json:"n"`
}

type imageResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

func (c *ImageClient) Generate(ctx context.Context, apiKey, prompt string) (domain.ImageResult, error) {
	ctx, span := tracer.Start(ctx, "together.generate_image")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", ImageModel),
		attribute.Int("prompt.length", len(prompt)),
	)

	bodyBytes, err := json.Marshal(imageRequest{
		Model:  ImageModel,
		Prompt: prompt,
		Width:  ImageWidth,
		Height: ImageHeight,
		Steps:  ImageSteps,
		N:      ImageCount,
	})
	if err != nil {
		return domain.ImageResult{}, domain.TransportError("Internal server error", fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generations", bytes.NewReader(bodyBytes))
	if err != nil {
		return domain.ImageResult{}, domain.TransportError("Internal server error", fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return domain.ImageResult{}, domain.TransportError("Internal server error", fmt.Errorf("sending request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ImageResult{}, domain.TransportError("Internal server error", fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, resp.Status)
		return domain.ImageResult{}, domain.UpstreamError(resp.StatusCode,
			upstreamMessage(resp.StatusCode, respBody),
			fmt.Errorf("image API error %d: %s", resp.StatusCode, string(respBody)))
	}

	return classifyImage(respBody), nil
}

// classifyImage picks the first usable image out of a success body.
func classifyImage(body []byte) domain.ImageResult {
	var result imageResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return domain.ImageResult{Kind: domain.ImageMalformed, Value: fmt.Sprintf("decoding response: %v", err)}
	}
	if len(result.Data) == 0 {
		return domain.ImageResult{Kind: domain.ImageMalformed, Value: "no images in response: " + truncate(string(body), 200)}
	}

	first := result.Data[0]
	switch {
	case strings.TrimSpace(first.URL) != "":
		return domain.ImageResult{Kind: domain.ImageURL, Value: first.URL}
	case strings.TrimSpace(first.B64JSON) != "":
		return domain.ImageResult{Kind: domain.ImageInline, Value: first.B64JSON}
	default:
		return domain.ImageResult{Kind: domain.ImageMalformed, Value: "image has neither url nor b64_json: " + truncate(string(body), 200)}
	}
}

// upstreamMessage extracts a human readable message from the common error
// body shapes, falling back to the status line.
func upstreamMessage(status int, body []byte) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &nested) == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}

	var flat struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &flat) == nil {
		if flat.Error != "" {
			return flat.Error
		}
		if flat.Message != "" {
			return flat.Message
		}
	}

	return fmt.Sprintf("Image generation failed: %d %s", status, http.StatusText(status))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
