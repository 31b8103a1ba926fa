// Package proxyclient calls the blinkshot server from the recording client.
package proxyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"audio-blinkshot/internal/domain"
	"audio-blinkshot/internal/infra"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      infra.RetryConfig
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		retry:      infra.DefaultRetryConfig(),
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Transcribe uploads one WAV recording. A single attempt is made.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err = part.Write(wav); err != nil {
		return "", fmt.Errorf("writing audio: %w", err)
	}
	if err = writer.Close(); err != nil {
		return "", fmt.Errorf("closing writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result struct {
		Text string `json:"text"`
	}
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	return result.Text, nil
}

// GenerateImage requests one image. apiKey is omitted when blank so the
// server budget applies.
func (c *Client) GenerateImage(ctx context.Context, prompt, apiKey string) (string, error) {
	payload := struct {
		Prompt string `json:"prompt"`
		APIKey string `json:"apiKey,omitempty"`
	}{Prompt: prompt, APIKey: apiKey}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate-image", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	if result.ImageURL == "" {
		return "", domain.UpstreamError(0, "No image URL in response", nil)
	}
	return result.ImageURL, nil
}

// Remaining reads the server budget left for this client. The read is
// idempotent and retried on transient failures.
func (c *Client) Remaining(ctx context.Context) (int, error) {
	var result struct {
		Remaining int `json:"remaining"`
	}

	err := infra.WithRetry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/limits", nil)
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}
		err = c.do(req, &result)
		var de *domain.Error
		if errors.As(err, &de) && !infra.IsRetryableHTTPStatus(de.StatusCode()) {
			return infra.Permanent(err)
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return result.Remaining, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// statusError rebuilds the server's error taxonomy from an error answer.
// The body's code names the error kind. Unknown codes, such as the request
// throttle's, stay upstream failures so only an exhausted budget reads as a
// rate limit. Answers without a code fall back to the status.
func statusError(status int, body []byte) error {
	var eb errorBody
	message := http.StatusText(status)
	if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
		message = eb.Error
	}

	var cause error
	if eb.Details != "" {
		cause = errors.New(eb.Details)
	}

	kind, ok := kindFromCode(eb.Code)
	switch {
	case ok:
	case eb.Code != "":
		kind = domain.KindUpstream
	case status == http.StatusBadRequest:
		kind = domain.KindValidation
	case status == http.StatusTooManyRequests:
		kind = domain.KindRateLimit
	default:
		kind = domain.KindUpstream
	}
	return &domain.Error{Kind: kind, Status: status, Message: message, Err: cause}
}

func kindFromCode(code string) (domain.ErrorKind, bool) {
	switch kind := domain.ErrorKind(code); kind {
	case domain.KindValidation, domain.KindConfiguration, domain.KindRateLimit,
		domain.KindUpstream, domain.KindTransport:
		return kind, true
	}
	return "", false
}
