// Package captcha turns portal captcha screenshots into text guesses via
// the OCR.space API, after denoising the image locally.
package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/effect"
)

const defaultEndpoint = "https://api.ocr.space/parse/image"

// Resolver submits preprocessed captcha images to an OCR service.
type Resolver struct {
	apiKey   string
	language string
	endpoint string
	client   *http.Client
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithEndpoint overrides the OCR service URL. Used by tests.
func WithEndpoint(url string) Option {
	return func(r *Resolver) { r.endpoint = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// NewResolver builds a Resolver for the given OCR.space credentials.
func NewResolver(apiKey, language string, opts ...Option) *Resolver {
	r := &Resolver{
		apiKey:   apiKey,
		language: language,
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ocrResponse is the subset of the OCR.space reply we read.
type ocrResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool        `json:"IsErroredOnProcessing"`
	ErrorMessage          interface{} `json:"ErrorMessage"`
}

// Solve denoises the captcha screenshot and returns the OCR text guess.
// The screenshot must be PNG encoded.
func (r *Resolver) Solve(ctx context.Context, screenshot []byte) (string, error) {
	cleaned, err := preprocess(screenshot)
	if err != nil {
		return "", err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "captcha.png")
	if err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(cleaned); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	fields := map[string]string{
		"apikey":            r.apiKey,
		"language":          r.language,
		"isOverlayRequired": "false",
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return "", fmt.Errorf("failed to build upload: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to build OCR request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("OCR request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OCR service returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read OCR response: %w", err)
	}

	var parsed ocrResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode OCR response: %w", err)
	}
	if parsed.IsErroredOnProcessing || len(parsed.ParsedResults) == 0 {
		return "", fmt.Errorf("OCR service could not read the image: %v", parsed.ErrorMessage)
	}
	return strings.TrimSpace(parsed.ParsedResults[0].ParsedText), nil
}

// preprocess applies a median denoise then grayscales the captcha. The
// portal overlays speckle noise that the median filter removes well.
func preprocess(screenshot []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return nil, fmt.Errorf("failed to decode captcha image: %w", err)
	}
	denoised := effect.Median(img, 3)
	gray := effect.Grayscale(denoised)

	out := &bytes.Buffer{}
	if err := png.Encode(out, gray); err != nil {
		return nil, fmt.Errorf("failed to encode captcha image: %w", err)
	}
	return out.Bytes(), nil
}
