package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"kvittering/internal/receipt"
)

// DefaultBaseURL is the apilayer endpoint hosting the image-to-text API.
const DefaultBaseURL = "https://api.apilayer.com"

// Client calls the remote OCR service: image in, recognized text out.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates an OCR client. An empty baseURL falls back to the
// apilayer endpoint.
func NewClient(baseURL, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ocr api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 60 * time.Second, // upper bound; callers impose tighter deadlines via ctx
		},
	}, nil
}

// recognition is the OCR service's response envelope; all_text carries
// the full recognized text.
type recognition struct {
	AllText string `json:"all_text"`
}

// Recognize uploads the image and returns the recognized text. The image
// is normalized to PNG first (HEIC photos and PDF receipts are converted).
// Transport and HTTP failures surface as a NetworkError for the "ocr"
// stage; a context deadline surfaces as a TimeoutError.
func (c *Client) Recognize(ctx context.Context, imageData []byte, contentType string) (string, error) {
	pngData, err := normalizeImage(imageData, contentType)
	if err != nil {
		return "", fmt.Errorf("normalizing capture: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "receipt.png")
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(pngData); err != nil {
		return "", fmt.Errorf("writing form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("closing form writer: %w", err)
	}

	url := fmt.Sprintf("%s/image_to_text/upload", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &receipt.TimeoutError{Stage: "ocr"}
		}
		return "", &receipt.NetworkError{Stage: "ocr", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &receipt.NetworkError{
			Stage: "ocr",
			Err:   fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var result recognition
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &receipt.NetworkError{Stage: "ocr", Err: fmt.Errorf("decoding response: %w", err)}
	}
	return result.AllText, nil
}
