package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go-idv-capture/models"
)

// DocumentAnalyzer is the remote service turning a document image into
// recognized text lines. It is a black box that may fail wholesale;
// callers map any failure to a generic rejection.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, imageBytes []byte) (models.DocumentAnalysis, error)
}

// DocumentClient implements DocumentAnalyzer against the HTTP analysis
// service.
type DocumentClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewDocumentClient(baseURL string) *DocumentClient {
	return &DocumentClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type analyzeRequest struct {
	Image string `json:"image"` // Base64 encoded image
}

// Analyze submits a captured frame and returns the recognized text
// lines in top-to-bottom reading order.
func (c *DocumentClient) Analyze(ctx context.Context, imageBytes []byte) (models.DocumentAnalysis, error) {
	url := fmt.Sprintf("%s/api/analyze", c.baseURL)

	jsonData, err := json.Marshal(analyzeRequest{Image: base64.StdEncoding.EncodeToString(imageBytes)})
	if err != nil {
		return models.DocumentAnalysis{}, fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return models.DocumentAnalysis{}, fmt.Errorf("failed to create analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.DocumentAnalysis{}, fmt.Errorf("failed to execute analyze request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return models.DocumentAnalysis{}, fmt.Errorf("document analysis failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result models.DocumentAnalysis
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.DocumentAnalysis{}, fmt.Errorf("failed to decode analyze response: %w", err)
	}

	slog.Debug("Document analysis completed", "line_count", len(result.Lines), "raw_length", len(result.Raw))
	return result, nil
}
