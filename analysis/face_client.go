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

// Minimum detection confidence (0-100) below which a selfie is treated
// as having no usable face.
const minFaceConfidence = 80

// FaceDetector is the remote face-analysis service.
type FaceDetector interface {
	Detect(ctx context.Context, imageBytes []byte) (models.FaceDetection, error)
}

// FaceClient implements FaceDetector against the HTTP face service.
type FaceClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewFaceClient(baseURL string) *FaceClient {
	return &FaceClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type detectRequest struct {
	Image string `json:"image"` // Base64 encoded image
}

// Detect submits a selfie frame and returns the attributes of the
// detected face.
func (c *FaceClient) Detect(ctx context.Context, imageBytes []byte) (models.FaceDetection, error) {
	url := fmt.Sprintf("%s/api/detect", c.baseURL)

	jsonData, err := json.Marshal(detectRequest{Image: base64.StdEncoding.EncodeToString(imageBytes)})
	if err != nil {
		return models.FaceDetection{}, fmt.Errorf("failed to marshal detect request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return models.FaceDetection{}, fmt.Errorf("failed to create detect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.FaceDetection{}, fmt.Errorf("failed to execute detect request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return models.FaceDetection{}, fmt.Errorf("face detection failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result models.FaceDetection
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.FaceDetection{}, fmt.Errorf("failed to decode detect response: %w", err)
	}

	slog.Debug("Face detection completed", "face_found", result.FaceFound, "confidence", result.Confidence)
	return result, nil
}

// EvaluateFace applies the selfie acceptance rules in order: a covered
// or low-confidence face rejects first, then closed eyes, then an open
// mouth, then eyewear. The first violated rule determines the message.
func EvaluateFace(face models.FaceDetection) models.Status {
	if !face.FaceFound || face.Confidence < minFaceConfidence || face.FaceOccluded {
		return models.FailureStatus("Face not detected or covered. Make sure your face is visible in the image")
	}
	if !face.EyesOpen {
		return models.FailureStatus("Make sure your eyes are open in the image")
	}
	if face.MouthOpen {
		return models.FailureStatus("Make sure your mouth is closed in the image")
	}
	if face.Eyeglasses || face.Sunglasses {
		return models.FailureStatus("Make sure you are not wearing glasses or sunglasses in the image")
	}
	return models.SuccessStatus(models.NextStepDone)
}
