package models

// FaceDetection holds the attributes of a single detected face as
// returned by the remote face-analysis service.
type FaceDetection struct {
	FaceFound    bool    `json:"face_found"`
	Confidence   float64 `json:"confidence"` // 0-100
	FaceOccluded bool    `json:"face_occluded"`
	EyesOpen     bool    `json:"eyes_open"`
	MouthOpen    bool    `json:"mouth_open"`
	Eyeglasses   bool    `json:"eyeglasses"`
	Sunglasses   bool    `json:"sunglasses"`
}

// FaceAnalysisResult pairs the detected attributes with the verdict
// applied to them. Immutable after construction, like ExtractedDocument.
type FaceAnalysisResult struct {
	Face   *FaceDetection `json:"face,omitempty"`
	Status Status         `json:"status"`
}
