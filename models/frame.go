package models

import "go-idv-capture/images"

// CapturedFrame is a still frame frozen from the live stream for
// analysis. The bytes and dimensions are retained while an error is
// displayed, until the session is reset.
type CapturedFrame struct {
	Data   []byte `json:"-"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// NewCapturedFrame decodes the frame header to record its dimensions.
// Frames with undecodable headers are still kept, with zero dimensions,
// so a broken capture can be surfaced rather than silently dropped.
func NewCapturedFrame(data []byte) CapturedFrame {
	w, h, err := images.Dimensions(data)
	if err != nil {
		return CapturedFrame{Data: data}
	}
	return CapturedFrame{Data: data, Width: w, Height: h}
}

// Thumbnail returns a downscaled base64 PNG copy for error display.
func (f CapturedFrame) Thumbnail(maxW, maxH int) (string, error) {
	return images.ThumbnailPNGBase64(f.Data, maxW, maxH)
}

func (f CapturedFrame) Empty() bool {
	return len(f.Data) == 0
}
