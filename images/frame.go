package images

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"math"

	_ "image/gif"

	xdraw "golang.org/x/image/draw"
)

// Dimensions decodes just enough of the image header to report its
// pixel dimensions without decoding the full frame.
func Dimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// decodeImage attempts to decode an image from bytes, trying multiple formats
func decodeImage(data []byte) (image.Image, error) {
	// Try JPEG first (most common for captured frames)
	if img, err := jpeg.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	// Try generic image decode as fallback
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("unsupported or invalid image format")
}

// ThumbnailPNGBase64 downscales a captured frame to fit within maxW×maxH
// and returns it as a base64-encoded PNG. The thumbnail is what gets
// retained for display while a failed capture waits for a reset.
func ThumbnailPNGBase64(data []byte, maxW, maxH int) (string, error) {
	img, err := decodeImage(data)
	if err != nil {
		slog.Warn("Failed to decode captured frame", "error", err)
		return "", fmt.Errorf("failed to decode frame: %w", err)
	}

	bounds := img.Bounds()
	slog.Debug("Frame decoded", "width", bounds.Dx(), "height", bounds.Dy())

	img = resizeToFit(img, maxW, maxH)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// resizeToFit scales img to fit within maxW×maxH (keeping aspect ratio)
func resizeToFit(src image.Image, maxW, maxH int) image.Image {
	bw := src.Bounds().Dx()
	bh := src.Bounds().Dy()

	if maxW <= 0 && maxH <= 0 {
		return src
	}
	if maxW <= 0 {
		scale := float64(maxH) / float64(bh)
		maxW = int(math.Round(float64(bw) * scale))
	}
	if maxH <= 0 {
		scale := float64(maxW) / float64(bw)
		maxH = int(math.Round(float64(bh) * scale))
	}

	scale := math.Min(float64(maxW)/float64(bw), float64(maxH)/float64(bh))
	if scale >= 1.0 {
		return src // already small enough
	}
	w := int(math.Max(1, math.Round(float64(bw)*scale)))
	h := int(math.Max(1, math.Round(float64(bh)*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// CatmullRom = high quality, good for photos/faces
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}
