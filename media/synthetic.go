package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"go-idv-capture/models"

	"github.com/google/uuid"
)

// DefaultEncodings is the set a typical capture device advertises,
// richest first.
var DefaultEncodings = []string{
	"video/webm;codecs=vp8,opus",
	"video/webm;codecs=vp9,opus",
	"video/mp4",
}

// SyntheticDevice generates deterministic frames in-process. It stands
// in for real camera hardware in the demo wiring and in tests; which
// facing directions it supports and which encodings its streams
// advertise are configurable so acquisition failure paths can be
// exercised.
type SyntheticDevice struct {
	SupportedFacings []Facing // empty means any facing is satisfiable
	Encodings        []string
	ChunkInterval    time.Duration
	Fail             bool // simulate a platform-level denial
}

func NewSyntheticDevice() *SyntheticDevice {
	return &SyntheticDevice{
		Encodings:     DefaultEncodings,
		ChunkInterval: 50 * time.Millisecond,
	}
}

func (d *SyntheticDevice) supports(facing Facing) bool {
	if facing == "" || len(d.SupportedFacings) == 0 {
		return true
	}
	for _, f := range d.SupportedFacings {
		if f == facing {
			return true
		}
	}
	return false
}

func (d *SyntheticDevice) Open(ctx context.Context, constraints Constraints) (Stream, error) {
	if d.Fail {
		return nil, fmt.Errorf("device access denied")
	}
	if !d.supports(constraints.Facing) {
		return nil, fmt.Errorf("facing mode %q is unsatisfiable", constraints.Facing)
	}

	width, height := constraints.Width, constraints.Height
	if width <= 0 || height <= 0 {
		width, height = 1280, 720
	}

	interval := d.ChunkInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}

	s := &syntheticStream{
		id:        uuid.NewString(),
		width:     width,
		height:    height,
		encodings: d.Encodings,
		chunks:    make(chan []byte, 16),
		stop:      make(chan struct{}),
	}

	go s.run(interval)
	slog.Debug("Synthetic stream opened", "stream_id", s.id, "facing", constraints.Facing, "width", width, "height", height)
	return s, nil
}

type syntheticStream struct {
	id        string
	width     int
	height    int
	encodings []string

	chunks   chan []byte
	stop     chan struct{}
	stopOnce sync.Once
}

func (s *syntheticStream) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(s.chunks)

	var seq uint64
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			seq++
			chunk := []byte(fmt.Sprintf("chunk:%s:%d", s.id, seq))
			select {
			case s.chunks <- chunk:
			case <-s.stop:
				return
			default:
				// Drop on backpressure; the consumer is gone or slow.
			}
		}
	}
}

func (s *syntheticStream) Encodings() []string {
	return s.encodings
}

func (s *syntheticStream) Chunks() <-chan []byte {
	return s.chunks
}

// StillFrame renders a flat gray frame at the stream resolution and
// encodes it as JPEG, so downstream dimension decoding sees a real
// image.
func (s *syntheticStream) StillFrame(ctx context.Context) (models.CapturedFrame, error) {
	select {
	case <-s.stop:
		return models.CapturedFrame{}, fmt.Errorf("stream %s is stopped", s.id)
	case <-ctx.Done():
		return models.CapturedFrame{}, ctx.Err()
	default:
	}

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	gray := color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xFF}
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			img.SetRGBA(x, y, gray)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return models.CapturedFrame{}, fmt.Errorf("failed to encode frame: %w", err)
	}

	return models.NewCapturedFrame(buf.Bytes()), nil
}

func (s *syntheticStream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		slog.Debug("Synthetic stream stopped", "stream_id", s.id)
	})
}
