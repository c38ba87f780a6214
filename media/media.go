package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go-idv-capture/models"
)

// Facing selects which physical camera a stream should come from.
type Facing string

const (
	FacingEnvironment Facing = "environment"
	FacingUser        Facing = "user"
)

// ErrCameraUnavailable is returned when the platform denies camera
// access or no device can satisfy the request, even after dropping the
// facing constraint.
var ErrCameraUnavailable = errors.New("camera unavailable")

// Constraints describe the requested stream. Width and height are
// ideal hints, not hard requirements. An empty Facing means any camera.
type Constraints struct {
	Facing Facing
	Width  int
	Height int
}

func DefaultConstraints(facing Facing) Constraints {
	return Constraints{Facing: facing, Width: 1280, Height: 720}
}

// Stream is one live camera feed.
type Stream interface {
	// Encodings lists the binary media encodings this stream supports.
	Encodings() []string

	// Chunks delivers encoded media chunks for the lifetime of the
	// stream. The channel is closed when the stream stops.
	Chunks() <-chan []byte

	// StillFrame freezes a single frame from the live feed.
	StillFrame(ctx context.Context) (models.CapturedFrame, error)

	// Stop ends the feed and releases the device tracks. Idempotent.
	Stop()
}

// Device opens camera streams for requested constraints.
type Device interface {
	Open(ctx context.Context, constraints Constraints) (Stream, error)
}

// Acquirer owns at most one active stream at a time. Acquiring a new
// stream always releases the previous one first, so two camera handles
// can never be held simultaneously.
type Acquirer struct {
	device Device

	mu     sync.Mutex
	stream Stream
}

func NewAcquirer(device Device) *Acquirer {
	return &Acquirer{device: device}
}

// Acquire opens a stream for the requested facing direction. When the
// facing constraint cannot be satisfied it retries once without it,
// keeping the resolution hints. Both failing yields
// ErrCameraUnavailable.
func (a *Acquirer) Acquire(ctx context.Context, facing Facing) (Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stream != nil {
		a.stream.Stop()
		a.stream = nil
	}

	constraints := DefaultConstraints(facing)
	stream, err := a.device.Open(ctx, constraints)
	if err != nil {
		slog.Warn("Camera open failed, retrying without facing constraint", "facing", facing, "error", err)
		constraints.Facing = ""
		stream, err = a.device.Open(ctx, constraints)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
		}
	}

	slog.Debug("Camera stream acquired", "facing", facing)
	a.stream = stream
	return stream, nil
}

// Stream returns the currently owned stream, or nil.
func (a *Acquirer) Stream() Stream {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream
}

// Release stops every track of the currently owned stream. Idempotent.
func (a *Acquirer) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stream != nil {
		a.stream.Stop()
		a.stream = nil
		slog.Debug("Camera stream released")
	}
}
