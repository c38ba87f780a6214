package transport

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go-idv-capture/media"
)

// ErrNoSupportedEncoding means the stream offers none of the encodings
// we can forward to the backend.
var ErrNoSupportedEncoding = errors.New("no supported media encoding")

// DefaultChunkInterval is the timeslice at which buffered media is
// flushed to the channel.
const DefaultChunkInterval = 250 * time.Millisecond

// encodingPreference is ordered best-first; the first one the stream
// supports wins.
var encodingPreference = []string{
	"video/webm;codecs=vp8,opus",
	"video/webm;codecs=vp9,opus",
	"video/webm;codecs=h264,opus",
	"video/mp4;codecs=h264,aac",
	"video/webm",
	"video/mp4",
}

// SelectEncoding picks the preferred encoding out of those the stream
// supports.
func SelectEncoding(supported []string) (string, error) {
	set := make(map[string]struct{}, len(supported))
	for _, enc := range supported {
		set[enc] = struct{}{}
	}
	for _, enc := range encodingPreference {
		if _, ok := set[enc]; ok {
			return enc, nil
		}
	}
	return "", ErrNoSupportedEncoding
}

// Sender is where the recorder delivers chunks; satisfied by Channel.
type Sender interface {
	Send(chunk []byte) error
}

// Recorder pulls media off a stream and forwards it over the channel in
// fixed timeslices.
type Recorder struct {
	stream   media.Stream
	sender   Sender
	interval time.Duration
	encoding string

	// OnChunk, if set, observes every flushed chunk size.
	OnChunk func(bytes int)

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRecorder negotiates an encoding with the stream and prepares a
// recorder. The stream must be live and the sender authenticated before
// Start is called.
func NewRecorder(stream media.Stream, sender Sender, interval time.Duration) (*Recorder, error) {
	if stream == nil {
		return nil, errors.New("recording requires an active stream")
	}
	if sender == nil {
		return nil, errors.New("recording requires a channel")
	}
	encoding, err := SelectEncoding(stream.Encodings())
	if err != nil {
		return nil, fmt.Errorf("failed to start recorder: %w", err)
	}
	if interval <= 0 {
		interval = DefaultChunkInterval
	}
	return &Recorder{
		stream:   stream,
		sender:   sender,
		interval: interval,
		encoding: encoding,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Encoding reports the negotiated encoding.
func (r *Recorder) Encoding() string {
	return r.encoding
}

// Start begins pumping chunks until Stop is called or the stream ends.
// A recorder that was already stopped stays stopped.
func (r *Recorder) Start() {
	r.mu.Lock()
	if r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	slog.Info("Recorder started", "encoding", r.encoding, "interval", r.interval)
	go r.pump()
}

func (r *Recorder) pump() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var buffer bytes.Buffer
	flush := func() {
		if buffer.Len() == 0 {
			return
		}
		chunk := make([]byte, buffer.Len())
		copy(chunk, buffer.Bytes())
		buffer.Reset()

		if err := r.sender.Send(chunk); err != nil {
			slog.Warn("Failed to send media chunk", "size", len(chunk), "error", err)
			return
		}
		if r.OnChunk != nil {
			r.OnChunk(len(chunk))
		}
	}

	for {
		select {
		case <-r.stop:
			flush()
			return
		case data, ok := <-r.stream.Chunks():
			if !ok {
				flush()
				return
			}
			buffer.Write(data)
		case <-ticker.C:
			flush()
		}
	}
}

// Stop flushes any buffered media and halts the pump, waiting for it to
// drain. Idempotent, and safe to call concurrently with Start.
func (r *Recorder) Stop() {
	r.mu.Lock()
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	r.stopOnce.Do(func() {
		close(r.stop)
		slog.Info("Recorder stopped")
	})
	if started {
		<-r.done
	}
}
