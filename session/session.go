package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"go-idv-capture/analysis"
	"go-idv-capture/document"
	"go-idv-capture/media"
	"go-idv-capture/models"
	"go-idv-capture/transport"
)

// State of a capture session.
type State string

const (
	StateIdle              State = "IDLE"
	StateStreaming         State = "STREAMING"
	StateCapturing         State = "CAPTURING"
	StateAnalyzingDocument State = "ANALYZING_DOCUMENT"
	StateAnalyzingFace     State = "ANALYZING_FACE"
	StateError             State = "ERROR"
	StateSuccess           State = "SUCCESS"
)

// Mode selects what the session is currently capturing.
type Mode string

const (
	ModeDocument Mode = "DOCUMENT"
	ModeSelfie   Mode = "SELFIE"
)

var (
	// ErrNotStreaming means an operation needed a live stream.
	ErrNotStreaming = errors.New("session is not streaming")
	// ErrSessionCompleted means the session already reached success.
	ErrSessionCompleted = errors.New("session already completed")
	// ErrSessionClosed means the session was torn down.
	ErrSessionClosed = errors.New("session closed")
	// ErrCaptureInFlight means a capture's analysis call is still
	// outstanding.
	ErrCaptureInFlight = errors.New("capture analysis in flight")
	// ErrSessionFailed means the session is in the error state; Reset is
	// the only way out.
	ErrSessionFailed = errors.New("session failed, reset required")
)

const (
	// DefaultSettleDelay lets a freshly switched camera warm up before
	// recording resumes; chunks recorded earlier tend to be empty.
	DefaultSettleDelay = 300 * time.Millisecond
	// DefaultResetDebounce collapses rapid repeated resets from a
	// user-facing retry control.
	DefaultResetDebounce = 500 * time.Millisecond
)

// Config carries the session timing knobs.
type Config struct {
	SettleDelay   time.Duration
	ResetDebounce time.Duration
	ChunkInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.ResetDebounce <= 0 {
		c.ResetDebounce = DefaultResetDebounce
	}
	if c.ChunkInterval <= 0 {
		c.ChunkInterval = transport.DefaultChunkInterval
	}
	return c
}

// StreamSource owns at most one media stream; satisfied by
// media.Acquirer.
type StreamSource interface {
	Acquire(ctx context.Context, facing media.Facing) (media.Stream, error)
	Stream() media.Stream
	Release()
}

// Channel is the authenticated chunk transport; satisfied by
// transport.Channel.
type Channel interface {
	Open(ctx context.Context, token string) error
	Send(chunk []byte) error
	Close(reason string)
	Status() transport.Status
	Ready() <-chan struct{}
}

// Recorder pumps stream chunks over the channel; satisfied by
// transport.Recorder.
type Recorder interface {
	Start()
	Stop()
	Encoding() string
}

// CountryProvider supplies the reference country list; satisfied by
// analysis.CountryCache.
type CountryProvider interface {
	Countries(ctx context.Context) ([]models.Country, error)
}

// Deps are the session's collaborators.
type Deps struct {
	Source    StreamSource
	Channel   Channel
	Documents analysis.DocumentAnalyzer
	Faces     analysis.FaceDetector
	Countries CountryProvider
}

// Session drives one verification attempt: stream the document camera,
// capture and analyze the document, switch to the selfie camera,
// capture and analyze the face. All public methods are safe for
// concurrent use; the state machine itself advances one transition at
// a time.
type Session struct {
	ID    string
	token string
	cfg   Config
	deps  Deps
	now   func() time.Time

	// OnChunk, if set, observes every media chunk flushed by the
	// recorder.
	OnChunk func(bytes int)

	startGroup singleflight.Group

	mu        sync.Mutex
	state     State
	mode      Mode
	facing    media.Facing
	lastError  string
	frame      models.CapturedFrame
	faceResult models.FaceAnalysisResult
	recorder   Recorder
	lastReset  time.Time

	done      chan struct{}
	doneOnce  sync.Once
	watchOnce sync.Once

	newRecorder func(stream media.Stream, sender transport.Sender, interval time.Duration) (Recorder, error)
}

// New creates an idle session bound to a resolved verification token.
func New(id, token string, deps Deps, cfg Config) *Session {
	s := &Session{
		ID:     id,
		token:  token,
		cfg:    cfg.withDefaults(),
		deps:   deps,
		now:    time.Now,
		state:  StateIdle,
		mode:   ModeDocument,
		facing: media.FacingEnvironment,
		done:   make(chan struct{}),
	}
	s.newRecorder = func(stream media.Stream, sender transport.Sender, interval time.Duration) (Recorder, error) {
		recorder, err := transport.NewRecorder(stream, sender, interval)
		if err != nil {
			return nil, err
		}
		recorder.OnChunk = s.OnChunk
		return recorder, nil
	}
	return s
}

// Snapshot is the externally visible session state.
type Snapshot struct {
	State     State        `json:"state"`
	Mode      Mode         `json:"mode"`
	Facing    media.Facing `json:"facing"`
	LastError string       `json:"last_error,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{State: s.state, Mode: s.mode, Facing: s.facing, LastError: s.lastError}
}

// Frame returns the captured frame retained for display, if any.
func (s *Session) Frame() models.CapturedFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// FaceResult returns the outcome of the most recent selfie analysis.
// The Face pointer is nil until a selfie has been analyzed.
func (s *Session) FaceResult() models.FaceAnalysisResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faceResult
}

// Start acquires the camera, authenticates the channel and begins
// recording. Concurrent calls collapse onto one in-flight attempt, and
// a session that is already streaming treats Start as a no-op; at no
// point are two device acquisitions issued. A failed session refuses
// Start until it is reset.
func (s *Session) Start(ctx context.Context) error {
	_, err, _ := s.startGroup.Do("start", func() (interface{}, error) {
		return nil, s.start(ctx)
	})
	return err
}

func (s *Session) start(ctx context.Context) error {
	if s.closed() {
		return ErrSessionClosed
	}

	s.mu.Lock()
	switch s.state {
	case StateStreaming, StateCapturing, StateAnalyzingDocument, StateAnalyzingFace:
		s.mu.Unlock()
		slog.Debug("Session already streaming, ignoring start", "session_id", s.ID)
		return nil
	case StateSuccess:
		s.mu.Unlock()
		return ErrSessionCompleted
	case StateError:
		s.mu.Unlock()
		return ErrSessionFailed
	}
	facing := s.facing
	s.mu.Unlock()

	slog.Info("Starting capture session", "session_id", s.ID, "facing", facing)

	stream, err := s.deps.Source.Acquire(ctx, facing)
	if err != nil {
		s.toError(fmt.Sprintf("camera unavailable: %v", err))
		return fmt.Errorf("failed to acquire camera: %w", err)
	}

	if err := s.deps.Channel.Open(ctx, s.token); err != nil {
		s.deps.Source.Release()
		if errors.Is(err, transport.ErrAuthenticationFailed) {
			s.toError("invalid session")
		} else {
			s.toError(fmt.Sprintf("failed to open media channel: %v", err))
		}
		return err
	}

	if err := s.startRecording(stream); err != nil {
		s.deps.Channel.Close("recording failed")
		s.deps.Source.Release()
		s.toError(err.Error())
		return err
	}

	s.mu.Lock()
	s.state = StateStreaming
	s.mu.Unlock()

	s.watchOnce.Do(func() {
		// Drain the readiness signal from the authentication that just
		// happened; the watcher only cares about reconnects.
		select {
		case <-s.deps.Channel.Ready():
		default:
		}
		go s.watchChannel()
	})
	return nil
}

func (s *Session) startRecording(stream media.Stream) error {
	recorder, err := s.newRecorder(stream, s.deps.Channel, s.cfg.ChunkInterval)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.recorder != nil {
		old := s.recorder
		s.mu.Unlock()
		old.Stop()
		s.mu.Lock()
	}
	s.recorder = recorder
	s.mu.Unlock()

	recorder.Start()
	slog.Info("Recording started", "session_id", s.ID, "encoding", recorder.Encoding())
	return nil
}

// watchChannel observes channel readiness signals after the initial
// authentication; each one marks a completed reconnect. Recording
// resumes without user action because chunk sends during the closed
// window were silent no-ops.
func (s *Session) watchChannel() {
	for {
		select {
		case <-s.done:
			return
		case _, ok := <-s.deps.Channel.Ready():
			if !ok {
				return
			}
			slog.Info("Media channel ready again, recording resumes", "session_id", s.ID)
		}
	}
}

// Capture freezes a still frame and runs the analysis for the current
// mode. Valid only while streaming. The verdict is encoded in the
// returned status; analysis failures move the session to Error with the
// frame retained for display.
func (s *Session) Capture(ctx context.Context) (models.Status, error) {
	if s.closed() {
		return models.Status{}, ErrSessionClosed
	}

	s.mu.Lock()
	if s.state != StateStreaming {
		state := s.state
		s.mu.Unlock()
		return models.Status{}, fmt.Errorf("%w: state is %s", ErrNotStreaming, state)
	}
	s.state = StateCapturing
	mode := s.mode
	recorder := s.recorder
	s.recorder = nil
	s.mu.Unlock()

	// Recording stops for the duration of the remote call; the live
	// stream itself keeps running.
	if recorder != nil {
		recorder.Stop()
	}

	stream := s.deps.Source.Stream()
	if stream == nil {
		s.toError("no active stream")
		return models.Status{}, ErrNotStreaming
	}

	frame, err := stream.StillFrame(ctx)
	if err != nil {
		s.toError(fmt.Sprintf("failed to capture frame: %v", err))
		return models.FailureStatus("failed to capture frame"), nil
	}

	s.mu.Lock()
	s.frame = frame
	s.mu.Unlock()

	switch mode {
	case ModeSelfie:
		return s.analyzeFace(ctx, frame)
	default:
		return s.analyzeDocument(ctx, frame)
	}
}

func (s *Session) analyzeDocument(ctx context.Context, frame models.CapturedFrame) (models.Status, error) {
	s.setState(StateAnalyzingDocument)
	slog.Info("Analyzing document capture", "session_id", s.ID, "width", frame.Width, "height", frame.Height)

	result, err := s.deps.Documents.Analyze(ctx, frame.Data)
	if err != nil {
		slog.Error("Document analysis failed", "session_id", s.ID, "error", err)
		status := models.FailureStatus("failed to process passport data")
		s.toError(status.Message)
		return status, nil
	}

	countries, err := s.deps.Countries.Countries(ctx)
	if err != nil {
		slog.Error("Failed to load country reference data", "session_id", s.ID, "error", err)
		status := models.FailureStatus("failed to process passport data")
		s.toError(status.Message)
		return status, nil
	}

	doc := document.Extract(result.Raw, countries, s.now())
	if !doc.Status.OK() {
		s.toError(doc.Status.Message)
		return doc.Status, nil
	}

	if err := s.toggleCamera(ctx); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return models.Status{}, err
		}
		s.toError(err.Error())
		return models.FailureStatus(err.Error()), nil
	}

	slog.Info("Document accepted, switched to selfie capture", "session_id", s.ID, "passport_number", doc.PassportNumber != "")
	return doc.Status, nil
}

func (s *Session) analyzeFace(ctx context.Context, frame models.CapturedFrame) (models.Status, error) {
	s.setState(StateAnalyzingFace)
	slog.Info("Analyzing selfie capture", "session_id", s.ID)

	detection, err := s.deps.Faces.Detect(ctx, frame.Data)
	if err != nil {
		slog.Error("Face analysis failed", "session_id", s.ID, "error", err)
		status := models.FailureStatus("failed to analyze face")
		s.toError(status.Message)
		return status, nil
	}

	status := analysis.EvaluateFace(detection)
	s.mu.Lock()
	s.faceResult = models.FaceAnalysisResult{Face: &detection, Status: status}
	s.mu.Unlock()

	if !status.OK() {
		s.toError(status.Message)
		return status, nil
	}

	s.complete()
	return status, nil
}

// toggleCamera switches from the document camera to the selfie camera:
// release the current stream, flip facing, re-authenticate the channel,
// acquire the user-facing stream, wait out the settle delay, then
// restart recording. Recording started before the new device stabilizes
// produces empty initial chunks.
func (s *Session) toggleCamera(ctx context.Context) error {
	slog.Info("Switching to selfie camera", "session_id", s.ID)
	s.deps.Source.Release()

	if err := s.deps.Channel.Open(ctx, s.token); err != nil {
		return fmt.Errorf("failed to re-authenticate media channel: %w", err)
	}

	stream, err := s.deps.Source.Acquire(ctx, media.FacingUser)
	if err != nil {
		return fmt.Errorf("failed to acquire selfie camera: %w", err)
	}

	select {
	case <-time.After(s.cfg.SettleDelay):
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := s.startRecording(stream); err != nil {
		return err
	}

	s.mu.Lock()
	s.mode = ModeSelfie
	s.facing = media.FacingUser
	s.state = StateStreaming
	s.mu.Unlock()
	return nil
}

// Reset clears error and frame state and re-enters streaming in the
// current mode. Rejected while a capture's analysis call is still
// outstanding; at most one capture is ever in flight. Rapid repeated
// calls inside the debounce window collapse into one.
func (s *Session) Reset(ctx context.Context) error {
	if s.closed() {
		return ErrSessionClosed
	}

	s.mu.Lock()
	switch s.state {
	case StateCapturing, StateAnalyzingDocument, StateAnalyzingFace:
		s.mu.Unlock()
		return ErrCaptureInFlight
	case StateSuccess:
		s.mu.Unlock()
		return ErrSessionCompleted
	}

	now := s.now()
	if now.Sub(s.lastReset) < s.cfg.ResetDebounce {
		s.mu.Unlock()
		slog.Debug("Reset debounced", "session_id", s.ID)
		return nil
	}
	s.lastReset = now
	s.state = StateIdle
	s.lastError = ""
	s.frame = models.CapturedFrame{}
	s.faceResult = models.FaceAnalysisResult{}
	s.mu.Unlock()

	slog.Info("Resetting capture session", "session_id", s.ID)
	return s.Start(ctx)
}

// Teardown ends the session: stop recording, close the channel without
// triggering a reconnect, then release the media stream, in that order
// so no chunk is sent against a half-closed channel and the camera is
// not left reserved. Idempotent.
func (s *Session) Teardown() {
	s.doneOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		recorder := s.recorder
		s.recorder = nil
		s.mu.Unlock()

		if recorder != nil {
			recorder.Stop()
		}
		s.deps.Channel.Close("session teardown")
		s.deps.Source.Release()
		slog.Info("Session torn down", "session_id", s.ID)
	})
}

func (s *Session) complete() {
	s.mu.Lock()
	s.state = StateSuccess
	s.lastError = ""
	recorder := s.recorder
	s.recorder = nil
	s.mu.Unlock()

	if recorder != nil {
		recorder.Stop()
	}
	s.deps.Channel.Close("verification complete")
	s.deps.Source.Release()
	slog.Info("Verification completed", "session_id", s.ID)
}

// toError records a recoverable failure. The captured frame is kept for
// display until Reset; recording and the channel stop so the retry
// starts clean.
func (s *Session) toError(message string) {
	s.mu.Lock()
	s.state = StateError
	s.lastError = message
	recorder := s.recorder
	s.recorder = nil
	s.mu.Unlock()

	if recorder != nil {
		recorder.Stop()
	}
	s.deps.Channel.Close("capture failed")
	slog.Warn("Session entered error state", "session_id", s.ID, "message", message)
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
