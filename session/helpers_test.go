package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"go-idv-capture/media"
	"go-idv-capture/models"
	"go-idv-capture/transport"
)

// eventLog records collaborator calls in order so tests can assert on
// teardown sequencing.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeStream struct {
	chunks chan []byte
	frame  models.CapturedFrame
}

func newTestStream() *fakeStream {
	return &fakeStream{
		chunks: make(chan []byte, 4),
		frame:  models.CapturedFrame{Data: []byte("frame"), Width: 640, Height: 480},
	}
}

func (s *fakeStream) Encodings() []string {
	return []string{"video/webm;codecs=vp8,opus"}
}
func (s *fakeStream) Chunks() <-chan []byte { return s.chunks }
func (s *fakeStream) Stop()                 {}
func (s *fakeStream) StillFrame(ctx context.Context) (models.CapturedFrame, error) {
	return s.frame, nil
}

type fakeSource struct {
	log *eventLog

	mu           sync.Mutex
	acquisitions int
	facings      []media.Facing
	current      media.Stream
	acquireErr   error
	acquireDelay time.Duration
}

func (f *fakeSource) Acquire(ctx context.Context, facing media.Facing) (media.Stream, error) {
	if f.acquireDelay > 0 {
		time.Sleep(f.acquireDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	f.acquisitions++
	f.facings = append(f.facings, facing)
	f.current = newTestStream()
	return f.current, nil
}

func (f *fakeSource) Stream() media.Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeSource) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = nil
	if f.log != nil {
		f.log.add("source.release")
	}
}

func (f *fakeSource) acquired() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquisitions
}

type fakeChannel struct {
	log *eventLog

	mu      sync.Mutex
	openErr error
	opens   int
	tokens  []string
	sent    [][]byte
	closes  []string
	status  transport.Status
	ready   chan struct{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{status: transport.StatusClosed, ready: make(chan struct{}, 1)}
}

func (c *fakeChannel) Open(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return c.openErr
	}
	c.opens++
	c.tokens = append(c.tokens, token)
	c.status = transport.StatusAuthenticated
	return nil
}

func (c *fakeChannel) Send(chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, chunk)
	return nil
}

func (c *fakeChannel) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes = append(c.closes, reason)
	c.status = transport.StatusClosed
	if c.log != nil {
		c.log.add("channel.close")
	}
}

func (c *fakeChannel) Status() transport.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *fakeChannel) Ready() <-chan struct{} { return c.ready }

func (c *fakeChannel) openCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

type fakeRecorder struct {
	log *eventLog

	mu      sync.Mutex
	started bool
	stopped bool
}

func (r *fakeRecorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
}

func (r *fakeRecorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.log != nil {
		r.log.add("recorder.stop")
	}
}

func (r *fakeRecorder) Encoding() string { return "video/webm;codecs=vp8,opus" }

type fakeDocuments struct {
	raw string
	err error
}

func (f *fakeDocuments) Analyze(ctx context.Context, imageBytes []byte) (models.DocumentAnalysis, error) {
	if f.err != nil {
		return models.DocumentAnalysis{}, f.err
	}
	return models.DocumentAnalysis{Lines: strings.Split(f.raw, "\n"), Raw: f.raw}, nil
}

// blockingDocuments parks Analyze until released so tests can act
// while the analysis call is outstanding.
type blockingDocuments struct {
	entered chan struct{}
	release chan struct{}
	raw     string
}

func newBlockingDocuments(raw string) *blockingDocuments {
	return &blockingDocuments{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		raw:     raw,
	}
}

func (d *blockingDocuments) Analyze(ctx context.Context, imageBytes []byte) (models.DocumentAnalysis, error) {
	close(d.entered)
	<-d.release
	return models.DocumentAnalysis{Lines: strings.Split(d.raw, "\n"), Raw: d.raw}, nil
}

type fakeFaces struct {
	detection models.FaceDetection
	err       error
}

func (f *fakeFaces) Detect(ctx context.Context, imageBytes []byte) (models.FaceDetection, error) {
	if f.err != nil {
		return models.FaceDetection{}, f.err
	}
	return f.detection, nil
}

type fakeCountries struct{}

func (fakeCountries) Countries(ctx context.Context) ([]models.Country, error) {
	return []models.Country{{Name: "Nigeria", Code: "NGA"}}, nil
}

// validPassportRaw is a well-formed post-redesign passport text block.
func validPassportRaw() string {
	lines := make([]string, 30)
	for i := range lines {
		lines[i] = "-"
	}
	lines[0] = "FEDERAL REPUBLIC OF NIGERIA"
	lines[1] = "PASSPORT"
	lines[5] = "P"
	lines[6] = "NGA"
	lines[7] = "A12345678"
	lines[9] = "ADEYEMI"
	lines[11] = "CHIBUZO EMEKA"
	lines[14] = "NIGERIAN"
	lines[18] = "23 OCT/OCT 94"
	lines[19] = "12345678901"
	lines[21] = "M"
	lines[22] = "LAGOS"
	lines[25] = "01 JAN/JAN 20"
	lines[26] = "ABUJA"
	lines[29] = "14 MAY/MAI 30"
	return strings.Join(lines, "\n")
}

func goodFace() models.FaceDetection {
	return models.FaceDetection{
		FaceFound:  true,
		Confidence: 99,
		EyesOpen:   true,
	}
}

type testFixture struct {
	session *Session
	source  *fakeSource
	channel *fakeChannel
	faces   *fakeFaces
	log     *eventLog
}

func newTestSession(cfg Config) *testFixture {
	log := &eventLog{}
	source := &fakeSource{log: log}
	channel := newFakeChannel()
	channel.log = log
	faces := &fakeFaces{detection: goodFace()}

	s := New("test-session", "test-token", Deps{
		Source:    source,
		Channel:   channel,
		Documents: &fakeDocuments{raw: validPassportRaw()},
		Faces:     faces,
		Countries: fakeCountries{},
	}, cfg)
	s.newRecorder = func(stream media.Stream, sender transport.Sender, interval time.Duration) (Recorder, error) {
		return &fakeRecorder{log: log}, nil
	}
	return &testFixture{session: s, source: source, channel: channel, faces: faces, log: log}
}
