package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-idv-capture/analysis"
	"go-idv-capture/media"
	"go-idv-capture/metrics"
	"go-idv-capture/models"
	"go-idv-capture/session"
	"go-idv-capture/transport"
)

var testConfig = ServerConfig{
	Host:           "localhost",
	Port:           8091,
	UseTls:         false,
	TlsCertPath:    "",
	TlsPrivKeyPath: "",
}

const testBaseURL = "http://localhost:8091"

// testMetrics is shared across tests; promauto registers collectors
// globally, so New must run exactly once per process.
var testMetrics = metrics.New()

func startTestServer(t *testing.T, storage TokenStorage, resolver TokenResolver) *Server {
	t.Helper()
	return startTestServerWith(t, storage, resolver, newTestSessionFactory())
}

func startTestServerWith(t *testing.T, storage TokenStorage, resolver TokenResolver, factory SessionFactory) *Server {
	t.Helper()

	testState := &ServerState{
		tokenResolver: resolver,
		tokenStorage:  storage,
		metrics:       testMetrics,
		sessions:      make(map[string]*sessionEntry),
		newSession:    factory,
	}

	srv, err := NewServer(testState, testConfig)
	require.NoError(t, err)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("server error: %v", err)
		}
	}()

	waitUntilHealthy(t, testBaseURL+"/api/health")
	t.Cleanup(func() {
		if err := srv.Stop(); err != nil {
			t.Logf("error shutting down server: %v", err)
		}
	})
	return srv
}

func waitUntilHealthy(t *testing.T, url string) {
	t.Helper()
	const maxAttempts = 50
	for i := 0; i < maxAttempts; i++ {
		if resp, err := http.Get(url); err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("server did not start in time")
}

func postJSON[T any](t *testing.T, url string, payload any) (*http.Response, []byte, *T) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(b)
	}
	resp, err := http.Post(url, "application/json", body)
	require.NoError(t, err)

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded *T
	var v T
	_ = json.Unmarshal(respBody, &v)
	decoded = &v

	return resp, respBody, decoded
}

func getJSON[T any](t *testing.T, url string) (*http.Response, []byte, *T) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var v T
	_ = json.Unmarshal(respBody, &v)

	return resp, respBody, &v
}

func mustStatus(t *testing.T, resp *http.Response, want int, body []byte) {
	t.Helper()
	require.Equalf(t, want, resp.StatusCode, "body: %s", body)
}

// test doubles

// fakeResolver accepts any token stored for its claim id.
type fakeResolver struct {
	claimId string
	err     error
}

func (f fakeResolver) ResolveToken(token string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if token == "" {
		return "", fmt.Errorf("%w: no token supplied", ErrInvalidToken)
	}
	return f.claimId, nil
}

// fakeTestChannel stands in for the websocket channel so server tests
// do not need a media backend.
type fakeTestChannel struct {
	ready chan struct{}
}

func newFakeTestChannel() *fakeTestChannel {
	return &fakeTestChannel{ready: make(chan struct{}, 1)}
}

func (c *fakeTestChannel) Open(ctx context.Context, token string) error {
	if token == "" {
		return transport.ErrAuthenticationFailed
	}
	return nil
}

func (c *fakeTestChannel) Send(chunk []byte) error  { return nil }
func (c *fakeTestChannel) Close(reason string)      {}
func (c *fakeTestChannel) Status() transport.Status { return transport.StatusAuthenticated }
func (c *fakeTestChannel) Ready() <-chan struct{}   { return c.ready }

type fakeDocumentAnalyzer struct{ raw string }

func (f fakeDocumentAnalyzer) Analyze(ctx context.Context, imageBytes []byte) (models.DocumentAnalysis, error) {
	return models.DocumentAnalysis{Lines: strings.Split(f.raw, "\n"), Raw: f.raw}, nil
}

type fakeFaceDetector struct{ detection models.FaceDetection }

func (f fakeFaceDetector) Detect(ctx context.Context, imageBytes []byte) (models.FaceDetection, error) {
	return f.detection, nil
}

type fakeCountryProvider struct{}

func (fakeCountryProvider) Countries(ctx context.Context) ([]models.Country, error) {
	return []models.Country{{Name: "Nigeria", Code: "NGA"}}, nil
}

var _ analysis.DocumentAnalyzer = fakeDocumentAnalyzer{}
var _ analysis.FaceDetector = fakeFaceDetector{}

func newTestSessionFactory() SessionFactory {
	return newTestSessionFactoryWithFace(models.FaceDetection{FaceFound: true, Confidence: 98, EyesOpen: true})
}

func newTestSessionFactoryWithFace(detection models.FaceDetection) SessionFactory {
	return func(id, token string) *session.Session {
		return session.New(id, token, session.Deps{
			Source:    media.NewAcquirer(media.NewSyntheticDevice()),
			Channel:   newFakeTestChannel(),
			Documents: fakeDocumentAnalyzer{raw: testPassportRaw()},
			Faces:     fakeFaceDetector{detection: detection},
			Countries: fakeCountryProvider{},
		}, session.Config{SettleDelay: time.Millisecond, ResetDebounce: time.Millisecond})
	}
}

// testPassportRaw is a well-formed post-redesign passport text block.
func testPassportRaw() string {
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
