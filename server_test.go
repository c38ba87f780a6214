package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"go-idv-capture/models"
	"go-idv-capture/session"
)

func createSession(t *testing.T, token string) string {
	t.Helper()
	resp, body, created := postJSON[CreateSessionResponse](t, testBaseURL+"/api/session", CreateSessionRequest{Token: token})
	mustStatus(t, resp, http.StatusCreated, body)
	require.NotEmpty(t, created.SessionId)
	return created.SessionId
}

func startSession(t *testing.T, id string) {
	t.Helper()
	resp, body, _ := postJSON[session.Snapshot](t, testBaseURL+"/api/session/"+id+"/start", nil)
	mustStatus(t, resp, http.StatusOK, body)
}

func TestCreateSession_InvalidToken(t *testing.T) {
	storage := NewInMemoryTokenStorage()
	startTestServer(t, storage, fakeResolver{err: ErrInvalidToken})

	resp, body, _ := postJSON[map[string]any](t, testBaseURL+"/api/session", CreateSessionRequest{Token: "garbage"})
	mustStatus(t, resp, http.StatusUnauthorized, body)
	require.Equal(t, ERR_INVALID_SESSION, string(body))
}

func TestCreateSession_UnknownSessionId(t *testing.T) {
	storage := NewInMemoryTokenStorage()
	startTestServer(t, storage, fakeResolver{claimId: "claim-1"})

	resp, body, _ := postJSON[map[string]any](t, testBaseURL+"/api/session/does-not-exist/start", nil)
	mustStatus(t, resp, http.StatusNotFound, body)
}

func TestCapture_RequiresStreaming(t *testing.T) {
	storage := NewInMemoryTokenStorage()
	startTestServer(t, storage, fakeResolver{claimId: "claim-1"})

	id := createSession(t, "test-token")
	resp, body, _ := postJSON[CaptureResponse](t, testBaseURL+"/api/session/"+id+"/capture", nil)
	mustStatus(t, resp, http.StatusConflict, body)
}

func TestCaptureFlow_Success_RemovesSessionToken(t *testing.T) {
	storage := NewInMemoryTokenStorage()
	require.NoError(t, storage.StoreToken("claim-1", "test-token"))
	startTestServer(t, storage, fakeResolver{claimId: "claim-1"})

	id := createSession(t, "test-token")
	startSession(t, id)

	// Document capture routes to selfie capture.
	resp, body, capture := postJSON[CaptureResponse](t, testBaseURL+"/api/session/"+id+"/capture", nil)
	mustStatus(t, resp, http.StatusOK, body)
	require.Equal(t, models.StatusCodeSuccess, capture.Code)
	require.Equal(t, models.NextStepSelfieCapture, capture.NextStep)
	require.Equal(t, session.StateStreaming, capture.State)

	// Selfie capture completes the verification.
	resp, body, capture = postJSON[CaptureResponse](t, testBaseURL+"/api/session/"+id+"/capture", nil)
	mustStatus(t, resp, http.StatusOK, body)
	require.Equal(t, models.StatusCodeSuccess, capture.Code)
	require.Equal(t, models.NextStepDone, capture.NextStep)
	require.Equal(t, session.StateSuccess, capture.State)

	got, err := storage.RetrieveToken("claim-1")
	require.Error(t, err)     // removed
	require.Equal(t, "", got) // no token left
}

func TestCaptureFlow_FaceRejected_ThenReset(t *testing.T) {
	storage := NewInMemoryTokenStorage()
	// A face the rules reject: the selfie capture lands in Error with
	// the frame retained until reset.
	rejected := models.FaceDetection{FaceFound: true, Confidence: 98, EyesOpen: false}
	startTestServerWith(t, storage, fakeResolver{claimId: "claim-1"}, newTestSessionFactoryWithFace(rejected))

	id := createSession(t, "test-token")
	startSession(t, id)

	resp, body, capture := postJSON[CaptureResponse](t, testBaseURL+"/api/session/"+id+"/capture", nil)
	mustStatus(t, resp, http.StatusOK, body)
	require.Equal(t, models.NextStepSelfieCapture, capture.NextStep)

	resp, body, capture = postJSON[CaptureResponse](t, testBaseURL+"/api/session/"+id+"/capture", nil)
	mustStatus(t, resp, http.StatusOK, body)
	require.Equal(t, models.StatusCodeFailure, capture.Code)
	require.Equal(t, session.StateError, capture.State)

	resp, body, status := getJSON[SessionStatusResponse](t, testBaseURL+"/api/session/"+id)
	mustStatus(t, resp, http.StatusOK, body)
	require.Equal(t, session.StateError, status.State)
	require.NotEmpty(t, status.LastError)
	require.NotZero(t, status.FrameWidth)
	require.NotEmpty(t, status.FrameThumbnail)
	require.NotNil(t, status.Face)
	require.False(t, status.Face.EyesOpen)

	resp, body, snapshot := postJSON[session.Snapshot](t, testBaseURL+"/api/session/"+id+"/reset", nil)
	mustStatus(t, resp, http.StatusOK, body)
	require.Equal(t, session.StateStreaming, snapshot.State)
	require.Equal(t, session.ModeSelfie, snapshot.Mode)
}

func TestEndSession(t *testing.T) {
	storage := NewInMemoryTokenStorage()
	startTestServer(t, storage, fakeResolver{claimId: "claim-1"})

	id := createSession(t, "test-token")
	startSession(t, id)

	req, err := http.NewRequest(http.MethodDelete, testBaseURL+"/api/session/"+id, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp2, body, _ := postJSON[map[string]any](t, testBaseURL+"/api/session/"+id+"/start", nil)
	mustStatus(t, resp2, http.StatusNotFound, body)
}
