package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// mediaServer is a backend double speaking the channel protocol.
type mediaServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	connections int
	tokens      []string
	binary      [][]byte
	reject      bool
	dropFirst   bool
}

func newMediaServer(t *testing.T) *mediaServer {
	s := &mediaServer{}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *mediaServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *mediaServer) connectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections
}

func (s *mediaServer) receivedBinary() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.binary...)
}

func (s *mediaServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.connections++
	count := s.connections
	s.mu.Unlock()

	var auth AuthMessage
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	s.mu.Lock()
	s.tokens = append(s.tokens, auth.Token)
	reject := s.reject
	drop := s.dropFirst && count == 1
	s.mu.Unlock()

	if reject {
		conn.WriteJSON(ServerMessage{Status: "error", Message: "authentication failed"})
		return
	}
	if err := conn.WriteJSON(ServerMessage{Status: "success", Message: "authenticated"}); err != nil {
		return
	}

	if drop {
		// Abrupt close without a close frame.
		conn.UnderlyingConn().Close()
		return
	}

	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.BinaryMessage {
			s.mu.Lock()
			s.binary = append(s.binary, payload)
			s.mu.Unlock()
		}
	}
}

func TestChannelOpen(t *testing.T) {
	t.Run("authenticates with the supplied token", func(t *testing.T) {
		server := newMediaServer(t)
		channel := NewChannel(server.url(), time.Second)

		err := channel.Open(context.Background(), "test-token")
		require.NoError(t, err)
		defer channel.Close("test done")

		require.Equal(t, StatusAuthenticated, channel.Status())
		select {
		case <-channel.Ready():
		default:
			t.Fatal("expected readiness signal after authentication")
		}

		server.mu.Lock()
		defer server.mu.Unlock()
		require.Equal(t, []string{"test-token"}, server.tokens)
	})

	t.Run("rejects an empty token without dialing", func(t *testing.T) {
		channel := NewChannel("ws://127.0.0.1:1", time.Second)

		err := channel.Open(context.Background(), "")
		require.ErrorIs(t, err, ErrAuthenticationFailed)
		require.Equal(t, StatusClosed, channel.Status())
	})

	t.Run("fails when the backend rejects the token", func(t *testing.T) {
		server := newMediaServer(t)
		server.reject = true
		channel := NewChannel(server.url(), time.Second)

		err := channel.Open(context.Background(), "bad-token")
		require.ErrorIs(t, err, ErrAuthenticationFailed)
		require.Equal(t, StatusClosed, channel.Status())
	})

	t.Run("is a no-op when already authenticated", func(t *testing.T) {
		server := newMediaServer(t)
		channel := NewChannel(server.url(), time.Second)

		require.NoError(t, channel.Open(context.Background(), "test-token"))
		defer channel.Close("test done")
		require.NoError(t, channel.Open(context.Background(), "test-token"))

		require.Equal(t, 1, server.connectionCount())
	})
}

func TestChannelSend(t *testing.T) {
	t.Run("delivers binary chunks once authenticated", func(t *testing.T) {
		server := newMediaServer(t)
		channel := NewChannel(server.url(), time.Second)
		require.NoError(t, channel.Open(context.Background(), "test-token"))
		defer channel.Close("test done")

		require.NoError(t, channel.Send([]byte("chunk-1")))
		require.NoError(t, channel.Send([]byte("chunk-2")))

		require.Eventually(t, func() bool {
			return len(server.receivedBinary()) == 2
		}, time.Second, 10*time.Millisecond)
		require.Equal(t, []byte("chunk-1"), server.receivedBinary()[0])
	})

	t.Run("is a no-op while not authenticated", func(t *testing.T) {
		channel := NewChannel("ws://127.0.0.1:1", time.Second)
		require.NoError(t, channel.Send([]byte("dropped")))
	})
}

func TestChannelReconnect(t *testing.T) {
	t.Run("reconnects once after an unclean closure", func(t *testing.T) {
		server := newMediaServer(t)
		server.dropFirst = true
		channel := NewChannel(server.url(), 20*time.Millisecond)

		require.NoError(t, channel.Open(context.Background(), "test-token"))
		defer channel.Close("test done")
		// Drain the first readiness signal.
		<-channel.Ready()

		select {
		case <-channel.Ready():
		case <-time.After(2 * time.Second):
			t.Fatal("expected readiness signal after reconnect")
		}
		require.Equal(t, StatusAuthenticated, channel.Status())
		require.Equal(t, 2, server.connectionCount())

		server.mu.Lock()
		defer server.mu.Unlock()
		require.Equal(t, []string{"test-token", "test-token"}, server.tokens)
	})

	t.Run("close suppresses the reconnect", func(t *testing.T) {
		server := newMediaServer(t)
		channel := NewChannel(server.url(), 20*time.Millisecond)

		require.NoError(t, channel.Open(context.Background(), "test-token"))
		channel.Close("session ended")
		channel.Close("session ended")

		time.Sleep(100 * time.Millisecond)
		require.Equal(t, 1, server.connectionCount())
		require.Equal(t, StatusClosed, channel.Status())
	})
}
