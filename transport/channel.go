package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Status of the media channel.
type Status string

const (
	StatusConnecting     Status = "connecting"
	StatusOpen           Status = "open"
	StatusAuthenticating Status = "authenticating"
	StatusAuthenticated  Status = "authenticated"
	StatusClosed         Status = "closed"
)

// ErrAuthenticationFailed is terminal for the whole session: the
// backend rejected the token, so no reconnect is attempted.
var ErrAuthenticationFailed = errors.New("authentication failed")

// DefaultReconnectDelay is the fixed backoff before the single
// reconnect attempt scheduled after an unclean closure.
const DefaultReconnectDelay = 3 * time.Second

const authReadTimeout = 10 * time.Second

// AuthMessage is the first client message after the socket opens.
type AuthMessage struct {
	Action string `json:"action"`
	Token  string `json:"token"`
}

// ServerMessage is the backend's JSON control message.
type ServerMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Channel is the persistent authenticated connection carrying binary
// media chunks to the backend. At most one channel is open per session.
type Channel struct {
	url            string
	dialer         *websocket.Dialer
	reconnectDelay time.Duration

	// OnReconnect, if set, observes every successful reconnect.
	OnReconnect func()

	statusMu sync.RWMutex
	status   Status

	mu     sync.Mutex
	conn   *websocket.Conn
	token  string
	closed bool

	ready chan struct{}
}

func NewChannel(url string, reconnectDelay time.Duration) *Channel {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &Channel{
		url:            url,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: reconnectDelay,
		status:         StatusClosed,
		ready:          make(chan struct{}, 1),
	}
}

func (c *Channel) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

func (c *Channel) setStatus(s Status) {
	c.statusMu.Lock()
	c.status = s
	c.statusMu.Unlock()
}

// Ready signals once per successful authentication, including after a
// reconnect, so the recorder can resume without user action.
func (c *Channel) Ready() <-chan struct{} {
	return c.ready
}

func (c *Channel) signalReady() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Open dials the backend, authenticates with the token, and resolves
// once the backend confirms. Calling Open on an already authenticated
// channel is a no-op. An empty token or a backend rejection is an
// ErrAuthenticationFailed, which is terminal: no reconnect follows it.
func (c *Channel) Open(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: no token supplied", ErrAuthenticationFailed)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.Status() == StatusAuthenticated {
		slog.Debug("Channel already authenticated, reusing connection")
		return nil
	}

	c.setStatus(StatusConnecting)
	slog.Info("Connecting media channel", "url", c.url)

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.setStatus(StatusClosed)
		return fmt.Errorf("failed to dial media channel: %w", err)
	}
	c.setStatus(StatusOpen)

	if err := conn.WriteJSON(AuthMessage{Action: "authenticate", Token: token}); err != nil {
		conn.Close()
		c.setStatus(StatusClosed)
		return fmt.Errorf("failed to send authentication: %w", err)
	}
	c.setStatus(StatusAuthenticating)

	if err := conn.SetReadDeadline(time.Now().Add(authReadTimeout)); err != nil {
		conn.Close()
		c.setStatus(StatusClosed)
		return fmt.Errorf("failed to set read deadline: %w", err)
	}

	_, payload, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		c.setStatus(StatusClosed)
		return fmt.Errorf("failed to read authentication response: %w", err)
	}

	var msg ServerMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		conn.Close()
		c.setStatus(StatusClosed)
		return fmt.Errorf("failed to parse authentication response: %w", err)
	}

	if msg.Status != "success" || msg.Message != "authenticated" {
		conn.Close()
		c.setStatus(StatusClosed)
		slog.Warn("Channel authentication rejected", "status", msg.Status, "message", msg.Message)
		return fmt.Errorf("%w: %s", ErrAuthenticationFailed, msg.Message)
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		conn.Close()
		c.setStatus(StatusClosed)
		return fmt.Errorf("failed to clear read deadline: %w", err)
	}

	c.conn = conn
	c.token = token
	c.closed = false
	c.setStatus(StatusAuthenticated)
	slog.Info("Media channel authenticated")

	go c.readLoop(conn)
	c.signalReady()
	return nil
}

// readLoop watches the connection for server messages and closure. An
// unclean closure while the channel has not been closed locally
// schedules exactly one reconnect attempt.
func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}

		c.mu.Lock()
		manual := c.closed || c.conn != conn
		if c.conn == conn {
			c.conn = nil
		}
		token := c.token
		c.mu.Unlock()

		if manual {
			return
		}

		c.setStatus(StatusClosed)
		slog.Warn("Media channel closed uncleanly, scheduling reconnect", "error", err, "delay", c.reconnectDelay)
		go c.reconnect(token)
		return
	}
}

// reconnect retries Open with the original token at a fixed delay until
// it succeeds, the backend rejects the token, or the channel is closed.
func (c *Channel) reconnect(token string) {
	for {
		time.Sleep(c.reconnectDelay)

		c.mu.Lock()
		stopped := c.closed
		c.mu.Unlock()
		if stopped {
			return
		}

		err := c.Open(context.Background(), token)
		if err == nil {
			slog.Info("Media channel reconnected")
			if c.OnReconnect != nil {
				c.OnReconnect()
			}
			return
		}
		if errors.Is(err, ErrAuthenticationFailed) {
			slog.Error("Reconnect rejected by backend, giving up", "error", err)
			return
		}
		slog.Warn("Reconnect attempt failed, retrying", "error", err)
	}
}

// Send forwards one binary media chunk. Sending while the channel is
// not authenticated is a no-op, not an error, so chunks arriving during
// a reconnect window are tolerated.
func (c *Channel) Send(chunk []byte) error {
	if c.Status() != StatusAuthenticated {
		slog.Debug("Dropping chunk, channel not authenticated", "size", len(chunk))
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}

	if err := c.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("failed to send chunk: %w", err)
	}
	return nil
}

// Close shuts the channel without triggering a reconnect. Idempotent.
func (c *Channel) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.setStatus(StatusClosed)

	if c.conn != nil {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			slog.Debug("Failed to write close message", "error", err)
		}
		c.conn.Close()
		c.conn = nil
	}
	slog.Info("Media channel closed", "reason", reason)
}
