// Package wsbridge keeps a client WebSocket to the agent host alive.
package wsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultKeepAlive is the keep-alive period used when none is given.
const DefaultKeepAlive = 20 * time.Second

const writeTimeout = 10 * time.Second

// Message is the JSON frame exchanged with the host.
type Message struct {
	Source      string          `json:"source"`
	Target      string          `json:"target"`
	ID          string          `json:"id,omitempty"`
	MessageType string          `json:"messageType"`
	Body        json.RawMessage `json:"body"`
}

// Socket is a connected client. Writes are serialized.
type Socket struct {
	conn   *websocket.Conn
	logger *slog.Logger

	mu sync.Mutex
}

// Dial connects to url. It returns nil after logging when the connection
// cannot be opened.
func Dial(ctx context.Context, url string, logger *slog.Logger) *Socket {
	if logger == nil {
		logger = slog.Default()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		logger.Warn("websocket connect failed", "url", url, "err", err)
		return nil
	}
	logger.Debug("websocket connected", "url", url)
	return &Socket{conn: conn, logger: logger}
}

// Send writes m as one JSON text frame. A nil body is sent as {}.
func (s *Socket) Send(m Message) error {
	if m.Body == nil {
		m.Body = json.RawMessage(`{}`)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(m); err != nil {
		return fmt.Errorf("websocket send: %w", err)
	}
	return nil
}

// Read blocks for the next frame.
func (s *Socket) Read() (Message, error) {
	var m Message
	if err := s.conn.ReadJSON(&m); err != nil {
		return Message{}, fmt.Errorf("websocket read: %w", err)
	}
	return m, nil
}

// KeepAlive sends a keepAlive frame every interval until ctx ends or a
// write fails. It blocks; run it in its own goroutine.
func (s *Socket) KeepAlive(ctx context.Context, source string, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultKeepAlive
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.Send(Message{
				Source:      source,
				Target:      "none",
				MessageType: "keepAlive",
			})
			if err != nil {
				s.logger.Info("clearing keepalive", "err", err)
				return
			}
		}
	}
}

// Close sends a close frame and closes the connection.
func (s *Socket) Close() error {
	s.mu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.mu.Unlock()
	return s.conn.Close()
}
