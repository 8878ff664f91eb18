package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voidlock/squire/internal/domain"
)

// chatFrame is one JSON message on the chat WebSocket, in both directions.
// Client → server: type "prompt" or "reset" with Body set.
// Server → client: type "message" carrying one output chunk.
type chatFrame struct {
	Type string `json:"type"`
	Body string `json:"body,omitempty"`
	From string `json:"from,omitempty"`
}

// wsConn serializes writes to one WebSocket client.
type wsConn struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex
	once    sync.Once
}

func (c *wsConn) write(frame chatFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(frame)
}

func (c *wsConn) close() {
	c.once.Do(func() { c.conn.Close() })
}

// handleChat upgrades to WebSocket and runs one chat connection. Each
// connection is its own conversation: the connection id is the chat id,
// so reconnecting starts a fresh session.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(1 << 20)

	wc := &wsConn{id: uuid.New().String(), conn: conn}

	s.mu.Lock()
	s.conns[wc.id] = wc
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, wc.id)
		s.mu.Unlock()
		wc.close()
	}()

	s.log.Info().Str("connId", wc.id).Str("remote", r.RemoteAddr).Msg("chat connection opened")

	for {
		var frame chatFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", wc.id).Msg("chat connection closed")
			} else {
				s.log.Warn().Err(err).Str("connId", wc.id).Msg("chat read error")
			}
			return
		}

		author := frame.From
		if author == "" {
			author = "gateway"
		}
		ev := domain.MentionEvent{
			ID:         uuid.New().String(),
			ChannelID:  "gateway",
			ChatID:     wc.id,
			AuthorID:   author,
			AuthorName: author,
			ChatType:   domain.ChatTypeDM,
			Text:       frame.Body,
			Timestamp:  time.Now(),
		}

		s.mu.RLock()
		onMention := s.onMention
		onReset := s.onReset
		s.mu.RUnlock()

		switch frame.Type {
		case "prompt":
			if onMention != nil {
				// A turn blocks until the backend finishes; run it off the
				// read loop so a !reset frame can still come through.
				go onMention(ev)
			}
		case "reset":
			if onReset != nil {
				go onReset(ev)
			}
		default:
			wc.write(chatFrame{Type: "message", Body: "unknown frame type: " + frame.Type})
		}
	}
}
