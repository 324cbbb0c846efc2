package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"dex-trade-stream/internal/domain"
	"dex-trade-stream/internal/hub"
	"dex-trade-stream/internal/observability"
)

// DefaultPingInterval is how often the server pings an idle client socket.
const DefaultPingInterval = 30 * time.Second

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientFrame is an inbound client message.
type clientFrame struct {
	Type string  `json:"type"`
	Pair *string `json:"pair"`
}

// handleWS upgrades the request and streams every broadcast to the client
// until either side closes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.wsLogger.Printf("upgrade: %v", err)
		return
	}

	client := s.hub.Register()
	s.wsLogger.Printf("New WebSocket connection: %s", client.ID())

	go s.writePump(conn, client)
	s.readPump(conn, client.ID())

	s.hub.Unregister(client.ID())
	s.wsLogger.Printf("Connection closed: %s", client.ID())
}

// readPump handles inbound frames until the socket fails or closes.
// Pong deadlines are extended by the ping cycle of writePump.
func (s *Server) readPump(conn *websocket.Conn, id string) {
	pongWait := 2 * s.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.wsLogger.Printf("read %s: %v", id, err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage {
			continue
		}
		s.handleClientFrame(id, data)
	}
}

// handleClientFrame applies a select_pair command. Anything else is logged
// and ignored.
func (s *Server) handleClientFrame(id string, data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.wsLogger.Printf("malformed frame from %s: %s", id, data)
		return
	}

	switch frame.Type {
	case "":
		s.wsLogger.Printf("frame from %s missing 'type' field", id)

	case "select_pair":
		if frame.Pair == nil {
			s.wsLogger.Printf("select_pair from %s missing 'pair' field", id)
			return
		}
		base, quote, err := domain.ParsePair(*frame.Pair)
		if err != nil {
			s.wsLogger.Printf("select_pair from %s: %v", id, err)
			return
		}

		pair := domain.FormatPair(base, quote)
		old := s.hub.SelectedPair()
		s.hub.SetSelectedPair(pair)
		observability.RecordPairSelection(pair)
		s.wsLogger.Printf("Pair updated by %s: %s -> %s", id, old, pair)

	default:
		s.wsLogger.Printf("ignoring message type %q from %s", frame.Type, id)
	}
}

// writePump is the only writer of conn. It drains the client queue and
// pings on idle. It closes conn when the queue is closed or a write fails.
func (s *Server) writePump(conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(s.pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.wsLogger.Printf("send to %s: %v", client.ID(), err)
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
