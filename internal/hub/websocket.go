package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 4 * 1024 // control messages only; audio goes over HTTP
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// controlMessage is the only shape clients may send on the stream. Order
// commands arrive over the HTTP API, never over the socket.
type controlMessage struct {
	Type string `json:"type"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ServeWS upgrades the request, registers the connection under the given
// role, replays retained history and then pumps live events until either
// side closes. The delivery task belongs to this connection alone; closing
// it never touches in-flight order operations.
func ServeWS(h *Hub, role Role, w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("hub: failed to upgrade connection: %v", err)
		return
	}

	conn, err := h.Register(role)
	if err != nil {
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		ws.Close()
		return
	}

	go writePump(h, conn, ws)

	if err := h.ReplayHistory(conn); err != nil {
		log.Printf("hub: replay failed for %s connection %s: %v", role, conn.ID, err)
		ws.Close()
		return
	}

	go readPump(h, conn, ws)
}

// readPump consumes control messages from the client until the socket dies.
func readPump(h *Hub, conn *Connection, ws *websocket.Conn) {
	defer func() {
		h.Unregister(conn)
		ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		conn.Touch()
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("hub: %s connection %s read error: %v", conn.Role, conn.ID, err)
			}
			return
		}
		conn.Touch()
		ws.SetReadDeadline(time.Now().Add(pongWait))

		var msg controlMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			sendError(conn, "malformed control message")
			continue
		}

		switch msg.Type {
		case "ping":
			// Touch above already recorded liveness.
		case "disconnect":
			return
		default:
			// Unknown types are reported, never silently ignored; the
			// connection stays open.
			sendError(conn, "unknown control message type: "+msg.Type)
		}
	}
}

// writePump drains the connection's outbound queue onto the socket and keeps
// the transport alive with protocol-level pings. All writes are bounded by
// writeWait so a stalled peer can never wedge the pump.
func writePump(h *Hub, conn *Connection, ws *websocket.Conn) {
	ticker := time.NewTicker(pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		h.Unregister(conn)
		ws.Close()
	}()

	for {
		select {
		case message := <-conn.Events():
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-conn.Done():
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// sendError pushes an error frame to one connection without disturbing the
// role's event stream.
func sendError(conn *Connection, message string) {
	data, err := json.Marshal(errorFrame{Type: "error", Error: message})
	if err != nil {
		return
	}
	if !conn.enqueue(data) {
		log.Printf("hub: %s connection %s buffer full, dropping error frame", conn.Role, conn.ID)
	}
}
