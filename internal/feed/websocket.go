package feed

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"warden/internal/api"
	"warden/internal/events"
)

// Frame is the wire format for messages sent over the WebSocket.
type Frame struct {
	Type        string            `json:"type"`
	Severity    string            `json:"severity"`
	ExtensionID string            `json:"extension_id,omitempty"`
	Message     string            `json:"message"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Hub broadcasts fleet events to connected admin clients.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*wsConn]struct{}
}

// wsConn wraps a WebSocket connection with its send queue.
type wsConn struct {
	conn *websocket.Conn
	send chan Frame
	done chan struct{}
}

// NewHub creates a hub and subscribes it to the event bus.
func NewHub(bus *events.Bus) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*wsConn]struct{}),
	}
	bus.Subscribe(h.broadcast)
	return h
}

// RegisterRoutes mounts the live feed behind the token middleware.
func (h *Hub) RegisterRoutes(mux *http.ServeMux, protect func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /api/events/ws", protect(h.HandleConnection))
	mux.HandleFunc("GET /api/events/stats", protect(h.handleStats))
}

func (h *Hub) handleStats(w http.ResponseWriter, r *http.Request) {
	api.JSONResponse(w, map[string]interface{}{
		"success":            true,
		"active_connections": h.ActiveConnections(),
	})
}

// broadcast fans an event out to every connected client. Slow clients
// drop frames rather than block the bus.
func (h *Hub) broadcast(e events.Event) {
	frame := Frame{
		Type:        string(e.Type),
		Severity:    e.Severity.String(),
		ExtensionID: e.ExtensionID,
		Message:     e.Message,
		Metadata:    e.Metadata,
		Timestamp:   e.Timestamp,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for wc := range h.conns {
		select {
		case wc.send <- frame:
		default:
			log.Printf("[WS] Client queue full, dropping %s frame", frame.Type)
		}
	}
}

// HandleConnection upgrades to WebSocket and streams events until the
// client disconnects.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed: %v", err)
		return
	}

	wc := &wsConn{
		conn: conn,
		send: make(chan Frame, 64),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.conns[wc] = struct{}{}
	h.mu.Unlock()

	log.Printf("[WS] Feed client connected from %s", r.RemoteAddr)

	go h.writeLoop(wc)

	// Read loop exists only to notice the close and answer pings.
	h.readLoop(wc)

	h.mu.Lock()
	delete(h.conns, wc)
	h.mu.Unlock()
	close(wc.done)

	log.Printf("[WS] Feed client %s disconnected", r.RemoteAddr)
}

func (h *Hub) readLoop(wc *wsConn) {
	defer wc.conn.Close()

	wc.conn.SetReadLimit(4 * 1024)
	wc.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	wc.conn.SetPongHandler(func(string) error {
		wc.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		if _, _, err := wc.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Read error: %v", err)
			}
			return
		}
		wc.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	}
}

func (h *Hub) writeLoop(wc *wsConn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-wc.done:
			return
		case frame := <-wc.send:
			wc.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := wc.conn.WriteJSON(frame); err != nil {
				wc.conn.Close()
				return
			}
		case <-ticker.C:
			if err := wc.conn.WriteControl(
				websocket.PingMessage, nil,
				time.Now().Add(10*time.Second),
			); err != nil {
				return
			}
		}
	}
}

// ActiveConnections returns the number of connected feed clients.
func (h *Hub) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll terminates every active connection.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for wc := range h.conns {
		wc.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(5*time.Second),
		)
		wc.conn.Close()
		delete(h.conns, wc)
	}
}
