package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devskill-org/solar-fleet-sim/plant"
)

// telemetryTickInterval is how often the WebSocket hub pushes a fresh
// snapshot to every connected client (spec.md §4.6).
const telemetryTickInterval = 2 * time.Second

// telemetryFrame is the JSON payload pushed over GET /ws/telemetry.
type telemetryFrame struct {
	Type      string                `json:"type"`
	Timestamp string                `json:"timestamp"`
	Plants    map[string]plant.Data `json:"plants"`
}

// wsHub tracks connected WebSocket clients and fans out telemetry
// frames to all of them, dropping any client whose write fails. It is
// grounded on the teacher's WebServer: a sync.Map client registry plus
// ping/pong/close handled on a dedicated read loop per connection.
type wsHub struct {
	upgrader websocket.Upgrader
	clients  sync.Map // *websocket.Conn -> struct{}
}

func newWSHub() *wsHub {
	return &wsHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// handle upgrades one incoming request to a WebSocket connection,
// registers it, and blocks reading control frames (ping/pong/close)
// until the client disconnects. No snapshot is sent on connect; the
// client receives its first frame on run's next tick.
func (h *wsHub) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.clients.Store(conn, struct{}{})

	defer func() {
		h.clients.Delete(conn)
		conn.Close()
	}()

	conn.SetPongHandler(func(string) error { return nil })

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			return
		}
	}
}

// run periodically broadcasts the snapshot produced by snapshot() to
// every connected client until ctx is cancelled.
func (h *wsHub) run(ctx context.Context, snapshot func() telemetryFrame) {
	ticker := time.NewTicker(telemetryTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.broadcast(snapshot())
		}
	}
}

func (h *wsHub) broadcast(frame telemetryFrame) {
	hasClients := false
	h.clients.Range(func(_, _ interface{}) bool {
		hasClients = true
		return false
	})
	if !hasClients {
		return
	}

	h.clients.Range(func(key, _ interface{}) bool {
		conn := key.(*websocket.Conn)
		if err := conn.WriteJSON(frame); err != nil {
			conn.Close()
			h.clients.Delete(conn)
		}
		return true
	})
}

// closeAll closes every connected client, used on graceful shutdown.
func (h *wsHub) closeAll() {
	h.clients.Range(func(key, _ interface{}) bool {
		conn := key.(*websocket.Conn)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		h.clients.Delete(conn)
		return true
	})
}
