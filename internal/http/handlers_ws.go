package httpx

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/target/cop-agent/pkg/ws"
	"go.uber.org/zap"
)

// WSHandlers upgrades UI connections onto the hub.
type WSHandlers struct {
	Hub      *ws.Hub
	Upgrader websocket.Upgrader
	Logger   *zap.Logger
}

// NewWSHandlers creates WSHandlers accepting the given origins. An empty list
// accepts same-origin connections only; "*" accepts any origin.
func NewWSHandlers(hub *ws.Hub, origins []string, logger *zap.Logger) *WSHandlers {
	h := &WSHandlers{Hub: hub, Logger: logger}
	if len(origins) > 0 {
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			allowed[o] = true
		}
		h.Upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		}
	}
	return h
}

// Serve upgrades the connection and starts its pumps.
// GET /ws.
func (h *WSHandlers) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.Hub, conn)
	if !client.Register() {
		_ = conn.Close()
		return
	}
	go client.ReadPump()
	go client.WritePump()
}
