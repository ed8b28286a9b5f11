package realtime

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Serve upgrades the request and keeps the connection subscribed to the
// session until the client goes away.  Incoming frames are ignored.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID, userID uint64) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	h.AddConnection(sessionID, userID, conn)
	defer h.RemoveConnection(sessionID, conn)

	conn.SetReadLimit(4096)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}
