package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	ws "github.com/coder/websocket"
)

// Upgrader accepts live tally connections for a topic.
type Upgrader struct {
	hub            *Hub
	originPatterns []string
}

// NewUpgrader restricts cross-origin connections to originPatterns. With no
// patterns only same-origin connections are accepted.
func NewUpgrader(hub *Hub, originPatterns []string) *Upgrader {
	return &Upgrader{hub: hub, originPatterns: originPatterns}
}

// Serve upgrades the request and subscribes it to topic, sending initial
// first when it is non-nil. It blocks until the connection closes.
func (u *Upgrader) Serve(w http.ResponseWriter, r *http.Request, topic string, initial any) {
	// Live connections outlast the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		OriginPatterns: u.originPatterns,
	})
	if err != nil {
		u.hub.logger.Warn("accept websocket", "topic", topic, "error", err)
		return
	}

	client := NewClient(u.hub, conn, topic)
	if initial != nil {
		if data, err := json.Marshal(initial); err == nil {
			client.send <- data
		}
	}
	client.Run(r.Context())
}
