package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

const TypeVoteTally = "vote_tally"

// TallyMessage is pushed to live viewers of an A/B test after each vote.
type TallyMessage struct {
	Type      string `json:"type"`
	ShareCode string `json:"shareCode"`
	VotesA    int64  `json:"votesA"`
	VotesB    int64  `json:"votesB"`
}

func NewTallyMessage(shareCode string, votesA, votesB int64) TallyMessage {
	return TallyMessage{
		Type:      TypeVoteTally,
		ShareCode: shareCode,
		VotesA:    votesA,
		VotesB:    votesB,
	}
}

// Hub tracks connected clients per topic and fans messages out to them.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Client]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[*Client]struct{}),
		logger: logger.With("component", "websocket"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	clients, ok := h.topics[c.topic]
	if !ok {
		clients = make(map[*Client]struct{})
		h.topics[c.topic] = clients
	}
	clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from its topic and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if clients, ok := h.topics[c.topic]; ok {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			close(c.send)
		}
		if len(clients) == 0 {
			delete(h.topics, c.topic)
		}
	}
	h.mu.Unlock()
}

// Broadcast sends msg to every client subscribed to topic.
func (h *Hub) Broadcast(topic string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "topic", topic, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.topics[topic] {
		select {
		case c.send <- data:
		default:
			// buffer full, drop
		}
	}
}

// PublishTally satisfies the voting ledger's publisher.
func (h *Hub) PublishTally(shareCode string, votesA, votesB int64) {
	h.Broadcast(shareCode, NewTallyMessage(shareCode, votesA, votesB))
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.topics {
		n += len(clients)
	}
	return n
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
