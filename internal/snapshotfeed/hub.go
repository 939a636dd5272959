// Package snapshotfeed broadcasts a "snapshot.updated" event to internal
// subscribers whenever the refresh loop publishes a new Snapshot. It is invoked
// post-publish and is always best-effort: nothing here can block or fail
// the refresh loop.
package snapshotfeed

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/semiotic-ai/network-topology/internal/topology"
)

// UpdateEvent is the payload broadcast to every subscriber on publish.
type UpdateEvent struct {
	RefreshID   string    `json:"refreshId"`
	PublishedAt time.Time `json:"publishedAt"`
	DurationMS  int64     `json:"durationMs"`
	Subgraphs   int       `json:"subgraphs"`
	Deployments int       `json:"deployments"`
	Indexers    int       `json:"indexers"`
}

// Hub manages WebSocket subscribers and broadcasts UpdateEvent to all of
// them. Safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewHub allocates a Hub. There is no separate Run loop: broadcasts happen
// synchronously from Broadcast, keeping this a fire-and-forget notifier
// rather than another stateful goroutine for the refresh loop to manage.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// Broadcast converts a refresh's stats into an UpdateEvent and fans it out
// to every connected subscriber. A slow consumer's message is dropped
// rather than allowed to block the broadcast.
func (h *Hub) Broadcast(refreshID string, stats topology.RefreshStats) {
	evt := UpdateEvent{
		RefreshID:   refreshID,
		PublishedAt: stats.StartedAt.Add(stats.Duration),
		DurationMS:  stats.Duration.Milliseconds(),
		Subgraphs:   stats.Subgraphs,
		Deployments: stats.Deployments,
		Indexers:    stats.Indexers,
	}
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("snapshotfeed: failed to marshal update event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Slow consumer: drop the message.
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades an HTTP GET request into a snapshot-update subscriber.
// This feed carries no sensitive data (counts and durations only), so it
// requires no bearer token.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{id: uuid.New().String(), conn: conn, send: make(chan []byte, 16)}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	c.conn.Close()
}
