package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Broadcaster fans notification events out to subscribed websocket clients.
type Broadcaster struct {
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	seq     int64
}

// NewBroadcaster creates a broadcaster.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		logger:  logger,
		clients: make(map[*websocket.Conn]bool),
	}
}

// Add registers a client connection.
func (b *Broadcaster) Add(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[conn] = true
}

// Remove unregisters a client connection.
func (b *Broadcaster) Remove(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, conn)
}

// Count returns the number of subscribed clients.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Broadcast sends an event to every subscribed client. Clients whose write
// fails are dropped.
func (b *Broadcaster) Broadcast(event string, data map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	msg := EventMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Seq:       b.seq,
	}

	for conn := range b.clients {
		if err := conn.WriteJSON(msg); err != nil {
			b.logger.Debug().Err(err).Str("event", event).Msg("Dropping broadcast client")
			conn.Close()
			delete(b.clients, conn)
		}
	}
}

// CloseAll closes every subscribed client connection.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		conn.Close()
		delete(b.clients, conn)
	}
}
