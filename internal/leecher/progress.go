package leecher

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// ProgressUpdate is broadcast to every subscriber each time a chunk
// completes. Completed is monotonically non-decreasing for a given
// download, per §4.4's progress-reporting requirement.
type ProgressUpdate struct {
	FileName  string `json:"file_name"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// ProgressBroadcaster fans a download's progress out to any number of
// WebSocket subscribers through a register/unregister/broadcast channel
// triad run by a single event loop.
type ProgressBroadcaster struct {
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]chan []byte

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	stop       chan struct{}
}

// NewProgressBroadcaster returns a broadcaster; call Run in its own
// goroutine before subscribing or publishing.
func NewProgressBroadcaster() *ProgressBroadcaster {
	return &ProgressBroadcaster{
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:    make(map[*websocket.Conn]chan []byte),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan []byte, 256),
		stop:       make(chan struct{}),
	}
}

// Run is the broadcaster's event loop; it returns when Stop is called.
func (b *ProgressBroadcaster) Run() {
	for {
		select {
		case conn := <-b.register:
			b.clientsMu.Lock()
			b.clients[conn] = make(chan []byte, 16)
			send := b.clients[conn]
			b.clientsMu.Unlock()
			go b.writeLoop(conn, send)

		case conn := <-b.unregister:
			b.clientsMu.Lock()
			if send, ok := b.clients[conn]; ok {
				delete(b.clients, conn)
				close(send)
			}
			b.clientsMu.Unlock()

		case msg := <-b.broadcast:
			b.clientsMu.RLock()
			for conn, send := range b.clients {
				select {
				case send <- msg:
				default:
					go func(c *websocket.Conn) { b.unregister <- c }(conn)
				}
			}
			b.clientsMu.RUnlock()

		case <-b.stop:
			return
		}
	}
}

// Stop shuts the event loop down.
func (b *ProgressBroadcaster) Stop() {
	close(b.stop)
}

// Publish broadcasts an update to every current subscriber.
func (b *ProgressBroadcaster) Publish(update ProgressUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		log.Printf("[leecher] marshal progress update: %v", err)
		return
	}
	select {
	case b.broadcast <- data:
	default:
		log.Printf("[leecher] progress broadcast buffer full, dropping update")
	}
}

// ServeHTTP upgrades a request to a WebSocket subscription and streams
// progress updates until the client disconnects.
func (b *ProgressBroadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[leecher] progress upgrade: %v", err)
		return
	}
	b.register <- conn
	go b.readLoop(conn)
}

func (b *ProgressBroadcaster) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			b.unregister <- conn
			return
		}
	}
}

func (b *ProgressBroadcaster) writeLoop(conn *websocket.Conn, send chan []byte) {
	for msg := range send {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			b.unregister <- conn
			return
		}
	}
	conn.Close()
}
