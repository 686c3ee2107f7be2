// Package websocket fans script logs, task updates and monitor statuses out
// to connected clients.
package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"colorbot/internal/task"
)

const (
	sendBuffer   = 256
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

type Hub struct {
	connections map[*Connection]bool
	register    chan *Connection
	unregister  chan *Connection
	broadcast   chan []byte
	done        chan struct{}
	mutex       sync.RWMutex
	upgrader    websocket.Upgrader
}

type Connection struct {
	conn   *websocket.Conn
	send   chan []byte
	mutex  sync.Mutex
	closed bool
}

func NewHub() *Hub {
	return &Hub{
		connections: make(map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Run dispatches messages until ctx ends, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for conn := range h.connections {
				delete(h.connections, conn)
				conn.close()
			}
			h.mutex.Unlock()
			return

		case conn := <-h.register:
			h.mutex.Lock()
			h.connections[conn] = true
			h.mutex.Unlock()

		case conn := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				conn.close()
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.RLock()
			for conn := range h.connections {
				select {
				case conn.send <- message:
				default:
				}
			}
			h.mutex.RUnlock()
		}
	}
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.connections)
}

func (c *Connection) close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	c.conn.Close()
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	connection := &Connection{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	select {
	case h.register <- connection:
	case <-h.done:
		conn.Close()
		return
	}

	go connection.writeLoop()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			select {
			case h.unregister <- connection:
			case <-h.done:
			}
			return
		}
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mutex.Unlock()
			if err != nil {
				return
			}
		case message, ok := <-c.send:
			if !ok {
				return
			}
			c.mutex.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.TextMessage, message)
			c.mutex.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Broadcast queues v for every client. Messages are dropped when the queue
// is full.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("websocket: failed to marshal message: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

func (h *Hub) SendLog(line string) {
	h.Broadcast(map[string]any{
		"type": "log",
		"data": line,
	})
}

func (h *Hub) SendTaskUpdate(update task.TaskUpdate) {
	h.Broadcast(update)
}

func (h *Hub) SendMonitorStatus(status string) {
	h.Broadcast(map[string]any{
		"type": "monitorStatus",
		"data": status,
	})
}
