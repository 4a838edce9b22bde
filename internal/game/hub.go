package game

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

const (
	clientWriteDeadline = 10 * time.Second
	clientSendBuffer    = 64
)

var errClientQueueFull = errors.New("client send queue full")

// Client is one websocket subscriber. A single writer goroutine drains its
// send queue, so frames reach the socket in enqueue order.
type Client struct {
	conn   *websocket.Conn
	userID string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Client) UserID() string { return c.userID }

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// enqueue reports whether the frame was accepted. A full queue drops the
// frame; the client resyncs through the snapshot path.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Send marshals and enqueues one event for this client only, used for the
// reconciliation snapshot and direct command replies.
func (c *Client) Send(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if !c.enqueue(data) {
		return errClientQueueFull
	}
	return nil
}

// Hub fans round events out to subscribed clients. It is strictly a
// downstream observer: a slow or dead client never affects the round, and a
// dropped frame is recovered through the snapshot path, not replay.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	log        *zap.SugaredLogger
	mu         sync.RWMutex
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Infof("[WS] client connected: %s (total: %d)", client.userID, total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				h.log.Infof("[WS] client disconnected: %s (total: %d)", client.userID, len(h.clients))
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				h.log.Errorf("[WS] marshal error: %v", err)
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				if !client.enqueue(data) {
					h.log.Warnf("[WS] dropping %s for slow client %s", event.Type, client.userID)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast enqueues an event for fan-out. Dropping under pressure is
// acceptable: clients resync through the snapshot path.
func (h *Hub) Broadcast(event Event) {
	select {
	case h.broadcast <- event:
	default:
		h.log.Warnf("[WS] broadcast channel full, dropping %s", event.Type)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RegisterClient(conn *websocket.Conn, userID string) *Client {
	client := &Client{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, clientSendBuffer),
		done:   make(chan struct{}),
	}
	go client.writeLoop()
	h.register <- client
	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}
