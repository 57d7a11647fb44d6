package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/pollinator/api/internal/model"
	"github.com/pollinator/api/pkg/response"
)

// Client represents a WebSocket client
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte

	// set under Hub.mu once Send is closed
	removed bool
}

// Hub maintains active WebSocket connections and fans job status out to them
type Hub struct {
	// Clients grouped by job ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	JobID   string
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
			}
			h.clients[client.JobID][client] = true
			h.mu.Unlock()
			log.Printf("[Hub] client registered for job %s", client.JobID)

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			log.Printf("[Hub] client unregistered from job %s", client.JobID)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.JobID] {
				select {
				case client.Send <- msg.Message:
				default:
					// slow consumer
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with mu held
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.JobID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	client.removed = true
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.JobID)
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Reply queues a message for one client without blocking. It reports false
// once the hub has dropped the client, after which Send is closed.
func (h *Hub) Reply(client *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client.removed {
		return false
	}
	select {
	case client.Send <- data:
	default:
	}
	return true
}

// Watchers returns how many clients follow the job
func (h *Hub) Watchers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[jobID])
}

// Publish sends a status change to every client watching the job.
// A FAILED status is followed by an error message.
func (h *Hub) Publish(ctx context.Context, jobID string, status model.JobStatus) error {
	msg := model.WSStatusMessage{
		Type:   model.WSMessageTypeStatus,
		JobID:  jobID,
		Status: status,
	}
	if err := h.send(ctx, jobID, msg); err != nil {
		return err
	}
	if status == model.JobStatusFailed {
		return h.BroadcastError(ctx, jobID, response.CodeJobFailed, "Job failed")
	}
	return nil
}

// Relay forwards a status event received from the status topic
func (h *Hub) Relay(ev model.StatusEvent) {
	if err := h.Publish(context.Background(), ev.JobID, ev.Status); err != nil {
		log.Printf("[Hub] failed to relay status for job %s: %v", ev.JobID, err)
	}
}

// BroadcastError sends an error message to all job subscribers
func (h *Hub) BroadcastError(ctx context.Context, jobID string, code, message string) error {
	msg := model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		JobID: jobID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	}
	return h.send(ctx, jobID, msg)
}

func (h *Hub) send(ctx context.Context, jobID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- &BroadcastMessage{JobID: jobID, Message: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	client := &Client{
		JobID: jobID,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Hub] websocket error: %v", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			if !h.Reply(client, data) {
				return
			}
		}
	}
}
