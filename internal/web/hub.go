package web

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client represents a WebSocket connection
type Client struct {
	ID   uuid.UUID
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
}

// Hub maintains connected browsers and fans page updates out to them.
// Run only tracks membership; updates are written by publish.
type Hub struct {
	Clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	Mu         sync.RWMutex
	logger     *zap.Logger
	done       chan struct{}
}

// Message is one page update sent to browsers.
type Message struct {
	Type   string    `json:"type"`
	ID     string    `json:"id,omitempty"`
	HTML   string    `json:"html,omitempty"`
	Fields []string  `json:"fields,omitempty"`
	Text   string    `json:"text,omitempty"`
	State  *Snapshot `json:"state,omitempty"`
}

// Message types
const (
	MsgSync      = "sync"
	MsgCountdown = "countdown"
	MsgUnlock    = "unlock"
	MsgClear     = "clear"
	MsgAppend    = "append"
	MsgReplace   = "replace"
	MsgError     = "error"
)

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		Clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		logger:     logger.Named("hub"),
		done:       make(chan struct{}),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.New(),
		Hub:  hub,
		Conn: conn,
		Send: make(chan []byte, 256),
	}
}

// Run starts the hub's message processing loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.Mu.Lock()
			for client := range h.Clients {
				delete(h.Clients, client)
				close(client.Send)
			}
			close(h.done)
			h.Mu.Unlock()
			return

		case client := <-h.Register:
			h.Mu.Lock()
			h.Clients[client] = true
			h.Mu.Unlock()
			h.logger.Debug("Client connected", zap.String("client", client.ID.String()))

		case client := <-h.Unregister:
			h.Mu.Lock()
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				close(client.Send)
			}
			h.Mu.Unlock()
			h.logger.Debug("Client disconnected", zap.String("client", client.ID.String()))
		}
	}
}

// add registers client and queues first ahead of any later broadcast.
func (h *Hub) add(client *Client, first []byte) {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	select {
	case <-h.done:
		close(client.Send)
		return
	default:
	}
	client.Send <- first
	h.Clients[client] = true
	h.logger.Debug("Client connected", zap.String("client", client.ID.String()))
}

func (h *Hub) unregister(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.Mu.RLock()
	defer h.Mu.RUnlock()
	return len(h.Clients)
}

// publish fans msg out to every client before returning, so callers
// holding the page lock deliver updates in page order.
func (h *Hub) publish(msg *Message) {
	message := mustMarshal(msg)
	h.Mu.Lock()
	defer h.Mu.Unlock()
	for client := range h.Clients {
		select {
		case client.Send <- message:
		default:
			// too slow; it resyncs on reconnect
			h.logger.Warn("Dropping slow client", zap.String("client", client.ID.String()))
			close(client.Send)
			delete(h.Clients, client)
		}
	}
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("Failed to marshal", zap.Error(err))
		return []byte("{}")
	}
	return b
}
