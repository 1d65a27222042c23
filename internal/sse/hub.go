// Package sse fans session events out to the live event streams of the
// clients they concern.
package sse

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/google/uuid"
)

type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type SessionChangedEvent struct {
	UserID *uuid.UUID `json:"user_id,omitempty"`
	At     time.Time  `json:"at"`
}

// Client is one open event stream. Several streams may share a ClientID
// when a browser has more than one tab open.
type Client struct {
	ID       string
	ClientID string
	UserID   uuid.UUID
	Send     chan []byte
}

type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *SessionMessage
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
}

// SessionMessage addresses an event to the streams of one client, or to
// every stream of a user when ClientID is empty.
type SessionMessage struct {
	ClientID string
	UserID   uuid.UUID
	Kind     models.SessionEventType
	Event    Event
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *SessionMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and deliveries until Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-h.done:
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.Send)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) deliver(msg *SessionMessage) {
	data, err := json.Marshal(msg.Event)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.clients {
		if msg.ClientID != "" {
			if client.ClientID != msg.ClientID {
				continue
			}
			switch msg.Kind {
			case models.EventSignedIn, models.EventTokenRefreshed:
				client.UserID = msg.UserID
			case models.EventSignedOut:
				client.UserID = uuid.Nil
			}
		} else if msg.UserID == uuid.Nil || client.UserID != msg.UserID {
			continue
		}
		select {
		case client.Send <- data:
		default:
			// Client buffer full, skip
		}
	}
}

// Stop ends Run and closes every open stream.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues a session event for delivery. Events published after Stop
// are dropped.
func (h *Hub) Publish(evt models.SessionEvent) {
	data := SessionChangedEvent{At: evt.At}
	if evt.UserID != uuid.Nil && evt.Type != models.EventSignedOut {
		id := evt.UserID
		data.UserID = &id
	}
	msg := &SessionMessage{
		ClientID: evt.ClientID,
		UserID:   evt.UserID,
		Kind:     evt.Type,
		Event:    Event{Type: string(evt.Type), Data: data},
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
