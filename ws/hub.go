package ws

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Conn is the subset of the websocket connection the hub writes to.
// *websocket.Conn from gofiber/contrib satisfies it; tests use fakes.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type client struct {
	id   string
	conn Conn
	mu   sync.Mutex // websocket writes are not concurrency-safe
}

func (c *client) send(event string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(Envelope{Event: event, Data: payload})
}

// Hub tracks one live connection per user and the per-session
// broadcast groups. Sends that fail are logged and dropped; the
// presence tracker hears about dead connections through the read
// loop's disconnect callback, not from here.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client         // userID → connection
	rooms   map[string]map[string]bool // sessionID → set of userIDs
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]bool),
	}
}

// Register associates a connection with a user and returns the
// connection id. A second connection for the same user replaces the
// first (the old socket is closed).
func (h *Hub) Register(userID string, conn Conn) string {
	c := &client{id: uuid.NewString(), conn: conn}

	h.mu.Lock()
	old := h.clients[userID]
	h.clients[userID] = c
	h.mu.Unlock()

	if old != nil {
		old.conn.Close()
	}
	return c.id
}

// Unregister drops the user's connection, but only if it is still the
// one identified by connID — a reconnect may already have replaced it.
func (h *Hub) Unregister(userID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[userID]; ok && c.id == connID {
		delete(h.clients, userID)
	}
}

// ConnectionID returns the id of the user's live connection, or "".
func (h *Hub) ConnectionID(userID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[userID]; ok {
		return c.id
	}
	return ""
}

func (h *Hub) AddToSession(sessionID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[string]bool)
		h.rooms[sessionID] = room
	}
	room[userID] = true
}

func (h *Hub) RemoveFromSession(sessionID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[sessionID]; ok {
		delete(room, userID)
		if len(room) == 0 {
			delete(h.rooms, sessionID)
		}
	}
}

// DropSession removes the whole broadcast group (archived sessions).
func (h *Hub) DropSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, sessionID)
}

func (h *Hub) NotifyUser(userID, event string, payload interface{}) {
	h.mu.RLock()
	c := h.clients[userID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	if err := c.send(event, payload); err != nil {
		log.Printf("[WS] send %s to %s failed: %v", event, userID, err)
	}
}

func (h *Hub) NotifySession(sessionID, event string, payload interface{}) {
	h.notifyRoom(sessionID, "", event, payload)
}

func (h *Hub) NotifySessionExcept(sessionID, exceptUserID, event string, payload interface{}) {
	h.notifyRoom(sessionID, exceptUserID, event, payload)
}

func (h *Hub) notifyRoom(sessionID, exceptUserID, event string, payload interface{}) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[sessionID]))
	var users []string
	for userID := range h.rooms[sessionID] {
		if userID == exceptUserID {
			continue
		}
		if c, ok := h.clients[userID]; ok {
			targets = append(targets, c)
			users = append(users, userID)
		}
	}
	h.mu.RUnlock()

	for i, c := range targets {
		if err := c.send(event, payload); err != nil {
			log.Printf("[WS] broadcast %s to %s failed: %v", event, users[i], err)
		}
	}
}
