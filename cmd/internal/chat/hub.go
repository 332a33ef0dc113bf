package chat

import (
	"log/slog"
	"sync"

	v1 "parley/contracts/chat/v1"
)

// Hub owns the set of connected clients and the per-group broadcast rooms.
// It is the transport-side view of the world; who is online lives in Registry,
// who belongs to a group lives in the GroupStore.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client // connection id -> client
	rooms   map[int64]*Room    // group id -> room
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[string]*Client),
		rooms:   make(map[int64]*Room),
	}
}

// Add registers a connected client for fan-out.
func (h *Hub) Add(client *Client) {
	if h == nil || client == nil || client.ConnID == "" {
		return
	}
	h.mu.Lock()
	h.clients[client.ConnID] = client
	h.mu.Unlock()
}

// Remove detaches a connection from the hub and from every room it joined.
// It returns the removed client, or nil if the connection was unknown.
func (h *Hub) Remove(connID string) *Client {
	if h == nil || connID == "" {
		return nil
	}

	h.mu.Lock()
	client := h.clients[connID]
	delete(h.clients, connID)
	rooms := make([]*Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, room)
	}
	h.mu.Unlock()

	for _, room := range rooms {
		room.Leave(connID)
	}
	return client
}

// Get returns the client for a connection id, or nil.
func (h *Hub) Get(connID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[connID]
}

// Clients returns a snapshot of all connected clients.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Room returns a stable broadcast room handle for a group id, creating it on
// first use. Rooms are addressed by stable numeric group id, never by name.
func (h *Hub) Room(groupID int64) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[groupID]; ok {
		return room
	}
	room := NewRoom(h.log, groupID)
	h.rooms[groupID] = room
	return room
}

// Room is an in-memory membership + broadcast fan-out primitive for one group.
//
// Concurrency guarantees:
// - Join/Leave are safe under concurrent Broadcast.
// - Broadcast never blocks (drops under backpressure).
// - Broadcast is panic-safe because Client.Send is never closed by the server.
type Room struct {
	log     *slog.Logger
	GroupID int64

	mu      sync.RWMutex
	members map[string]*Client
}

// NewRoom constructs a room for a group id.
func NewRoom(log *slog.Logger, groupID int64) *Room {
	return &Room{
		log:     log,
		GroupID: groupID,
		members: make(map[string]*Client),
	}
}

// Join adds a client to the room. Joining twice is a no-op.
func (r *Room) Join(client *Client) {
	if r == nil || client == nil || client.ConnID == "" {
		return
	}

	r.mu.Lock()
	r.members[client.ConnID] = client
	r.mu.Unlock()

	r.log.Info("room.member.join", "group_id", r.GroupID, "conn_id", client.ConnID)
}

// Leave removes a connection from the room. Unknown connections are a no-op.
// The client itself stays alive; room membership and connection lifetime are
// independent.
func (r *Room) Leave(connID string) {
	if r == nil || connID == "" {
		return
	}

	r.mu.Lock()
	_, ok := r.members[connID]
	delete(r.members, connID)
	r.mu.Unlock()

	if ok {
		r.log.Info("room.member.leave", "group_id", r.GroupID, "conn_id", connID)
	}
}

// Contains reports whether a connection is attached to the room.
func (r *Room) Contains(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[connID]
	return ok
}

// Broadcast fans an envelope out to all members.
// Non-blocking: if a member queue is full or the client is shutting down, it is dropped.
func (r *Room) Broadcast(env v1.Envelope) int {
	if r == nil {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, m := range r.members {
		if send(m, env) {
			delivered++
		}
	}
	return delivered
}

// send enqueues an envelope to one client, skipping closing clients and
// dropping rather than blocking when the queue is full.
func send(c *Client, env v1.Envelope) bool {
	if c == nil {
		return false
	}

	select {
	case <-c.Done():
		// Skip clients that are shutting down.
		return false
	default:
	}

	select {
	case c.Send <- env:
		return true
	default:
		dispatchDroppedTotal.Inc()
		return false
	}
}
