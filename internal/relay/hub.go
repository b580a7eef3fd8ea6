// Package relay implements the standalone fan-out daemon behind the
// websocket transport: named channels, presence tracking, and broadcast
// delivery to every current subscriber.
package relay

import (
	"encoding/json"
	"log"
	"sync"

	"minigames/internal/realtime"
)

// sendBuffer is the per-client outbound queue. A client that cannot drain
// it is dropped rather than allowed to stall the whole room.
const sendBuffer = 64

// Hub owns every live channel and its subscribers.
type Hub struct {
	logger *log.Logger

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	clients  map[*client]struct{}
	presence map[string]json.RawMessage
}

// NewHub builds an empty hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		logger: logger,
		rooms:  make(map[string]*room),
	}
}

// RoomCount returns the number of live channels.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// RoomSize returns how many clients are subscribed to the named channel.
func (h *Hub) RoomSize(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[channel]; ok {
		return len(r.clients)
	}
	return 0
}

func (h *Hub) join(c *client) {
	h.mu.Lock()
	r, ok := h.rooms[c.channel]
	if !ok {
		r = &room{
			clients:  make(map[*client]struct{}),
			presence: make(map[string]json.RawMessage),
		}
		h.rooms[c.channel] = r
	}
	r.clients[c] = struct{}{}
	state := r.presenceSnapshotLocked()
	h.mu.Unlock()

	c.send(realtime.Frame{Type: realtime.FrameJoined, Channel: c.channel})
	c.send(realtime.Frame{Type: realtime.FramePresenceState, State: state})
	h.logger.Printf("relay: %s joined %s", c.key, c.channel)
}

// leave removes the client and its presence record, notifies the remaining
// subscribers, and garbage-collects the room when it empties.
func (h *Hub) leave(c *client) {
	h.mu.Lock()
	r, ok := h.rooms[c.channel]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, subscribed := r.clients[c]; !subscribed {
		h.mu.Unlock()
		return
	}
	delete(r.clients, c)
	_, tracked := r.presence[c.key]
	delete(r.presence, c.key)
	if len(r.clients) == 0 {
		delete(h.rooms, c.channel)
		h.mu.Unlock()
		h.logger.Printf("relay: room %s closed", c.channel)
		return
	}
	targets, state := r.snapshotLocked()
	h.mu.Unlock()

	if tracked {
		deliver(targets, realtime.Frame{Type: realtime.FramePresenceState, State: state})
	}
}

func (h *Hub) track(c *client, record json.RawMessage) {
	h.mu.Lock()
	r, ok := h.rooms[c.channel]
	if !ok {
		h.mu.Unlock()
		return
	}
	r.presence[c.key] = record
	targets, state := r.snapshotLocked()
	h.mu.Unlock()

	deliver(targets, realtime.Frame{Type: realtime.FramePresenceState, State: state})
}

func (h *Hub) untrack(c *client) {
	h.mu.Lock()
	r, ok := h.rooms[c.channel]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(r.presence, c.key)
	targets, state := r.snapshotLocked()
	h.mu.Unlock()

	deliver(targets, realtime.Frame{Type: realtime.FramePresenceState, State: state})
}

// broadcast fans the event out to every subscriber, the sender included, so
// channel semantics match what game code expects from self-delivery.
func (h *Hub) broadcast(c *client, event string, payload json.RawMessage) {
	h.mu.Lock()
	r, ok := h.rooms[c.channel]
	if !ok {
		h.mu.Unlock()
		return
	}
	targets, _ := r.snapshotLocked()
	h.mu.Unlock()

	deliver(targets, realtime.Frame{
		Type:    realtime.FrameBroadcast,
		Event:   event,
		Payload: payload,
	})
}

func (r *room) presenceSnapshotLocked() realtime.PresenceState {
	state := make(realtime.PresenceState, len(r.presence))
	for key, record := range r.presence {
		state[key] = []json.RawMessage{record}
	}
	return state
}

func (r *room) snapshotLocked() ([]*client, realtime.PresenceState) {
	targets := make([]*client, 0, len(r.clients))
	for c := range r.clients {
		targets = append(targets, c)
	}
	return targets, r.presenceSnapshotLocked()
}

func deliver(targets []*client, frame realtime.Frame) {
	for _, c := range targets {
		c.send(frame)
	}
}
