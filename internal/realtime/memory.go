package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrNotSubscribed is returned for operations on a channel that is not
// currently subscribed.
var ErrNotSubscribed = errors.New("realtime: channel not subscribed")

// Broker is an in-process channel factory. Every channel created for the
// same name shares one room: broadcasts fan out to all subscribers
// (including the sender) and presence tracking is merged per key. It backs
// tests and single-process play.
type Broker struct {
	mu    sync.Mutex
	rooms map[string]*memoryRoom
}

type memoryRoom struct {
	subscribers map[*memoryChannel]struct{}
	presence    map[string]json.RawMessage
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{rooms: make(map[string]*memoryRoom)}
}

// Channel returns a fresh, unsubscribed channel scoped to name.
func (b *Broker) Channel(name, key string) Channel {
	return &memoryChannel{broker: b, name: name, key: key}
}

func (b *Broker) room(name string) *memoryRoom {
	room, ok := b.rooms[name]
	if !ok {
		room = &memoryRoom{
			subscribers: make(map[*memoryChannel]struct{}),
			presence:    make(map[string]json.RawMessage),
		}
		b.rooms[name] = room
	}
	return room
}

// subscribe registers the channel and returns nothing to deliver yet;
// presence snapshots flow through track/untrack.
func (b *Broker) subscribe(ch *memoryChannel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.room(ch.name).subscribers[ch] = struct{}{}
}

func (b *Broker) unsubscribe(ch *memoryChannel) {
	b.mu.Lock()
	room, ok := b.rooms[ch.name]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(room.subscribers, ch)
	delete(room.presence, ch.key)
	empty := len(room.subscribers) == 0
	if empty {
		delete(b.rooms, ch.name)
	}
	targets, state := room.snapshotLocked()
	b.mu.Unlock()

	if !empty {
		deliverPresence(targets, state)
	}
}

func (b *Broker) track(ch *memoryChannel, record json.RawMessage) {
	b.mu.Lock()
	room := b.room(ch.name)
	room.presence[ch.key] = record
	targets, state := room.snapshotLocked()
	b.mu.Unlock()

	deliverPresence(targets, state)
}

func (b *Broker) untrack(ch *memoryChannel) {
	b.mu.Lock()
	room, ok := b.rooms[ch.name]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(room.presence, ch.key)
	targets, state := room.snapshotLocked()
	b.mu.Unlock()

	deliverPresence(targets, state)
}

func (b *Broker) broadcast(ch *memoryChannel, event string, payload json.RawMessage) {
	b.mu.Lock()
	room, ok := b.rooms[ch.name]
	if !ok {
		b.mu.Unlock()
		return
	}
	targets := make([]*memoryChannel, 0, len(room.subscribers))
	for sub := range room.subscribers {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	// Handlers run outside the broker lock so they may re-enter Send.
	for _, target := range targets {
		target.dispatchBroadcast(event, payload)
	}
}

func (r *memoryRoom) snapshotLocked() ([]*memoryChannel, PresenceState) {
	targets := make([]*memoryChannel, 0, len(r.subscribers))
	for sub := range r.subscribers {
		targets = append(targets, sub)
	}
	state := make(PresenceState, len(r.presence))
	for key, record := range r.presence {
		state[key] = []json.RawMessage{record}
	}
	return targets, state
}

func deliverPresence(targets []*memoryChannel, state PresenceState) {
	for _, target := range targets {
		target.dispatchPresence(state)
	}
}

type memoryChannel struct {
	broker *Broker
	name   string
	key    string

	mu         sync.Mutex
	subscribed bool
	broadcasts map[string][]BroadcastFunc
	presences  []PresenceFunc
	statusFn   StatusFunc
}

func (c *memoryChannel) OnBroadcast(event string, fn BroadcastFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broadcasts == nil {
		c.broadcasts = make(map[string][]BroadcastFunc)
	}
	c.broadcasts[event] = append(c.broadcasts[event], fn)
}

func (c *memoryChannel) OnPresenceSync(fn PresenceFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presences = append(c.presences, fn)
}

func (c *memoryChannel) Subscribe(_ context.Context, status StatusFunc) error {
	c.mu.Lock()
	c.subscribed = true
	c.statusFn = status
	c.mu.Unlock()

	c.broker.subscribe(c)
	if status != nil {
		status(StatusSubscribed)
	}
	return nil
}

func (c *memoryChannel) Track(record any) error {
	raw, err := marshalPayload(record)
	if err != nil {
		return err
	}
	if !c.isSubscribed() {
		return ErrNotSubscribed
	}
	c.broker.track(c, raw)
	return nil
}

func (c *memoryChannel) Send(event string, payload any) error {
	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	if !c.isSubscribed() {
		return ErrNotSubscribed
	}
	c.broker.broadcast(c, event, raw)
	return nil
}

func (c *memoryChannel) Untrack() error {
	if !c.isSubscribed() {
		return ErrNotSubscribed
	}
	c.broker.untrack(c)
	return nil
}

func (c *memoryChannel) Unsubscribe() error {
	c.mu.Lock()
	wasSubscribed := c.subscribed
	c.subscribed = false
	status := c.statusFn
	c.mu.Unlock()

	if !wasSubscribed {
		return nil
	}
	c.broker.unsubscribe(c)
	if status != nil {
		status(StatusClosed)
	}
	return nil
}

func (c *memoryChannel) isSubscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

func (c *memoryChannel) dispatchBroadcast(event string, payload json.RawMessage) {
	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return
	}
	handlers := append([]BroadcastFunc(nil), c.broadcasts[event]...)
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(payload)
	}
}

func (c *memoryChannel) dispatchPresence(state PresenceState) {
	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return
	}
	handlers := append([]PresenceFunc(nil), c.presences...)
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(state)
	}
}

func marshalPayload(payload any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("realtime: marshal payload: %w", err)
	}
	return raw, nil
}
