package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const joinAckTimeout = 10 * time.Second

// Dialer creates channels backed by a relay daemon over websocket. One
// connection is opened per channel.
type Dialer struct {
	// URL is the relay websocket endpoint, e.g. ws://localhost:4100/realtime.
	URL string
	// Logger receives connection lifecycle messages; nil means log.Default().
	Logger *log.Logger
}

// Channel returns an unsubscribed websocket channel scoped to name.
func (d *Dialer) Channel(name, key string) Channel {
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &wsChannel{url: d.URL, name: name, key: key, logger: logger}
}

type wsChannel struct {
	url    string
	name   string
	key    string
	logger *log.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	subscribed bool
	closed     bool
	broadcasts map[string][]BroadcastFunc
	presences  []PresenceFunc
	statusFn   StatusFunc
}

func (c *wsChannel) OnBroadcast(event string, fn BroadcastFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broadcasts == nil {
		c.broadcasts = make(map[string][]BroadcastFunc)
	}
	c.broadcasts[event] = append(c.broadcasts[event], fn)
}

func (c *wsChannel) OnPresenceSync(fn PresenceFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presences = append(c.presences, fn)
}

func (c *wsChannel) Subscribe(ctx context.Context, status StatusFunc) error {
	c.mu.Lock()
	c.statusFn = status
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.notify(StatusTimedOut)
		return fmt.Errorf("realtime: dial %s: %w", c.url, err)
	}

	join := Frame{Type: FrameJoin, Channel: c.name, Key: c.key}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		c.notify(StatusChannelError)
		return fmt.Errorf("realtime: join %s: %w", c.name, err)
	}

	// The relay acks the join before any other frame on this connection.
	deadline := time.Now().Add(joinAckTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	var ack Frame
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		c.notify(StatusTimedOut)
		return fmt.Errorf("realtime: join ack %s: %w", c.name, err)
	}
	if ack.Type != FrameJoined {
		conn.Close()
		c.notify(StatusChannelError)
		return fmt.Errorf("realtime: join %s rejected: %s", c.name, ack.Reason)
	}
	conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.conn = conn
	c.subscribed = true
	c.mu.Unlock()

	go c.readLoop(conn)
	c.notify(StatusSubscribed)
	return nil
}

func (c *wsChannel) readLoop(conn *websocket.Conn) {
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			c.mu.Lock()
			wasClosed := c.closed
			c.subscribed = false
			c.mu.Unlock()
			if !wasClosed {
				c.logger.Printf("realtime: channel %s read: %v", c.name, err)
				c.notify(StatusClosed)
			}
			return
		}

		switch frame.Type {
		case FrameBroadcast:
			c.dispatchBroadcast(frame.Event, frame.Payload)
		case FramePresenceState:
			c.dispatchPresence(frame.State)
		case FrameError:
			c.logger.Printf("realtime: channel %s error frame: %s", c.name, frame.Reason)
		}
	}
}

func (c *wsChannel) Track(record any) error {
	raw, err := marshalPayload(record)
	if err != nil {
		return err
	}
	return c.write(Frame{Type: FrameTrack, Payload: raw})
}

func (c *wsChannel) Send(event string, payload any) error {
	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	return c.write(Frame{Type: FrameBroadcast, Event: event, Payload: raw})
}

func (c *wsChannel) Untrack() error {
	return c.write(Frame{Type: FrameUntrack})
}

func (c *wsChannel) Unsubscribe() error {
	c.mu.Lock()
	conn := c.conn
	wasSubscribed := c.subscribed
	c.subscribed = false
	c.closed = true
	c.conn = nil
	c.mu.Unlock()

	if !wasSubscribed || conn == nil {
		return nil
	}
	conn.WriteJSON(Frame{Type: FrameLeave})
	err := conn.Close()
	c.notify(StatusClosed)
	return err
}

// write serializes frame writes; gorilla connections allow one concurrent
// writer only.
func (c *wsChannel) write(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.subscribed || c.conn == nil {
		return ErrNotSubscribed
	}
	return c.conn.WriteJSON(frame)
}

func (c *wsChannel) notify(status Status) {
	c.mu.Lock()
	fn := c.statusFn
	c.mu.Unlock()
	if fn != nil {
		fn(status)
	}
}

func (c *wsChannel) dispatchBroadcast(event string, payload json.RawMessage) {
	c.mu.Lock()
	handlers := append([]BroadcastFunc(nil), c.broadcasts[event]...)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(payload)
	}
}

func (c *wsChannel) dispatchPresence(state PresenceState) {
	c.mu.Lock()
	handlers := append([]PresenceFunc(nil), c.presences...)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(state)
	}
}
