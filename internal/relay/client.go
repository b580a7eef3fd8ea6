package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"minigames/internal/realtime"
)

const writeTimeout = 10 * time.Second

// client is one websocket connection subscribed to one channel.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	channel string
	key     string

	out       chan realtime.Frame
	closeOnce sync.Once
	done      chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, channel, key string) *client {
	return &client{
		hub:     hub,
		conn:    conn,
		channel: channel,
		key:     key,
		out:     make(chan realtime.Frame, sendBuffer),
		done:    make(chan struct{}),
	}
}

// send queues a frame; a client whose queue is full is dropped instead of
// blocking the room.
func (c *client) send(frame realtime.Frame) {
	select {
	case c.out <- frame:
	case <-c.done:
	default:
		c.hub.logger.Printf("relay: dropping slow client %s on %s", c.key, c.channel)
		c.close()
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
		c.hub.leave(c)
	})
}

// writePump is the single writer on the connection.
func (c *client) writePump() {
	defer c.close()
	for {
		select {
		case frame := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) readPump() {
	defer c.close()
	for {
		var frame realtime.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Type {
		case realtime.FrameTrack:
			c.hub.track(c, frame.Payload)
		case realtime.FrameUntrack:
			c.hub.untrack(c)
		case realtime.FrameBroadcast:
			c.hub.broadcast(c, frame.Event, frame.Payload)
		case realtime.FrameLeave:
			return
		}
	}
}
