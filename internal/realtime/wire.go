package realtime

import "encoding/json"

// Frame is the unit of the relay wire protocol, JSON-encoded over one
// websocket connection per channel.
type Frame struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Key     string          `json:"key,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	State   PresenceState   `json:"state,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

// Frame types spoken between the websocket client and the relay.
const (
	// client -> relay
	FrameJoin      = "join"
	FrameTrack     = "track"
	FrameUntrack   = "untrack"
	FrameBroadcast = "broadcast"
	FrameLeave     = "leave"

	// relay -> client
	FrameJoined        = "joined"
	FramePresenceState = "presence_state"
	FrameError         = "error"
)
