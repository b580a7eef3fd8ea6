// Package realtime defines the messaging channel contract the session layer
// is built against, plus the two transports that satisfy it: an in-process
// broker and a websocket client for the relay daemon.
package realtime

import (
	"context"
	"encoding/json"
)

// Status reports channel subscription lifecycle transitions.
type Status string

const (
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusClosed       Status = "CLOSED"
	StatusChannelError Status = "CHANNEL_ERROR"
	StatusTimedOut     Status = "TIMED_OUT"
)

// PresenceState maps a presence key to the payloads tracked under it.
type PresenceState map[string][]json.RawMessage

// BroadcastFunc receives the payload of one named broadcast event.
type BroadcastFunc func(payload json.RawMessage)

// PresenceFunc receives a full presence snapshot.
type PresenceFunc func(state PresenceState)

// StatusFunc observes subscription status transitions.
type StatusFunc func(status Status)

// Channel is one scoped room subscription. Handlers must be registered
// before Subscribe; after Unsubscribe the channel is dead and a fresh one
// must be created to rejoin.
type Channel interface {
	// OnBroadcast registers a handler for a named broadcast event.
	OnBroadcast(event string, fn BroadcastFunc)
	// OnPresenceSync registers a handler for presence snapshots.
	OnPresenceSync(fn PresenceFunc)
	// Subscribe joins the channel. The status callback fires with
	// StatusSubscribed on success and with StatusClosed, StatusChannelError
	// or StatusTimedOut afterwards or on failure. A non-nil error means the
	// caller should degrade to offline mode, never crash.
	Subscribe(ctx context.Context, status StatusFunc) error
	// Track publishes or replaces this client's presence record.
	Track(record any) error
	// Send fans a broadcast out to all current subscribers, self included.
	Send(event string, payload any) error
	// Untrack withdraws this client's presence record.
	Untrack() error
	// Unsubscribe leaves the channel and releases its resources.
	Unsubscribe() error
}

// Factory scopes channels to names. The key identifies this client in
// presence state.
type Factory interface {
	Channel(name, key string) Channel
}
