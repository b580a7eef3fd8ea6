package realtime

import (
	"context"
	"encoding/json"
	"testing"
)

func subscribed(t *testing.T, broker *Broker, name, key string) Channel {
	t.Helper()
	ch := broker.Channel(name, key)
	var got Status
	if err := ch.Subscribe(context.Background(), func(s Status) { got = s }); err != nil {
		t.Fatalf("subscribe %s: %v", key, err)
	}
	if got != StatusSubscribed {
		t.Fatalf("expected SUBSCRIBED, got %v", got)
	}
	return ch
}

func TestBroadcastFanOutIncludesSender(t *testing.T) {
	broker := NewBroker()

	var aGot, bGot []string
	a := broker.Channel("room:AAAAA", "a")
	a.OnBroadcast("ping", func(p json.RawMessage) { aGot = append(aGot, string(p)) })
	b := broker.Channel("room:AAAAA", "b")
	b.OnBroadcast("ping", func(p json.RawMessage) { bGot = append(bGot, string(p)) })

	if err := a.Subscribe(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if err := b.Subscribe(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	if err := a.Send("ping", map[string]int{"n": 1}); err != nil {
		t.Fatal(err)
	}

	if len(aGot) != 1 || len(bGot) != 1 {
		t.Fatalf("expected both subscribers to receive, got a=%d b=%d", len(aGot), len(bGot))
	}
}

func TestBroadcastScopedToChannelName(t *testing.T) {
	broker := NewBroker()

	received := 0
	a := broker.Channel("room:AAAAA", "a")
	other := broker.Channel("room:BBBBB", "x")
	other.OnBroadcast("ping", func(json.RawMessage) { received++ })

	a.Subscribe(context.Background(), nil)
	other.Subscribe(context.Background(), nil)

	if err := a.Send("ping", nil); err != nil {
		t.Fatal(err)
	}
	if received != 0 {
		t.Errorf("broadcast leaked across rooms, received=%d", received)
	}
}

func TestPresenceTrackAndUntrack(t *testing.T) {
	broker := NewBroker()

	var last PresenceState
	a := broker.Channel("room:AAAAA", "a")
	a.OnPresenceSync(func(state PresenceState) { last = state })
	subscribedA := a
	if err := subscribedA.Subscribe(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	b := subscribed(t, broker, "room:AAAAA", "b")

	if err := subscribedA.Track(map[string]string{"id": "a"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Track(map[string]string{"id": "b"}); err != nil {
		t.Fatal(err)
	}
	if len(last) != 2 {
		t.Fatalf("expected 2 tracked keys, got %d", len(last))
	}

	if err := b.Untrack(); err != nil {
		t.Fatal(err)
	}
	if len(last) != 1 {
		t.Fatalf("expected 1 tracked key after untrack, got %d", len(last))
	}
	if _, ok := last["a"]; !ok {
		t.Error("remaining presence key should be a")
	}
}

func TestUnsubscribeDropsPresenceAndStopsDelivery(t *testing.T) {
	broker := NewBroker()

	var aState PresenceState
	aReceived := 0
	a := broker.Channel("room:AAAAA", "a")
	a.OnPresenceSync(func(state PresenceState) { aState = state })
	a.OnBroadcast("ping", func(json.RawMessage) { aReceived++ })
	a.Subscribe(context.Background(), nil)
	a.Track(map[string]string{"id": "a"})

	b := subscribed(t, broker, "room:AAAAA", "b")
	b.Track(map[string]string{"id": "b"})

	var bStatus Status
	bChannel := b.(*memoryChannel)
	bChannel.mu.Lock()
	bChannel.statusFn = func(s Status) { bStatus = s }
	bChannel.mu.Unlock()

	if err := b.Unsubscribe(); err != nil {
		t.Fatal(err)
	}
	if bStatus != StatusClosed {
		t.Errorf("expected CLOSED status on unsubscribe, got %v", bStatus)
	}
	if _, ok := aState["b"]; ok {
		t.Error("presence for b should be dropped after unsubscribe")
	}

	a.Send("ping", nil)
	if aReceived != 1 {
		t.Errorf("expected 1 delivery to a, got %d", aReceived)
	}

	// Operations on a dead channel fail cleanly.
	if err := b.Send("ping", nil); err != ErrNotSubscribed {
		t.Errorf("expected ErrNotSubscribed, got %v", err)
	}
}

func TestReentrantSendFromHandler(t *testing.T) {
	broker := NewBroker()

	a := broker.Channel("room:AAAAA", "a")
	var reply json.RawMessage
	a.OnBroadcast("request", func(json.RawMessage) {
		a.Send("response", map[string]bool{"ok": true})
	})
	a.OnBroadcast("response", func(p json.RawMessage) { reply = p })
	a.Subscribe(context.Background(), nil)

	if err := a.Send("request", nil); err != nil {
		t.Fatal(err)
	}
	if reply == nil {
		t.Fatal("handler re-entering Send must not deadlock or drop the reply")
	}
}
