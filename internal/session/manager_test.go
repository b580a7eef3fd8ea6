package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"minigames/internal/domain"
	"minigames/internal/realtime"
)

const testSettle = 5 * time.Millisecond

func newTestManager(broker *realtime.Broker) *Manager {
	return NewManager(broker, Options{SettleDelay: testSettle})
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func playerIDs(players []domain.Player) map[string]bool {
	ids := make(map[string]bool, len(players))
	for _, p := range players {
		ids[p.ID] = true
	}
	return ids
}

func TestJoinIsReferenceCounted(t *testing.T) {
	broker := realtime.NewBroker()
	m := newTestManager(broker)
	self := domain.Player{ID: "alice", Name: "Alice"}

	if err := m.Join(context.Background(), "ABCDE", self, true); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if err := m.Join(context.Background(), "abcde", self, false); err != nil {
		t.Fatalf("second join: %v", err)
	}
	if got := m.RefCount(); got != 2 {
		t.Fatalf("refcount = %d, want 2", got)
	}

	m.Leave()
	if !m.Connected() {
		t.Fatal("single leave tore down the connection")
	}
	if got := m.RefCount(); got != 1 {
		t.Fatalf("refcount after one leave = %d, want 1", got)
	}

	m.Leave()
	if m.Connected() {
		t.Fatal("final leave left the connection up")
	}
	if got := m.RoomCode(); got != "" {
		t.Fatalf("room code after teardown = %q, want empty", got)
	}
}

func TestJoinDifferentRoomLeavesFirst(t *testing.T) {
	broker := realtime.NewBroker()
	m := newTestManager(broker)
	self := domain.Player{ID: "alice"}

	if err := m.Join(context.Background(), "AAAAA", self, true); err != nil {
		t.Fatalf("join AAAAA: %v", err)
	}
	if err := m.Join(context.Background(), "BBBBB", self, true); err != nil {
		t.Fatalf("join BBBBB: %v", err)
	}
	if got := m.RoomCode(); got != "BBBBB" {
		t.Fatalf("room code = %q, want BBBBB", got)
	}
	if got := m.RefCount(); got != 1 {
		t.Fatalf("refcount = %d, want 1 after switching rooms", got)
	}
}

func TestPlayerListConverges(t *testing.T) {
	broker := realtime.NewBroker()

	alice := newTestManager(broker)
	if err := alice.Join(context.Background(), "ROOMX", domain.Player{ID: "alice", Name: "Alice"}, true); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	waitFor(t, func() bool { return alice.IsHost() }, "alice never became host")

	bob := newTestManager(broker)
	if err := bob.Join(context.Background(), "ROOMX", domain.Player{ID: "bob", Name: "Bob"}, false); err != nil {
		t.Fatalf("bob join: %v", err)
	}

	for _, m := range []*Manager{alice, bob} {
		m := m
		waitFor(t, func() bool {
			ids := playerIDs(m.Players())
			return ids["alice"] && ids["bob"]
		}, "player lists never converged on both members")
	}
	waitFor(t, func() bool { return bob.HostID() == "alice" }, "bob never learned the host")
}

func TestLateJoinerLearnsHostAndRoom(t *testing.T) {
	broker := realtime.NewBroker()

	alice := newTestManager(broker)
	if err := alice.Join(context.Background(), "ROOMX", domain.Player{ID: "alice"}, true); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	waitFor(t, func() bool { return alice.IsHost() }, "alice never became host")

	// The creator's host_change and room broadcasts happened before anyone
	// else subscribed; a later joiner must still converge on both.
	bob := newTestManager(broker)
	if err := bob.Join(context.Background(), "ROOMX", domain.Player{ID: "bob"}, false); err != nil {
		t.Fatalf("bob join: %v", err)
	}

	waitFor(t, func() bool { return bob.HostID() == "alice" }, "late joiner never learned the host")
	waitFor(t, func() bool { return bob.Room().HostID == "alice" }, "late joiner never received the room record")
	if bob.IsHost() {
		t.Fatal("late joiner claims to be host")
	}
}

func TestLeaveRemovesPlayerFromPeers(t *testing.T) {
	broker := realtime.NewBroker()

	alice := newTestManager(broker)
	if err := alice.Join(context.Background(), "ROOMX", domain.Player{ID: "alice"}, true); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	bob := newTestManager(broker)
	if err := bob.Join(context.Background(), "ROOMX", domain.Player{ID: "bob"}, false); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	waitFor(t, func() bool { return playerIDs(alice.Players())["bob"] }, "alice never saw bob")

	bob.Leave()
	waitFor(t, func() bool { return !playerIDs(alice.Players())["bob"] }, "alice still lists bob after his leave")
}

func TestHostFailoverToLowestID(t *testing.T) {
	broker := realtime.NewBroker()

	host := newTestManager(broker)
	if err := host.Join(context.Background(), "ROOMX", domain.Player{ID: "aaa-host"}, true); err != nil {
		t.Fatalf("host join: %v", err)
	}
	b := newTestManager(broker)
	if err := b.Join(context.Background(), "ROOMX", domain.Player{ID: "bbb"}, false); err != nil {
		t.Fatalf("bbb join: %v", err)
	}
	c := newTestManager(broker)
	if err := c.Join(context.Background(), "ROOMX", domain.Player{ID: "ccc"}, false); err != nil {
		t.Fatalf("ccc join: %v", err)
	}
	waitFor(t, func() bool {
		return len(b.Players()) == 3 && len(c.Players()) == 3
	}, "room never reached three members")

	host.Leave()
	waitFor(t, func() bool { return b.IsHost() }, "bbb never took over as host")
	waitFor(t, func() bool { return c.HostID() == "bbb" }, "ccc never learned the new host")
}

func TestEliminationBroadcastMarksPlayer(t *testing.T) {
	broker := realtime.NewBroker()

	alice := newTestManager(broker)
	if err := alice.Join(context.Background(), "ROOMX", domain.Player{ID: "alice"}, true); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	bob := newTestManager(broker)
	if err := bob.Join(context.Background(), "ROOMX", domain.Player{ID: "bob"}, false); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	waitFor(t, func() bool { return playerIDs(alice.Players())["bob"] }, "alice never saw bob")

	var mu sync.Mutex
	var eliminated []string
	off := alice.On(EventPlayerEliminated, func(ev Event) {
		mu.Lock()
		eliminated = append(eliminated, ev.Payload.(EliminatedPayload).PlayerID)
		mu.Unlock()
	})
	defer off()

	bob.Broadcast(WirePlayerEliminated, EliminatedPayload{PlayerID: "bob"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(eliminated) == 1 && eliminated[0] == "bob"
	}, "alice never received the elimination event")
	waitFor(t, func() bool {
		p, ok := domain.FindPlayer(alice.Players(), "bob")
		return ok && p.IsEliminated
	}, "bob never marked eliminated in alice's list")
}

func TestGameResetClearsRoundState(t *testing.T) {
	broker := realtime.NewBroker()
	m := newTestManager(broker)
	if err := m.Join(context.Background(), "ROOMX", domain.Player{ID: "alice"}, true); err != nil {
		t.Fatalf("join: %v", err)
	}

	m.UpdatePresence(func(p *domain.Player) {
		p.IsEliminated = true
		p.Lane = 4
	})
	m.Broadcast(WireGameReset, GameResetPayload{
		GameState:    domain.PhaseWaiting,
		TimeLeft:     60,
		ResetPlayers: true,
	})

	waitFor(t, func() bool {
		p, ok := domain.FindPlayer(m.Players(), "alice")
		return ok && !p.IsEliminated && p.Lane == 0
	}, "reset never cleared elimination and lane")
	if self := m.Self(); self.IsEliminated || self.Lane != 0 {
		t.Fatalf("self record not reset: %+v", self)
	}
}

type failingFactory struct{}

func (failingFactory) Channel(name, key string) realtime.Channel {
	return failingChannel{}
}

type failingChannel struct{}

func (failingChannel) OnBroadcast(string, realtime.BroadcastFunc) {}
func (failingChannel) OnPresenceSync(realtime.PresenceFunc)       {}
func (failingChannel) Subscribe(context.Context, realtime.StatusFunc) error {
	return errors.New("no transport")
}
func (failingChannel) Track(any) error            { return realtime.ErrNotSubscribed }
func (failingChannel) Send(string, any) error     { return realtime.ErrNotSubscribed }
func (failingChannel) Untrack() error             { return nil }
func (failingChannel) Unsubscribe() error         { return nil }

func TestOfflineFallback(t *testing.T) {
	m := NewManager(failingFactory{}, Options{SettleDelay: testSettle})
	self := domain.Player{ID: "alice", Name: "Alice"}

	if err := m.Join(context.Background(), "ROOMX", self, true); err != nil {
		t.Fatalf("offline join must not error, got %v", err)
	}
	if m.Connected() {
		t.Fatal("manager claims to be connected without a transport")
	}
	if !playerIDs(m.Players())["alice"] {
		t.Fatal("self missing from offline player list")
	}
	if m.HostID() != "alice" {
		t.Fatalf("offline creator host = %q, want alice", m.HostID())
	}

	// Gameplay calls must stay safe offline.
	m.UpdatePresence(func(p *domain.Player) { p.X = 1 })
	m.Broadcast(WireGameStateChanged, GameStatePayload{GameState: domain.PhasePlaying})
	m.Leave()
}

func TestListenerOffStopsDelivery(t *testing.T) {
	broker := realtime.NewBroker()
	m := newTestManager(broker)
	if err := m.Join(context.Background(), "ROOMX", domain.Player{ID: "alice"}, false); err != nil {
		t.Fatalf("join: %v", err)
	}

	var mu sync.Mutex
	count := 0
	off := m.On(EventRopeChanged, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	m.Broadcast(WireRopeChanged, RopePayload{RopePosition: domain.RopeLeft})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, "listener never fired")

	off()
	m.Broadcast(WireRopeChanged, RopePayload{RopePosition: domain.RopeRight})
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("listener fired after removal, count = %d", count)
	}
}
