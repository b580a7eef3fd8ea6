// Package session owns one logical room membership per process: who is in
// the room, who the host is, and the typed event bus everything else
// consumes. It sits between the realtime channel and all game logic.
package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"minigames/internal/domain"
	"minigames/internal/realtime"
)

const (
	defaultSettleDelay      = 200 * time.Millisecond
	defaultSubscribeTimeout = 10 * time.Second
)

// Options tune a Manager. Zero values select defaults.
type Options struct {
	// SettleDelay is how long to wait after a successful subscribe before
	// broadcasting player_join and request_player_list, giving the channel
	// time to settle.
	SettleDelay time.Duration
	// SubscribeTimeout bounds the join handshake before degrading to
	// offline mode.
	SubscribeTimeout time.Duration
	Logger           *log.Logger
}

// Manager is the single source of truth, per process, for room membership.
// It de-duplicates local subscribers via reference counting and reconciles
// the player list from presence sync and explicit broadcasts combined.
type Manager struct {
	factory          realtime.Factory
	logger           *log.Logger
	settleDelay      time.Duration
	subscribeTimeout time.Duration

	mu         sync.Mutex
	channel    realtime.Channel
	roomCode   string
	refCount   int
	subscribed bool
	generation uint64
	self       domain.Player
	players    []domain.Player
	room       domain.Room
	hostID     string

	listenerMu sync.Mutex
	nextToken  int
	listeners  map[EventType]map[int]func(Event)
}

// NewManager builds a Manager over the given channel factory.
func NewManager(factory realtime.Factory, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	settle := opts.SettleDelay
	if settle == 0 {
		settle = defaultSettleDelay
	}
	timeout := opts.SubscribeTimeout
	if timeout == 0 {
		timeout = defaultSubscribeTimeout
	}
	return &Manager{
		factory:          factory,
		logger:           logger,
		settleDelay:      settle,
		subscribeTimeout: timeout,
		listeners:        make(map[EventType]map[int]func(Event)),
	}
}

// On registers a listener for one event type and returns its removal
// function.
func (m *Manager) On(t EventType, fn func(Event)) (off func()) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	if m.listeners[t] == nil {
		m.listeners[t] = make(map[int]func(Event))
	}
	token := m.nextToken
	m.nextToken++
	m.listeners[t][token] = fn
	return func() {
		m.listenerMu.Lock()
		defer m.listenerMu.Unlock()
		delete(m.listeners[t], token)
	}
}

func (m *Manager) emit(t EventType, payload any) {
	m.listenerMu.Lock()
	handlers := make([]func(Event), 0, len(m.listeners[t]))
	for _, fn := range m.listeners[t] {
		handlers = append(handlers, fn)
	}
	m.listenerMu.Unlock()

	ev := Event{Type: t, Payload: payload}
	for _, fn := range handlers {
		fn(ev)
	}
}

// Join subscribes to the room named by code. Re-joining the same room only
// increments the reference count. Joining a different room performs a full
// leave first. A channel that cannot be subscribed degrades to offline mode:
// self stays in the local player list and the method still returns nil.
func (m *Manager) Join(ctx context.Context, code string, self domain.Player, isCreator bool) error {
	code = domain.NormalizeRoomCode(code)

	m.mu.Lock()
	if m.refCount > 0 && m.roomCode == code {
		m.refCount++
		count := m.refCount
		m.mu.Unlock()
		m.logger.Printf("session: reusing connection to %s, refcount %d", code, count)
		return nil
	}
	if m.refCount > 0 {
		old, oldSelfID, announce := m.teardownLocked()
		m.mu.Unlock()
		m.closeChannel(old, oldSelfID, announce)
		m.mu.Lock()
	}

	m.roomCode = code
	m.refCount = 1
	m.self = self
	m.players = nil
	m.hostID = ""
	m.room = domain.Room{Code: code}
	m.generation++
	gen := m.generation

	channel := m.factory.Channel("room:"+code, self.ID)
	m.channel = channel
	m.mu.Unlock()

	m.registerHandlers(channel, gen)

	subCtx, cancel := context.WithTimeout(ctx, m.subscribeTimeout)
	defer cancel()
	err := channel.Subscribe(subCtx, func(status realtime.Status) {
		switch status {
		case realtime.StatusClosed:
			m.mu.Lock()
			if m.generation == gen {
				m.subscribed = false
			}
			m.mu.Unlock()
		case realtime.StatusChannelError, realtime.StatusTimedOut:
			m.logger.Printf("session: channel %s status %s", code, status)
		}
	})
	if err != nil {
		// Offline single-player mode: keep self in the list so gameplay
		// continues locally.
		m.logger.Printf("session: subscribe %s failed, running offline: %v", code, err)
		m.mu.Lock()
		m.subscribed = false
		m.players = domain.UpsertPlayer(m.players, self)
		if isCreator || m.hostID == "" {
			m.hostID = self.ID
		}
		snapshot := m.playersSnapshotLocked()
		m.mu.Unlock()
		m.emit(EventPlayersUpdated, snapshot)
		return nil
	}

	m.mu.Lock()
	m.subscribed = true
	m.players = domain.UpsertPlayer(m.players, self)
	snapshot := m.playersSnapshotLocked()
	m.mu.Unlock()

	if err := channel.Track(self); err != nil {
		m.logger.Printf("session: track self: %v", err)
	}
	m.emit(EventPlayersUpdated, snapshot)

	if isCreator {
		m.assumeHost(self.ID, domain.Room{
			Code:      code,
			HostID:    self.ID,
			CreatedAt: time.Now().UnixMilli(),
			GameType:  domain.GameRedLightGreenLight,
		})
	}

	// Give the subscription a moment to settle before announcing ourselves
	// and asking existing members for their view of the room.
	time.AfterFunc(m.settleDelay, func() {
		m.mu.Lock()
		stale := m.generation != gen || !m.subscribed
		ch := m.channel
		m.mu.Unlock()
		if stale || ch == nil {
			return
		}
		if err := ch.Send(WirePlayerJoin, self); err != nil {
			m.logger.Printf("session: announce join: %v", err)
		}
		if err := ch.Send(WireRequestPlayerList, PlayerListRequest{RequesterID: self.ID}); err != nil {
			m.logger.Printf("session: request player list: %v", err)
		}
	})

	return nil
}

// Leave decrements the reference count and tears the connection down only
// when it reaches zero, so one screen transition cannot take the connection
// away from the next screen.
func (m *Manager) Leave() {
	m.mu.Lock()
	if m.refCount == 0 {
		m.mu.Unlock()
		return
	}
	m.refCount--
	if m.refCount > 0 {
		count := m.refCount
		m.mu.Unlock()
		m.logger.Printf("session: other subscribers still attached, refcount %d", count)
		return
	}
	channel, selfID, announce := m.teardownLocked()
	m.mu.Unlock()
	m.closeChannel(channel, selfID, announce)
}

// teardownLocked clears room state and hands the channel back for closing.
// Callers hold m.mu; the returned channel must be closed via closeChannel
// after releasing the lock, because broadcasts deliver back to the sender
// synchronously.
func (m *Manager) teardownLocked() (realtime.Channel, string, bool) {
	channel := m.channel
	selfID := m.self.ID
	subscribed := m.subscribed

	m.generation++
	m.channel = nil
	m.roomCode = ""
	m.refCount = 0
	m.subscribed = false
	m.players = nil
	m.hostID = ""
	m.room = domain.Room{}

	return channel, selfID, subscribed
}

func (m *Manager) closeChannel(channel realtime.Channel, selfID string, announce bool) {
	if channel == nil || !announce {
		return
	}
	if err := channel.Send(WirePlayerLeave, PlayerLeavePayload{PlayerID: selfID}); err != nil {
		m.logger.Printf("session: announce leave: %v", err)
	}
	channel.Untrack()
	channel.Unsubscribe()
}

// UpdatePresence merges fields into the self record via mutate, re-tracks
// it on the channel and upserts it into the local list immediately.
func (m *Manager) UpdatePresence(mutate func(*domain.Player)) {
	m.mu.Lock()
	if m.refCount == 0 {
		m.mu.Unlock()
		return
	}
	mutate(&m.self)
	m.self.UpdatedAt = time.Now().UnixMilli()
	self := m.self
	m.players = domain.UpsertPlayer(m.players, self)
	channel := m.channel
	subscribed := m.subscribed
	snapshot := m.playersSnapshotLocked()
	m.mu.Unlock()

	if subscribed && channel != nil {
		if err := channel.Track(self); err != nil {
			m.logger.Printf("session: track: %v", err)
		}
	}
	m.emit(EventPlayersUpdated, snapshot)
}

// Broadcast is a fire-and-forget send; it is a no-op when not subscribed.
func (m *Manager) Broadcast(event string, payload any) {
	m.mu.Lock()
	channel := m.channel
	subscribed := m.subscribed
	m.mu.Unlock()
	if !subscribed || channel == nil {
		return
	}
	if err := channel.Send(event, payload); err != nil {
		m.logger.Printf("session: broadcast %s: %v", event, err)
	}
}

// Players returns a copy of the current player list.
func (m *Manager) Players() []domain.Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playersSnapshotLocked()
}

func (m *Manager) playersSnapshotLocked() []domain.Player {
	return append([]domain.Player(nil), m.players...)
}

// SelfID returns the local client identifier.
func (m *Manager) SelfID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.self.ID
}

// Self returns the local presence record.
func (m *Manager) Self() domain.Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.self
}

// IsHost reports whether this instance currently holds game-phase
// authority.
func (m *Manager) IsHost() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hostID != "" && m.hostID == m.self.ID
}

// HostID returns the announced host identifier, or "" when none is known.
func (m *Manager) HostID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hostID
}

// Room returns the last known room metadata.
func (m *Manager) Room() domain.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.room
}

// RoomCode returns the joined room code, or "" when not joined.
func (m *Manager) RoomCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomCode
}

// Connected reports whether the channel subscription is live (false in
// offline mode).
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribed
}

// RefCount exposes the current join reference count.
func (m *Manager) RefCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refCount
}

// assumeHost installs hostID locally and announces it to the room.
func (m *Manager) assumeHost(hostID string, room domain.Room) {
	m.mu.Lock()
	m.hostID = hostID
	if room.HostID != "" {
		m.room = room
	}
	m.mu.Unlock()

	m.Broadcast(WireHostChange, HostChangePayload{HostID: hostID})
	if room.HostID != "" {
		m.Broadcast(WireRoom, room)
		m.emit(EventRoomUpdated, room)
	}
	m.emit(EventHostChanged, HostChangePayload{HostID: hostID})
}

// BootstrapHost makes the sole local player host when no host broadcast has
// ever been seen. Safe to call any time; it only acts in the
// single-player-no-host case.
func (m *Manager) BootstrapHost() {
	m.mu.Lock()
	lone := m.refCount > 0 && m.hostID == "" && len(m.players) <= 1
	selfID := m.self.ID
	m.mu.Unlock()
	if lone {
		m.assumeHost(selfID, domain.Room{})
	}
}

func (m *Manager) registerHandlers(channel realtime.Channel, gen uint64) {
	channel.OnPresenceSync(func(state realtime.PresenceState) {
		m.handlePresenceSync(gen, state)
	})
	channel.OnBroadcast(WirePlayerJoin, func(p json.RawMessage) { m.handlePlayerJoin(gen, p) })
	channel.OnBroadcast(WirePlayerLeave, func(p json.RawMessage) { m.handlePlayerLeave(gen, p) })
	channel.OnBroadcast(WireRequestPlayerList, func(p json.RawMessage) { m.handleListRequest(gen, p) })
	channel.OnBroadcast(WirePlayerListResponse, func(p json.RawMessage) { m.handleListResponse(gen, p) })
	channel.OnBroadcast(WireGameStateChanged, func(p json.RawMessage) {
		var payload GameStatePayload
		if m.decode(WireGameStateChanged, p, &payload) {
			m.emit(EventGameStateChanged, payload)
		}
	})
	channel.OnBroadcast(WirePlayerEliminated, func(p json.RawMessage) { m.handleEliminated(gen, p) })
	channel.OnBroadcast(WireHostChange, func(p json.RawMessage) { m.handleHostChange(gen, p) })
	channel.OnBroadcast(WireRoom, func(p json.RawMessage) { m.handleRoom(gen, p) })
	channel.OnBroadcast(WireGameReset, func(p json.RawMessage) { m.handleGameReset(gen, p) })
	channel.OnBroadcast(WirePlayerPulling, func(p json.RawMessage) { m.handlePull(gen, p, EventPlayerPulling) })
	channel.OnBroadcast(WirePlayerReleased, func(p json.RawMessage) { m.handlePull(gen, p, EventPlayerReleased) })
	channel.OnBroadcast(WireRopeChanged, func(p json.RawMessage) {
		var payload RopePayload
		if m.decode(WireRopeChanged, p, &payload) {
			m.emit(EventRopeChanged, payload)
		}
	})
	channel.OnBroadcast(WireTugTimeUpdate, func(p json.RawMessage) {
		var payload TugTimePayload
		if m.decode(WireTugTimeUpdate, p, &payload) {
			m.emit(EventTugTimeUpdate, payload)
		}
	})
	channel.OnBroadcast(WireTugCountdownUpdate, func(p json.RawMessage) {
		var payload TugCountdownPayload
		if m.decode(WireTugCountdownUpdate, p, &payload) {
			m.emit(EventTugCountdownUpdate, payload)
		}
	})
}

func (m *Manager) decode(event string, raw json.RawMessage, into any) bool {
	if err := json.Unmarshal(raw, into); err != nil {
		m.logger.Printf("session: bad %s payload: %v", event, err)
		return false
	}
	return true
}

func (m *Manager) stale(gen uint64) bool {
	return m.generation != gen
}

// handlePresenceSync is the full-reconciliation path: the snapshot replaces
// the list wholesale, with the locally owned self record re-asserted on top.
func (m *Manager) handlePresenceSync(gen uint64, state realtime.PresenceState) {
	var players []domain.Player
	for _, records := range state {
		for _, raw := range records {
			var player domain.Player
			if err := json.Unmarshal(raw, &player); err != nil || player.ID == "" {
				continue
			}
			players = domain.UpsertPlayer(players, player)
		}
	}

	m.mu.Lock()
	if m.stale(gen) {
		m.mu.Unlock()
		return
	}
	if m.self.ID != "" {
		players = domain.UpsertPlayer(players, m.self)
	}
	m.players = players
	snapshot := m.playersSnapshotLocked()
	lostHost := m.hostLostLocked()
	m.mu.Unlock()

	m.emit(EventPlayersUpdated, snapshot)
	if lostHost {
		m.failoverHost()
	}
}

func (m *Manager) handlePlayerJoin(gen uint64, raw json.RawMessage) {
	var player domain.Player
	if !m.decode(WirePlayerJoin, raw, &player) || player.ID == "" {
		return
	}
	m.mu.Lock()
	if m.stale(gen) {
		m.mu.Unlock()
		return
	}
	m.players = domain.UpsertPlayer(m.players, player)
	snapshot := m.playersSnapshotLocked()
	m.mu.Unlock()
	m.emit(EventPlayersUpdated, snapshot)
}

func (m *Manager) handlePlayerLeave(gen uint64, raw json.RawMessage) {
	var payload PlayerLeavePayload
	if !m.decode(WirePlayerLeave, raw, &payload) || payload.PlayerID == "" {
		return
	}
	m.mu.Lock()
	if m.stale(gen) {
		m.mu.Unlock()
		return
	}
	m.players = domain.RemovePlayer(m.players, payload.PlayerID)
	snapshot := m.playersSnapshotLocked()
	lostHost := m.hostLostLocked()
	m.mu.Unlock()

	m.emit(EventPlayersUpdated, snapshot)
	if lostHost {
		m.failoverHost()
	}
}

func (m *Manager) handleListRequest(gen uint64, raw json.RawMessage) {
	var payload PlayerListRequest
	if !m.decode(WireRequestPlayerList, raw, &payload) {
		return
	}
	m.mu.Lock()
	if m.stale(gen) || payload.RequesterID == m.self.ID {
		m.mu.Unlock()
		return
	}
	snapshot := m.playersSnapshotLocked()
	hostID := m.hostID
	room := m.room
	m.mu.Unlock()

	m.Broadcast(WirePlayerListResponse, PlayerListResponse{
		Players:     snapshot,
		RequesterID: payload.RequesterID,
	})
	// host_change and room were broadcast before the requester subscribed,
	// so replay them alongside the list.
	if hostID != "" {
		m.Broadcast(WireHostChange, HostChangePayload{HostID: hostID})
	}
	if room.HostID != "" {
		m.Broadcast(WireRoom, room)
	}
}

// handleListResponse merges rather than replaces, so a response carrying a
// stale subset cannot transiently lose players we already know about.
func (m *Manager) handleListResponse(gen uint64, raw json.RawMessage) {
	var payload PlayerListResponse
	if !m.decode(WirePlayerListResponse, raw, &payload) {
		return
	}
	m.mu.Lock()
	if m.stale(gen) || payload.RequesterID != m.self.ID {
		m.mu.Unlock()
		return
	}
	m.players = domain.MergePlayers(m.players, payload.Players)
	snapshot := m.playersSnapshotLocked()
	m.mu.Unlock()
	m.emit(EventPlayersUpdated, snapshot)
}

func (m *Manager) handleEliminated(gen uint64, raw json.RawMessage) {
	var payload EliminatedPayload
	if !m.decode(WirePlayerEliminated, raw, &payload) {
		return
	}
	m.mu.Lock()
	if m.stale(gen) {
		m.mu.Unlock()
		return
	}
	for i := range m.players {
		if m.players[i].ID == payload.PlayerID {
			m.players[i].IsEliminated = true
		}
	}
	snapshot := m.playersSnapshotLocked()
	m.mu.Unlock()

	m.emit(EventPlayerEliminated, payload)
	m.emit(EventPlayersUpdated, snapshot)
}

func (m *Manager) handleHostChange(gen uint64, raw json.RawMessage) {
	var payload HostChangePayload
	if !m.decode(WireHostChange, raw, &payload) || payload.HostID == "" {
		return
	}
	m.mu.Lock()
	if m.stale(gen) {
		m.mu.Unlock()
		return
	}
	m.hostID = payload.HostID
	m.mu.Unlock()
	m.emit(EventHostChanged, payload)
}

func (m *Manager) handleRoom(gen uint64, raw json.RawMessage) {
	var room domain.Room
	if !m.decode(WireRoom, raw, &room) {
		return
	}
	m.mu.Lock()
	if m.stale(gen) {
		m.mu.Unlock()
		return
	}
	m.room = room
	if room.HostID != "" {
		m.hostID = room.HostID
	}
	m.mu.Unlock()
	m.emit(EventRoomUpdated, room)
}

func (m *Manager) handleGameReset(gen uint64, raw json.RawMessage) {
	var payload GameResetPayload
	if !m.decode(WireGameReset, raw, &payload) {
		return
	}
	m.mu.Lock()
	if m.stale(gen) {
		m.mu.Unlock()
		return
	}
	var snapshot []domain.Player
	if payload.ResetPlayers {
		m.players = domain.ResetForRound(m.players)
		m.self.IsEliminated = false
		m.self.IsPulling = false
		m.self.PullStrength = 0
		m.self.Lane = 0
		snapshot = m.playersSnapshotLocked()
	}
	m.mu.Unlock()

	m.emit(EventGameReset, payload)
	if snapshot != nil {
		m.emit(EventPlayersUpdated, snapshot)
	}
}

func (m *Manager) handlePull(gen uint64, raw json.RawMessage, t EventType) {
	var payload PullPayload
	if !m.decode(string(t), raw, &payload) || payload.PlayerID == "" {
		return
	}
	m.mu.Lock()
	if m.stale(gen) {
		m.mu.Unlock()
		return
	}
	for i := range m.players {
		if m.players[i].ID == payload.PlayerID {
			m.players[i].IsPulling = payload.IsPulling
			m.players[i].PullStrength = payload.PullStrength
		}
	}
	snapshot := m.playersSnapshotLocked()
	m.mu.Unlock()

	m.emit(t, payload)
	m.emit(EventPlayersUpdated, snapshot)
}

// hostLostLocked reports whether a known host has vanished from the player
// list while other players remain. Callers hold m.mu.
func (m *Manager) hostLostLocked() bool {
	if m.hostID == "" || len(m.players) == 0 {
		return false
	}
	if _, ok := domain.FindPlayer(m.players, m.hostID); ok {
		return false
	}
	return true
}

// failoverHost promotes the surviving client with the lowest identifier.
// Every client computes the same winner, so only the winner announces; no
// extra coordination round is needed.
func (m *Manager) failoverHost() {
	m.mu.Lock()
	lowest := domain.LowestID(m.players)
	selfID := m.self.ID
	m.hostID = lowest
	m.mu.Unlock()

	if lowest == "" {
		return
	}
	if lowest == selfID {
		m.logger.Printf("session: host gone, assuming host as lowest id %s", selfID)
		m.Broadcast(WireHostChange, HostChangePayload{HostID: selfID})
	}
	m.emit(EventHostChanged, HostChangePayload{HostID: lowest})
}
