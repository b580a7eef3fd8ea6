package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"math/rand"
	"sort"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"minigames/internal/domain"
	"minigames/internal/session"
)

// matchConfig holds the per-room tunables in ticks (the match runs at one
// tick per second).
type matchConfig struct {
	redLightTicks int64
	tugTicks      int64
	countdown     int
	dwellMin      int64
	dwellMax      int64
	finishZ       float64
	moveEpsilonSq float64
	ropeThreshold float64
	pitThreshold  float64
}

func defaultMatchConfig() matchConfig {
	return matchConfig{
		redLightTicks: 60,
		tugTicks:      30,
		countdown:     3,
		dwellMin:      3,
		dwellMax:      5,
		finishZ:       25,
		moveEpsilonSq: domain.DefaultMoveEpsilon,
		ropeThreshold: 0.3,
		pitThreshold:  1.0,
	}
}

// MatchState is the authoritative room state. Unlike the channel-relayed
// mode, movement checks and finish detection run here, server-side, from
// raw position reports.
type MatchState struct {
	Game      domain.GameType             `json:"game"`
	Phase     domain.Phase                `json:"phase"`
	Light     domain.LightState           `json:"light"`
	HostID    string                      `json:"host_id"`
	Countdown int                         `json:"countdown"`
	TimeLeft  int                         `json:"time_left"`
	Rope      domain.RopePosition         `json:"rope"`
	Players   map[string]*domain.Player   `json:"players"`
	Presences map[string]runtime.Presence `json:"-"`

	startTick int64
	flipTick  int64
	dwellLeft int64
	rng       *rand.Rand
	cfg       matchConfig
}

func (ms *MatchState) playerList() []domain.Player {
	ids := make([]string, 0, len(ms.Players))
	for id := range ms.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	players := make([]domain.Player, 0, len(ids))
	for _, id := range ids {
		players = append(players, *ms.Players[id])
	}
	return players
}

func (ms *MatchState) openSeats() int {
	return MaxPlayers - len(ms.Players)
}

// electHost keeps the host pointed at a present player, lowest id first.
func (ms *MatchState) electHost() bool {
	if _, ok := ms.Players[ms.HostID]; ok {
		return false
	}
	ms.HostID = domain.LowestID(ms.playerList())
	return ms.HostID != ""
}

// positionMessage is the OpPosition payload; lane carries the tug rope
// position under the same key presence records use.
type positionMessage struct {
	X        float64 `json:"x"`
	Z        float64 `json:"z"`
	Lane     float64 `json:"position"`
	IsMoving bool    `json:"isMoving"`
}

type startMessage struct {
	GameType domain.GameType `json:"gameType"`
}

// NewMatch is the factory registered with Nakama.
func NewMatch(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule) (runtime.Match, error) {
	return &matchHandler{}, nil
}

type matchHandler struct{}

func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	state := &MatchState{
		Game:      domain.GameRedLightGreenLight,
		Phase:     domain.PhaseWaiting,
		Light:     domain.LightGreen,
		Rope:      domain.RopeCenter,
		Players:   make(map[string]*domain.Player),
		Presences: make(map[string]runtime.Presence),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		cfg:       defaultMatchConfig(),
	}
	if g, ok := params["gameType"].(string); ok && domain.GameType(g) == domain.GameTugOfWar {
		state.Game = domain.GameTugOfWar
	}

	tickRate := 1
	return state, tickRate, mh.label(state)
}

func (mh *matchHandler) label(state *MatchState) string {
	raw, err := json.Marshal(map[string]any{
		MatchLabelKey_OpenSeats: state.openSeats(),
		"game":                  state.Game,
		"phase":                 state.Phase,
	})
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func (mh *matchHandler) updateLabel(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	if err := dispatcher.MatchLabelUpdate(mh.label(state)); err != nil {
		logger.Error("updateLabel: %v", err)
	}
}

func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}
	if matchState.openSeats() <= 0 {
		return matchState, false, "room full"
	}
	return matchState, true, ""
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}

	for _, p := range presences {
		userID := p.GetUserId()
		matchState.Presences[userID] = p
		if _, exists := matchState.Players[userID]; exists {
			continue
		}
		player := &domain.Player{ID: userID, Name: p.GetUsername()}
		if matchState.Game == domain.GameTugOfWar {
			player.Lane = mh.dealLane(matchState)
		}
		matchState.Players[userID] = player
	}

	if matchState.electHost() {
		mh.broadcast(dispatcher, logger, OpHostChange, session.HostChangePayload{HostID: matchState.HostID})
	}
	mh.updateLabel(matchState, dispatcher, logger)
	mh.broadcastPlayerList(matchState, dispatcher, logger)
	return matchState
}

// dealLane puts a joining tug player mid-lane on the emptier side.
func (mh *matchHandler) dealLane(state *MatchState) float64 {
	left, right := domain.SplitSides(state.playerList())
	lane := 4.0
	switch {
	case len(left) < len(right):
		return -lane
	case len(right) < len(left):
		return lane
	case state.rng.Intn(2) == 0:
		return -lane
	default:
		return lane
	}
}

func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}

	for _, p := range presences {
		delete(matchState.Presences, p.GetUserId())
		delete(matchState.Players, p.GetUserId())
	}
	if len(matchState.Players) == 0 {
		logger.Info("MatchLeave: room empty, terminating")
		return nil
	}
	if matchState.electHost() {
		mh.broadcast(dispatcher, logger, OpHostChange, session.HostChangePayload{HostID: matchState.HostID})
	}
	mh.updateLabel(matchState, dispatcher, logger)
	mh.broadcastPlayerList(matchState, dispatcher, logger)
	return matchState
}

func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state
	}

	for _, msg := range messages {
		switch msg.GetOpCode() {
		case OpStartGame:
			mh.handleStartGame(matchState, dispatcher, logger, msg, tick)
		case OpPosition:
			mh.handlePosition(matchState, dispatcher, logger, msg, tick)
		case OpPullRope:
			mh.handlePull(matchState, msg, true)
		case OpReleaseRope:
			mh.handlePull(matchState, msg, false)
		case OpResetGame:
			mh.handleReset(matchState, dispatcher, logger, msg)
		default:
			logger.Warn("MatchLoop: unknown opcode %d", msg.GetOpCode())
		}
	}

	switch matchState.Phase {
	case domain.PhaseCountdown:
		mh.tickCountdown(matchState, dispatcher, logger, tick)
	case domain.PhasePlaying:
		if matchState.Game == domain.GameTugOfWar {
			mh.tickTug(matchState, dispatcher, logger)
		} else {
			mh.tickRedLight(matchState, dispatcher, logger, tick)
		}
	}
	return matchState
}

func (mh *matchHandler) handleStartGame(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData, tick int64) {
	if msg.GetUserId() != state.HostID {
		logger.Warn("handleStartGame: non-host %s ignored", msg.GetUserId())
		return
	}
	if state.Phase == domain.PhaseCountdown || state.Phase == domain.PhasePlaying {
		return
	}
	var start startMessage
	if err := unmarshalEvent(msg.GetData(), &start); err == nil && start.GameType == domain.GameTugOfWar {
		state.Game = domain.GameTugOfWar
	}

	for _, p := range state.Players {
		p.IsEliminated = false
		p.IsMoving = false
		p.IsPulling = false
		p.PullStrength = 0
		p.X, p.Z = 0, 0
	}
	state.Phase = domain.PhaseCountdown
	state.Countdown = state.cfg.countdown
	state.Light = domain.LightGreen
	state.Rope = domain.RopeCenter
	if state.Game == domain.GameTugOfWar {
		state.TimeLeft = int(state.cfg.tugTicks)
	} else {
		state.TimeLeft = int(state.cfg.redLightTicks)
	}

	mh.broadcastPlayerList(state, dispatcher, logger)
	mh.broadcast(dispatcher, logger, OpGameState, session.GameStatePayload{
		GameState:  domain.PhaseCountdown,
		LightState: state.Light,
		TimeLeft:   session.Int(state.TimeLeft),
		Countdown:  session.Int(state.Countdown),
	})
	mh.updateLabel(state, dispatcher, logger)
}

// handlePosition ingests a raw position report. During red light any
// above-threshold displacement past the flip tick eliminates the player
// here, server-side, regardless of what the client claims.
func (mh *matchHandler) handlePosition(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData, tick int64) {
	player, ok := state.Players[msg.GetUserId()]
	if !ok {
		return
	}
	var pos positionMessage
	if err := unmarshalEvent(msg.GetData(), &pos); err != nil {
		logger.Warn("handlePosition: bad payload from %s: %v", msg.GetUserId(), err)
		return
	}

	dx := pos.X - player.X
	dz := pos.Z - player.Z
	moved := dx*dx+dz*dz > state.cfg.moveEpsilonSq

	player.X, player.Z = pos.X, pos.Z
	player.Lane = pos.Lane
	player.IsMoving = pos.IsMoving
	player.UpdatedAt = time.Now().UnixMilli()

	if state.Game == domain.GameRedLightGreenLight &&
		state.Phase == domain.PhasePlaying &&
		state.Light == domain.LightRed &&
		tick > state.flipTick &&
		moved && !player.IsEliminated {
		player.IsEliminated = true
		player.IsMoving = false
		mh.broadcast(dispatcher, logger, OpPlayerEliminated, session.EliminatedPayload{PlayerID: player.ID})
	}
}

func (mh *matchHandler) handlePull(state *MatchState, msg runtime.MatchData, pulling bool) {
	player, ok := state.Players[msg.GetUserId()]
	if !ok || state.Game != domain.GameTugOfWar {
		return
	}
	player.IsPulling = pulling
	if pulling {
		player.PullStrength += 0.02
		if player.PullStrength > 1 {
			player.PullStrength = 1
		}
	} else {
		player.PullStrength = 0
	}
}

func (mh *matchHandler) handleReset(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	if msg.GetUserId() != state.HostID {
		return
	}
	state.Phase = domain.PhaseWaiting
	state.Light = domain.LightGreen
	state.Rope = domain.RopeCenter
	for _, p := range state.Players {
		p.IsEliminated = false
		p.IsMoving = false
		p.IsPulling = false
		p.PullStrength = 0
	}
	duration := int(state.cfg.redLightTicks)
	if state.Game == domain.GameTugOfWar {
		duration = int(state.cfg.tugTicks)
	}
	state.TimeLeft = duration

	mh.broadcast(dispatcher, logger, OpGameReset, session.GameResetPayload{
		GameState:    domain.PhaseWaiting,
		TimeLeft:     duration,
		ResetPlayers: true,
	})
	mh.broadcastPlayerList(state, dispatcher, logger)
	mh.updateLabel(state, dispatcher, logger)
}

func (mh *matchHandler) tickCountdown(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, tick int64) {
	state.Countdown--
	if state.Countdown > 0 {
		if state.Game == domain.GameTugOfWar {
			mh.broadcast(dispatcher, logger, OpTugCountdown, session.TugCountdownPayload{Countdown: state.Countdown})
			return
		}
		mh.broadcast(dispatcher, logger, OpGameState, session.GameStatePayload{
			GameState: domain.PhaseCountdown,
			Countdown: session.Int(state.Countdown),
			TimeLeft:  session.Int(state.TimeLeft),
		})
		return
	}

	state.Phase = domain.PhasePlaying
	state.startTick = tick
	state.flipTick = tick
	state.dwellLeft = mh.nextDwell(state)
	if state.Game == domain.GameTugOfWar {
		mh.broadcast(dispatcher, logger, OpTugCountdown, session.TugCountdownPayload{Countdown: 0})
	}
	mh.broadcast(dispatcher, logger, OpGameState, session.GameStatePayload{
		GameState:    domain.PhasePlaying,
		LightState:   state.Light,
		TimeLeft:     session.Int(state.TimeLeft),
		RopePosition: state.Rope,
	})
	mh.updateLabel(state, dispatcher, logger)
}

func (mh *matchHandler) nextDwell(state *MatchState) int64 {
	span := state.cfg.dwellMax - state.cfg.dwellMin
	if span <= 0 {
		return state.cfg.dwellMin
	}
	return state.cfg.dwellMin + state.rng.Int63n(span+1)
}

func (mh *matchHandler) tickRedLight(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, tick int64) {
	state.TimeLeft = int(state.cfg.redLightTicks - (tick - state.startTick))
	if state.TimeLeft <= 0 {
		winners := domain.FinishWinners(state.playerList(), state.cfg.finishZ)
		state.Phase = domain.PhaseEnded
		state.TimeLeft = 0
		mh.broadcast(dispatcher, logger, OpGameState, session.GameStatePayload{
			GameState:  domain.PhaseEnded,
			LightState: state.Light,
			TimeLeft:   session.Int(0),
			Winners:    winners,
			Ended:      session.Bool(true),
		})
		mh.updateLabel(state, dispatcher, logger)
		return
	}

	state.dwellLeft--
	if state.dwellLeft <= 0 {
		state.Light = state.Light.Toggle()
		state.flipTick = tick
		state.dwellLeft = mh.nextDwell(state)
	}
	mh.broadcast(dispatcher, logger, OpGameState, session.GameStatePayload{
		GameState:  domain.PhasePlaying,
		LightState: state.Light,
		TimeLeft:   session.Int(state.TimeLeft),
	})
}

func (mh *matchHandler) tickTug(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	players := state.playerList()
	state.TimeLeft--

	rope := domain.RopeFromPlayers(players, state.cfg.ropeThreshold)
	if rope != state.Rope {
		state.Rope = rope
		mh.broadcast(dispatcher, logger, OpRopeChanged, session.RopePayload{RopePosition: rope})
	}

	if winners := domain.PitWinners(players, state.cfg.pitThreshold); winners != nil {
		mh.finishTug(state, dispatcher, logger, winners)
		return
	}

	mh.broadcast(dispatcher, logger, OpTugTime, session.TugTimePayload{
		TimeLeft:  state.TimeLeft,
		GameState: domain.PhasePlaying,
	})
	if state.TimeLeft <= 0 {
		mh.finishTug(state, dispatcher, logger, domain.TimeoutWinners(players, state.Rope))
	}
}

func (mh *matchHandler) finishTug(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, winners []string) {
	state.Phase = domain.PhaseWon
	state.TimeLeft = 0
	mh.broadcast(dispatcher, logger, OpGameState, session.GameStatePayload{
		GameState:    domain.PhaseWon,
		TimeLeft:     session.Int(0),
		Winners:      winners,
		Ended:        session.Bool(true),
		RopePosition: state.Rope,
	})
	mh.updateLabel(state, dispatcher, logger)
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, graceSeconds int) interface{} {
	return state
}

func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	return state, ""
}

func (mh *matchHandler) broadcastPlayerList(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	mh.broadcast(dispatcher, logger, OpPlayerList, session.PlayerListResponse{
		Players: state.playerList(),
	})
}

func (mh *matchHandler) broadcast(dispatcher runtime.MatchDispatcher, logger runtime.Logger, opCode int64, payload any) {
	data, err := marshalEvent(payload)
	if err != nil {
		logger.Error("broadcast op %d: %v", opCode, err)
		return
	}
	if err := dispatcher.BroadcastMessage(opCode, data, nil, nil, true); err != nil {
		logger.Error("broadcast op %d: %v", opCode, err)
	}
}
