package session

import "minigames/internal/domain"

// Wire event names. This is the closed broadcast vocabulary every client in
// a room must speak; the payload shape for each name is fixed by the structs
// below.
const (
	WirePlayerJoin         = "player_join"
	WirePlayerLeave        = "player_leave"
	WireRequestPlayerList  = "request_player_list"
	WirePlayerListResponse = "player_list_response"
	WireGameStateChanged   = "game_state_changed"
	WirePlayerEliminated   = "player_eliminated"
	WireHostChange         = "host_change"
	WireRoom               = "room"
	WireGameReset          = "game_reset"
	WirePlayerPulling      = "player_pulling"
	WirePlayerReleased     = "player_released"
	WireRopeChanged        = "rope_position_changed"
	WireTugTimeUpdate      = "tug_of_war_time_update"
	WireTugCountdownUpdate = "tug_of_war_countdown_update"
)

// EventType enumerates the local event bus kinds a Manager emits.
type EventType string

const (
	EventRoomUpdated        EventType = "room_updated"
	EventGameStateChanged   EventType = "game_state_changed"
	EventPlayersUpdated     EventType = "players_updated"
	EventPlayerEliminated   EventType = "player_eliminated"
	EventHostChanged        EventType = "host_changed"
	EventGameReset          EventType = "game_reset"
	EventRopeChanged        EventType = "rope_position_changed"
	EventPlayerPulling      EventType = "player_pulling"
	EventPlayerReleased     EventType = "player_released"
	EventTugTimeUpdate      EventType = "tug_of_war_time_update"
	EventTugCountdownUpdate EventType = "tug_of_war_countdown_update"
)

// GameStatePayload is the game_state_changed shape. Host broadcasts carry a
// full self-consistent snapshot of the fields the host owns; optional fields
// use pointers so receivers can tell absent from zero (a timeLeft of 0 is
// meaningful at expiry).
type GameStatePayload struct {
	GameState    domain.Phase        `json:"gameState,omitempty"`
	LightState   domain.LightState   `json:"lightState,omitempty"`
	TimeLeft     *int                `json:"timeLeft,omitempty"`
	Countdown    *int                `json:"countdown,omitempty"`
	Winners      []string            `json:"winners,omitempty"`
	Ended        *bool               `json:"ended,omitempty"`
	RopePosition domain.RopePosition `json:"ropePosition,omitempty"`
}

// PlayerLeavePayload identifies the departing player.
type PlayerLeavePayload struct {
	PlayerID string `json:"playerId"`
}

// PlayerListRequest asks existing members to resend their last-known list.
type PlayerListRequest struct {
	RequesterID string `json:"requesterId"`
}

// PlayerListResponse answers a PlayerListRequest; only the requester merges
// it.
type PlayerListResponse struct {
	Players     []domain.Player `json:"players"`
	RequesterID string          `json:"requesterId"`
}

// EliminatedPayload announces one player's elimination.
type EliminatedPayload struct {
	PlayerID string `json:"playerId"`
}

// HostChangePayload announces the authoritative host.
type HostChangePayload struct {
	HostID string `json:"hostId"`
}

// GameResetPayload returns the room to waiting.
type GameResetPayload struct {
	GameState    domain.Phase `json:"gameState"`
	TimeLeft     int          `json:"timeLeft"`
	ResetPlayers bool         `json:"resetPlayers,omitempty"`
}

// PullPayload carries a player's pulling intent for tug-of-war.
type PullPayload struct {
	PlayerID     string  `json:"playerId"`
	IsPulling    bool    `json:"isPulling"`
	PullStrength float64 `json:"pullStrength"`
}

// RopePayload carries a discretized rope position change.
type RopePayload struct {
	RopePosition domain.RopePosition `json:"ropePosition"`
}

// TugTimePayload is the per-tick tug-of-war timer broadcast.
type TugTimePayload struct {
	TimeLeft  int          `json:"timeLeft"`
	GameState domain.Phase `json:"gameState,omitempty"`
}

// TugCountdownPayload is the pre-round countdown broadcast.
type TugCountdownPayload struct {
	Countdown int `json:"countdown"`
}

// Event is one delivery on the local bus.
type Event struct {
	Type    EventType
	Payload any
}

// Int returns a pointer for optional numeric payload fields.
func Int(v int) *int { return &v }

// Bool returns a pointer for optional boolean payload fields.
func Bool(v bool) *bool { return &v }
