package domain

// Phase is the top-level state of a game round as seen by one client.
type Phase string

const (
	// PhaseWaiting indicates the room is idle and a host may start a round.
	PhaseWaiting Phase = "waiting"
	// PhaseCountdown indicates the pre-round countdown is running.
	PhaseCountdown Phase = "countdown"
	// PhasePlaying indicates the round is in progress.
	PhasePlaying Phase = "playing"
	// PhaseWon is the terminal phase for a client on the winning side.
	PhaseWon Phase = "won"
	// PhaseEliminated is the terminal phase for an eliminated client.
	PhaseEliminated Phase = "eliminated"
	// PhaseEnded is the room-level terminal phase broadcast at timer expiry.
	PhaseEnded Phase = "ended"
)

// LightState is the doll's light in red-light/green-light.
type LightState string

const (
	LightGreen LightState = "green"
	LightRed   LightState = "red"
)

// Toggle returns the opposite light state.
func (l LightState) Toggle() LightState {
	if l == LightGreen {
		return LightRed
	}
	return LightGreen
}

// RopePosition is the discretized tug-of-war tension summary.
type RopePosition string

const (
	RopeLeft   RopePosition = "left"
	RopeCenter RopePosition = "center"
	RopeRight  RopePosition = "right"
)

// GameType selects which minigame a room is running.
type GameType string

const (
	GameRedLightGreenLight GameType = "red-light-green-light"
	GameTugOfWar           GameType = "tug-of-war"
)

// GameState is the host-owned red-light/green-light snapshot. Every host
// broadcast carries the full struct so a client that misses one tick is
// resynchronized by the next.
type GameState struct {
	Phase     Phase      `json:"gameState"`
	Light     LightState `json:"lightState,omitempty"`
	TimeLeft  int        `json:"timeLeft,omitempty"`
	Countdown int        `json:"countdown,omitempty"`
	Winners   []string   `json:"winners,omitempty"`
	Ended     bool       `json:"ended,omitempty"`
}

// TugState is the host-owned tug-of-war snapshot. Phase PhaseWon and Ended
// are always set together; both fields stay on the wire for compatibility.
type TugState struct {
	Phase     Phase        `json:"gameState"`
	Rope      RopePosition `json:"ropePosition,omitempty"`
	TimeLeft  int          `json:"timeLeft,omitempty"`
	Countdown int          `json:"countdown,omitempty"`
	Winners   []string     `json:"winners,omitempty"`
	Ended     bool         `json:"ended,omitempty"`
}

// Room is the metadata record broadcast by the creator.
type Room struct {
	Code      string   `json:"code,omitempty"`
	HostID    string   `json:"hostId,omitempty"`
	CreatedAt int64    `json:"createdAt,omitempty"`
	GameType  GameType `json:"gameType,omitempty"`
}
