package nakama

const (
	// RpcFindRoom is the Nakama RPC id clients call to find or create a
	// server-authoritative room for a game type.
	RpcFindRoom = "find_room"

	// MatchNameMinigame is the authoritative match handler name registered
	// with Nakama.
	MatchNameMinigame = "minigame_match"

	// MatchLabelKey_OpenSeats is the label key advertising open capacity.
	MatchLabelKey_OpenSeats = "open"

	// MaxPlayers caps one room.
	MaxPlayers = 16
)

// Op codes for client messages and server events.
const (
	// Client -> Server
	OpStartGame   int64 = 1
	OpPosition    int64 = 2
	OpPullRope    int64 = 3
	OpReleaseRope int64 = 4
	OpResetGame   int64 = 5

	// Server -> Client events
	OpPlayerList       int64 = 101
	OpGameState        int64 = 102
	OpPlayerEliminated int64 = 103
	OpRopeChanged      int64 = 104
	OpTugTime          int64 = 105
	OpTugCountdown     int64 = 106
	OpGameReset        int64 = 107
	OpHostChange       int64 = 108
)
