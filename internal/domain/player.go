package domain

// Player is one client's presence record. It is mutated only by its owning
// client, except for the elimination flag and phase-driven resets which the
// host may impose.
type Player struct {
	ID           string  `json:"id"`
	Name         string  `json:"name,omitempty"`
	IsEliminated bool    `json:"isEliminated"`
	X            float64 `json:"x"`
	Z            float64 `json:"z"`
	IsMoving     bool    `json:"isMoving"`
	// Tug-of-war fields. Lane is the position along the rope axis,
	// negative for the left side, positive for the right.
	IsPulling    bool    `json:"isPulling,omitempty"`
	PullStrength float64 `json:"pullStrength,omitempty"`
	Lane         float64 `json:"position,omitempty"`
	UpdatedAt    int64   `json:"ts,omitempty"`
}

// Merge overlays the non-zero identity fields of other onto p, keeping p's
// id. Used when a broadcast carries a partial record for a known player.
func (p Player) Merge(other Player) Player {
	merged := other
	merged.ID = p.ID
	if merged.Name == "" {
		merged.Name = p.Name
	}
	return merged
}

// UpsertPlayer inserts or replaces the entry with player's id and returns
// the updated list. Uniqueness by id is the only invariant.
func UpsertPlayer(list []Player, player Player) []Player {
	for i, existing := range list {
		if existing.ID == player.ID {
			list[i] = existing.Merge(player)
			return list
		}
	}
	return append(list, player)
}

// RemovePlayer drops the entry with the given id, if present.
func RemovePlayer(list []Player, id string) []Player {
	for i, existing := range list {
		if existing.ID == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// MergePlayers folds incoming into list without dropping entries that only
// the local side knows about. Incoming records win field-wise for players
// present in both. Used for player_list_response reconciliation, where a
// wholesale replace could transiently lose players.
func MergePlayers(list []Player, incoming []Player) []Player {
	for _, player := range incoming {
		list = UpsertPlayer(list, player)
	}
	return list
}

// FindPlayer returns the entry with the given id and whether it exists.
func FindPlayer(list []Player, id string) (Player, bool) {
	for _, existing := range list {
		if existing.ID == id {
			return existing, true
		}
	}
	return Player{}, false
}

// ResetForRound clears the per-round derived state of every player: pulls,
// elimination and lane position go back to their initial values.
func ResetForRound(list []Player) []Player {
	for i := range list {
		list[i].IsEliminated = false
		list[i].IsPulling = false
		list[i].PullStrength = 0
		list[i].Lane = 0
	}
	return list
}

// LowestID returns the lexicographically smallest player id, or "" for an
// empty list. Host failover promotes the client owning this id.
func LowestID(list []Player) string {
	lowest := ""
	for _, player := range list {
		if player.ID == "" {
			continue
		}
		if lowest == "" || player.ID < lowest {
			lowest = player.ID
		}
	}
	return lowest
}
