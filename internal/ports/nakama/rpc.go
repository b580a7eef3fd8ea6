package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"

	"minigames/internal/domain"
)

type findRoomRequest struct {
	GameType domain.GameType `json:"gameType"`
}

type findRoomResponse struct {
	MatchID string `json:"matchId"`
	Created bool   `json:"created"`
}

// rpcFindRoom puts the caller into a room with open seats for the requested
// game, creating one when none is listed.
func rpcFindRoom(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	req := findRoomRequest{GameType: domain.GameRedLightGreenLight}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return "", runtime.NewError("invalid payload", 3)
		}
	}
	if req.GameType != domain.GameRedLightGreenLight && req.GameType != domain.GameTugOfWar {
		return "", runtime.NewError("unknown game type", 3)
	}

	query := fmt.Sprintf("+label.%s:>0 +label.game:%s", MatchLabelKey_OpenSeats, req.GameType)
	limit := 1
	minSize := 0
	maxSize := MaxPlayers - 1
	matches, err := nk.MatchList(ctx, limit, true, "", &minSize, &maxSize, query)
	if err != nil {
		logger.Error("rpcFindRoom: match list: %v", err)
		return "", runtime.NewError("match list failed", 13)
	}

	resp := findRoomResponse{}
	if len(matches) > 0 {
		resp.MatchID = matches[0].MatchId
	} else {
		matchID, err := nk.MatchCreate(ctx, MatchNameMinigame, map[string]interface{}{
			"gameType": string(req.GameType),
		})
		if err != nil {
			logger.Error("rpcFindRoom: match create: %v", err)
			return "", runtime.NewError("match create failed", 13)
		}
		resp.MatchID = matchID
		resp.Created = true
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return "", runtime.NewError("marshal response failed", 13)
	}
	return string(raw), nil
}
