package nakama

import (
	"context"
	"database/sql"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
)

// InitModule registers the minigame match handler and its matchmaking RPC.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	start := time.Now()

	if err := initializer.RegisterRpc(RpcFindRoom, rpcFindRoom); err != nil {
		return err
	}
	if err := initializer.RegisterMatch(MatchNameMinigame, NewMatch); err != nil {
		return err
	}

	logger.Info("minigames module loaded in %v", time.Since(start))
	return nil
}
